package grid

// FieldType describes the data type of a column.
// It drives the default filter operator and literal formatting in query builders.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
)

// Column declares a grid column that filters and sorters may reference.
type Column struct {
	// ID is the column identifier used by filters and sorters.
	// REQUIRED.
	ID string `json:"id"`

	// Field is the backend field path (e.g. "billing.address.zip").
	// OPTIONAL: defaults to ID.
	Field string `json:"field,omitempty"`

	// Name is the display name of the column.
	Name string `json:"name,omitempty"`

	// Type is the column data type.
	// OPTIONAL: defaults to FieldTypeString.
	Type FieldType `json:"type,omitempty"`
}

// FieldName returns the backend field path of the column.
func (c Column) FieldName() string {
	if c.Field != "" {
		return c.Field
	}
	return c.ID
}

// DataType returns the column type, defaulting to FieldTypeString.
func (c Column) DataType() FieldType {
	if c.Type == "" {
		return FieldTypeString
	}
	return c.Type
}

// Columns is an ordered list of column declarations.
type Columns []Column

// Lookup returns the column declared with the given id.
func (cs Columns) Lookup(id string) (Column, bool) {
	for _, c := range cs {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

// Fields returns the backend field paths of all columns in declaration order.
func (cs Columns) Fields() []string {
	fields := make([]string, 0, len(cs))
	for _, c := range cs {
		fields = append(fields, c.FieldName())
	}
	return fields
}

// Filter is a single column filter.
type Filter struct {
	ColumnID    string   `json:"columnId"`
	Operator    Operator `json:"operator,omitempty"`
	SearchTerms []string `json:"searchTerms"`
}

// Sorter is a single column sort.
type Sorter struct {
	ColumnID  string        `json:"columnId"`
	Direction SortDirection `json:"direction"`
}

// Cursor addresses a page by opaque tokens instead of a numeric offset.
// Only used when the query builder runs in cursor mode.
type Cursor struct {
	// After requests the page following this cursor.
	After string `json:"after,omitempty"`

	// Before requests the page preceding this cursor.
	Before string `json:"before,omitempty"`

	// Last counts the page from the end of the result set ("last" instead of "first").
	Last bool `json:"last,omitempty"`
}

// Pagination holds the current page position.
type Pagination struct {
	PageNumber int     `json:"pageNumber"`
	PageSize   int     `json:"pageSize"`
	TotalItems int     `json:"totalItems,omitempty"`
	Cursor     *Cursor `json:"cursor,omitempty"`
}

// Offset returns the number of rows preceding the current page.
func (p Pagination) Offset() int {
	if p.PageNumber <= 1 || p.PageSize <= 0 {
		return 0
	}
	return (p.PageNumber - 1) * p.PageSize
}

// State is the filter/sort/pagination configuration of a grid.
type State struct {
	Filters    []Filter    `json:"filters,omitempty"`
	Sorters    []Sorter    `json:"sorters,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Clone returns a deep copy of the state.
// Nil slices stay nil so that copies compare equal with reflect.DeepEqual.
func (s State) Clone() State {
	out := State{}
	if s.Filters != nil {
		out.Filters = make([]Filter, len(s.Filters))
		for i, f := range s.Filters {
			out.Filters[i] = f
			if f.SearchTerms != nil {
				out.Filters[i].SearchTerms = make([]string, len(f.SearchTerms))
				copy(out.Filters[i].SearchTerms, f.SearchTerms)
			}
		}
	}
	if s.Sorters != nil {
		out.Sorters = make([]Sorter, len(s.Sorters))
		copy(out.Sorters, s.Sorters)
	}
	if s.Pagination != nil {
		p := *s.Pagination
		if p.Cursor != nil {
			c := *p.Cursor
			p.Cursor = &c
		}
		out.Pagination = &p
	}
	return out
}

// Page returns the pagination of the state, filling zero fields from defaultPageSize.
// The returned value is a copy.
func (s State) Page(defaultPageSize int) Pagination {
	var p Pagination
	if s.Pagination != nil {
		p = *s.Pagination
	}
	if p.PageNumber < 1 {
		p.PageNumber = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	return p
}
