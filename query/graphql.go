package query

import (
	"strconv"
	"strings"

	"github.com/hugr-lab/pagefetch/grid"
)

// GraphQLOptions configures the GraphQL query builder.
type GraphQLOptions struct {
	// Columns declares the grid columns. Filters and sorters must reference them;
	// their fields form the node selection.
	// REQUIRED.
	Columns grid.Columns

	// DatasetName is the root query field (e.g. "users").
	// REQUIRED.
	DatasetName string

	// IsWithCursor selects cursor pagination (first/last/after/before)
	// instead of offset pagination (first/offset).
	IsWithCursor bool

	// AddLocaleIntoQuery adds a locale argument with the value of Locale.
	AddLocaleIntoQuery bool
	Locale             string

	// ExtraQueryArguments are appended to the dataset arguments in order.
	ExtraQueryArguments []Argument

	// KeepArgumentFieldDoubleQuotes emits field names as quoted strings
	// (field:"billing.address.zip") instead of bare names.
	KeepArgumentFieldDoubleQuotes bool

	// IDProperty is selected on every node.
	// OPTIONAL: defaults to "id".
	IDProperty string

	// DefaultPageSize is used when the state has no page size.
	// OPTIONAL: defaults to DefaultPageSize.
	DefaultPageSize int
}

// GraphQLBuilder builds GraphQL queries of the form
//
//	query{users(first:20, offset:20, orderBy:[...], filterBy:[...]) { totalCount, nodes { id, name } }}
type GraphQLBuilder struct {
	opts GraphQLOptions
}

// NewGraphQLBuilder creates a GraphQL query builder.
func NewGraphQLBuilder(opts GraphQLOptions) *GraphQLBuilder {
	if opts.IDProperty == "" {
		opts.IDProperty = "id"
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	return &GraphQLBuilder{opts: opts}
}

// Columns returns the declared columns.
func (b *GraphQLBuilder) Columns() grid.Columns {
	return b.opts.Columns
}

// Options returns a copy of the builder options.
func (b *GraphQLBuilder) Options() GraphQLOptions {
	return b.opts
}

// Build renders the state as a GraphQL query.
func (b *GraphQLBuilder) Build(state grid.State) (Query, error) {
	if b.opts.DatasetName == "" {
		return Query{}, ErrMissingDataset
	}
	if err := state.Validate(b.opts.Columns); err != nil {
		return Query{}, err
	}

	page := state.Page(b.opts.DefaultPageSize)
	q := Query{
		Dialect:    DialectGraphQL,
		Dataset:    b.opts.DatasetName,
		PageSize:   page.PageSize,
		WithCursor: b.opts.IsWithCursor,
	}

	var args []string
	if b.opts.IsWithCursor {
		args = append(args, b.cursorArgs(page)...)
	} else {
		q.Offset = page.Offset()
		args = append(args,
			"first:"+strconv.Itoa(page.PageSize),
			"offset:"+strconv.Itoa(q.Offset),
		)
	}

	if len(state.Sorters) > 0 {
		sorts := make([]string, 0, len(state.Sorters))
		for _, s := range state.Sorters {
			col, _ := b.opts.Columns.Lookup(s.ColumnID)
			sorts = append(sorts, "{field:"+b.field(col.FieldName())+", direction:"+string(s.Direction)+"}")
		}
		args = append(args, "orderBy:["+strings.Join(sorts, ", ")+"]")
	}

	if len(state.Filters) > 0 {
		filters := make([]string, 0, len(state.Filters))
		for _, f := range state.Filters {
			col, _ := b.opts.Columns.Lookup(f.ColumnID)
			op, terms := f.Resolve(col)
			filters = append(filters, "{field:"+b.field(col.FieldName())+", operator:"+string(op)+", value:"+graphqlString(filterValue(op, terms))+"}")
		}
		args = append(args, "filterBy:["+strings.Join(filters, ", ")+"]")
	}

	if b.opts.AddLocaleIntoQuery && b.opts.Locale != "" {
		args = append(args, "locale:"+graphqlString(b.opts.Locale))
	}

	for _, a := range b.opts.ExtraQueryArguments {
		args = append(args, a.Field+":"+graphqlValue(a.Value))
	}

	var sb strings.Builder
	sb.WriteString("query{")
	sb.WriteString(b.opts.DatasetName)
	sb.WriteString("(")
	sb.WriteString(strings.Join(args, ", "))
	sb.WriteString(") { totalCount, ")
	if b.opts.IsWithCursor {
		sb.WriteString("pageInfo { hasNextPage, hasPreviousPage, endCursor, startCursor }, edges { cursor }, ")
	}
	sb.WriteString("nodes { ")
	sb.WriteString(renderSelection(b.selectionFields()))
	sb.WriteString(" } }}")

	q.Text = sb.String()
	return q, nil
}

// cursorArgs renders first/last/after/before for cursor mode.
func (b *GraphQLBuilder) cursorArgs(page grid.Pagination) []string {
	size := strconv.Itoa(page.PageSize)
	c := page.Cursor
	if c == nil {
		return []string{"first:" + size}
	}
	if c.Last || c.Before != "" {
		args := []string{"last:" + size}
		if c.Before != "" {
			args = append(args, "before:"+graphqlString(c.Before))
		}
		return args
	}
	args := []string{"first:" + size}
	if c.After != "" {
		args = append(args, "after:"+graphqlString(c.After))
	}
	return args
}

// field renders a field name argument.
func (b *GraphQLBuilder) field(name string) string {
	if b.opts.KeepArgumentFieldDoubleQuotes {
		return graphqlString(name)
	}
	return name
}

// selectionFields returns the id property followed by the column fields, without duplicates.
func (b *GraphQLBuilder) selectionFields() []string {
	fields := []string{b.opts.IDProperty}
	seen := map[string]bool{b.opts.IDProperty: true}
	for _, f := range b.opts.Columns.Fields() {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	return fields
}

// filterValue joins list terms with ", " and returns the single term otherwise.
func filterValue(op grid.Operator, terms []string) string {
	if op.IsList() {
		return strings.Join(terms, ", ")
	}
	if len(terms) == 0 {
		return ""
	}
	return terms[0]
}

// selectionNode is one level of a nested field selection.
type selectionNode struct {
	name     string
	children []*selectionNode
}

func (n *selectionNode) child(name string) *selectionNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	c := &selectionNode{name: name}
	n.children = append(n.children, c)
	return c
}

// renderSelection folds dotted paths into nested selections:
// ["id", "billing.address.zip"] -> "id, billing { address { zip } }".
func renderSelection(fields []string) string {
	root := &selectionNode{}
	for _, f := range fields {
		n := root
		for _, part := range strings.Split(f, ".") {
			n = n.child(part)
		}
	}
	return renderChildren(root)
}

func renderChildren(n *selectionNode) string {
	parts := make([]string, 0, len(n.children))
	for _, c := range n.children {
		if len(c.children) == 0 {
			parts = append(parts, c.name)
			continue
		}
		parts = append(parts, c.name+" { "+renderChildren(c)+" }")
	}
	return strings.Join(parts, ", ")
}
