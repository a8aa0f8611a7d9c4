package query

import (
	"math"
	"strconv"
	"strings"

	"github.com/hugr-lab/pagefetch/grid"
)

// SQLOptions configures the SQL query builder.
type SQLOptions struct {
	// Columns declares the grid columns.
	// REQUIRED.
	Columns grid.Columns

	// Table is the table or view to select from.
	// REQUIRED.
	Table string

	// ExtraQueryArguments are added as equality predicates.
	ExtraQueryArguments []Argument

	// FlattenNestedFields treats dotted fields as single column names
	// ("billing.address.zip" -> "billing.address.zip") instead of struct access
	// (billing.address.zip). Use it for engines without struct types (SQLite).
	FlattenNestedFields bool

	// IDProperty is selected on every row.
	// OPTIONAL: defaults to "id".
	IDProperty string

	// DefaultPageSize is used when the state has no page size.
	// OPTIONAL: defaults to DefaultPageSize.
	DefaultPageSize int
}

// SQLBuilder renders grid states as SELECT statements in the DuckDB dialect.
// The output is also valid SQLite when FlattenNestedFields is set.
type SQLBuilder struct {
	opts SQLOptions
}

// NewSQLBuilder creates a SQL query builder.
func NewSQLBuilder(opts SQLOptions) *SQLBuilder {
	if opts.IDProperty == "" {
		opts.IDProperty = "id"
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	return &SQLBuilder{opts: opts}
}

// Columns returns the declared columns.
func (b *SQLBuilder) Columns() grid.Columns {
	return b.opts.Columns
}

// Build renders the state as a SELECT statement with a matching count statement.
func (b *SQLBuilder) Build(state grid.State) (Query, error) {
	if b.opts.Table == "" {
		return Query{}, ErrMissingDataset
	}
	if err := state.Validate(b.opts.Columns); err != nil {
		return Query{}, err
	}
	if state.Pagination != nil && state.Pagination.Cursor != nil {
		return Query{}, ErrCursorUnsupported
	}

	page := state.Page(b.opts.DefaultPageSize)
	table := quoteIdentifier(b.opts.Table)
	where := b.where(state)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.selectList(), ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if len(state.Sorters) > 0 {
		sorts := make([]string, 0, len(state.Sorters))
		for _, s := range state.Sorters {
			col, _ := b.opts.Columns.Lookup(s.ColumnID)
			sorts = append(sorts, b.expr(col.FieldName())+" "+string(s.Direction))
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(sorts, ", "))
	}
	sb.WriteString(" LIMIT ")
	sb.WriteString(strconv.Itoa(page.PageSize))
	sb.WriteString(" OFFSET ")
	sb.WriteString(strconv.Itoa(page.Offset()))

	count := "SELECT count(*) FROM " + table
	if where != "" {
		count += " WHERE " + where
	}

	return Query{
		Dialect:   DialectSQL,
		Dataset:   b.opts.Table,
		Text:      sb.String(),
		CountText: count,
		PageSize:  page.PageSize,
		Offset:    page.Offset(),
	}, nil
}

// selectList returns the id property and column fields as select expressions.
func (b *SQLBuilder) selectList() []string {
	fields := []string{b.opts.IDProperty}
	seen := map[string]bool{b.opts.IDProperty: true}
	for _, f := range b.opts.Columns.Fields() {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}

	list := make([]string, 0, len(fields))
	for _, f := range fields {
		expr := b.expr(f)
		if strings.Contains(f, ".") && !b.opts.FlattenNestedFields {
			expr += ` AS "` + strings.ReplaceAll(f, `"`, `""`) + `"`
		}
		list = append(list, expr)
	}
	return list
}

// expr returns the SQL expression addressing a field path.
func (b *SQLBuilder) expr(field string) string {
	if b.opts.FlattenNestedFields {
		return quoteIdentifier(field)
	}
	return quoteFieldPath(field)
}

// where renders filters and extra arguments joined with AND.
func (b *SQLBuilder) where(state grid.State) string {
	var parts []string
	for _, f := range state.Filters {
		col, _ := b.opts.Columns.Lookup(f.ColumnID)
		parts = append(parts, b.predicate(col, f))
	}
	for _, a := range b.opts.ExtraQueryArguments {
		parts = append(parts, quoteIdentifier(a.Field)+" = "+sqlValue(a.Value))
	}

	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, ") AND (") + ")"
}

// predicate renders a single filter.
func (b *SQLBuilder) predicate(col grid.Column, f grid.Filter) string {
	op, terms := f.Resolve(col)
	left := b.expr(col.FieldName())

	term := ""
	if len(terms) > 0 {
		term = terms[0]
	}

	switch op {
	case grid.OpEqual:
		return left + " = " + literal(col, term)
	case grid.OpNotEqual:
		return left + " <> " + literal(col, term)
	case grid.OpGreaterThan:
		return left + " > " + literal(col, term)
	case grid.OpGreaterOrEqual:
		return left + " >= " + literal(col, term)
	case grid.OpLessThan:
		return left + " < " + literal(col, term)
	case grid.OpLessOrEqual:
		return left + " <= " + literal(col, term)
	case grid.OpContains:
		return like(col, left, "%"+escapeLike(term)+"%")
	case grid.OpStartsWith:
		return like(col, left, escapeLike(term)+"%")
	case grid.OpEndsWith:
		return like(col, left, "%"+escapeLike(term))
	case grid.OpIn, grid.OpNotIn:
		if len(terms) == 0 {
			if op == grid.OpIn {
				return "FALSE"
			}
			return "TRUE"
		}
		values := make([]string, 0, len(terms))
		for _, t := range terms {
			values = append(values, literal(col, t))
		}
		kw := " IN "
		if op == grid.OpNotIn {
			kw = " NOT IN "
		}
		return left + kw + "(" + strings.Join(values, ", ") + ")"
	default:
		return "TRUE"
	}
}

// like renders a LIKE predicate, casting non-string columns to text.
func like(col grid.Column, left, pattern string) string {
	if col.DataType() != grid.FieldTypeString {
		left = "CAST(" + left + " AS VARCHAR)"
	}
	return left + " LIKE " + quoteLiteral(pattern) + ` ESCAPE '\'`
}

// literal renders a search term according to the column type.
// Terms that do not parse as the column type, NaN and infinities included,
// are compared as strings.
func literal(col grid.Column, term string) string {
	switch col.DataType() {
	case grid.FieldTypeNumber:
		if f, err := strconv.ParseFloat(strings.TrimSpace(term), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return formatFloat(f)
		}
	case grid.FieldTypeBoolean:
		if v, err := strconv.ParseBool(strings.TrimSpace(term)); err == nil {
			return sqlValue(v)
		}
	}
	return quoteLiteral(term)
}
