package query

import (
	"errors"

	"github.com/hugr-lab/pagefetch/grid"
)

// Dialect identifies the language of a built query.
type Dialect string

const (
	DialectGraphQL Dialect = "graphql"
	DialectSQL     Dialect = "sql"
)

// Query is a backend query built from a grid state.
// Immutable once built.
type Query struct {
	// Dialect is the query language of Text.
	Dialect Dialect

	// Dataset is the backend dataset (GraphQL field or table name).
	Dataset string

	// Text is the query document or statement.
	Text string

	// CountText counts all rows matching the filters (SQL only).
	CountText string

	// PageSize and Offset describe the requested page.
	// Offset is 0 in cursor mode.
	PageSize int
	Offset   int

	// WithCursor reports whether the query uses cursor-based pagination.
	WithCursor bool
}

// String returns the query text.
func (q Query) String() string {
	return q.Text
}

// Builder converts a grid state into a backend query.
// Implementations are pure: identical states produce identical queries.
type Builder interface {
	// Build validates the state against the builder's columns and renders the query.
	Build(state grid.State) (Query, error)

	// Columns returns the declared columns the builder validates against.
	Columns() grid.Columns
}

// Argument is an extra static query argument (e.g. userId: 123).
type Argument struct {
	Field string
	Value any
}

// DefaultPageSize is used when the state carries no page size.
const DefaultPageSize = 20

var (
	// ErrMissingDataset indicates the builder options carry no dataset name.
	ErrMissingDataset = errors.New("query: dataset name is required")

	// ErrCursorUnsupported indicates cursor pagination was requested from a builder that cannot express it.
	ErrCursorUnsupported = errors.New("query: cursor pagination is not supported by this dialect")
)
