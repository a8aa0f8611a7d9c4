// Package query builds backend queries from grid state.
//
// A Builder validates a grid.State against its declared columns and renders
// it deterministically. Two dialects are provided:
//
//   - GraphQLBuilder renders the dataset query sent to GraphQL backends
//   - SQLBuilder renders DuckDB SQL (SQLite-compatible with FlattenNestedFields)
//
// # GraphQL
//
//	b := query.NewGraphQLBuilder(query.GraphQLOptions{
//	    Columns:     columns,
//	    DatasetName: "users",
//	    ExtraQueryArguments: []query.Argument{{Field: "userId", Value: 123}},
//	    KeepArgumentFieldDoubleQuotes: true,
//	})
//	q, err := b.Build(state)
//
// produces
//
//	query{users(first:20, offset:20, orderBy:[{field:"name", direction:ASC}],
//	  filterBy:[{field:"gender", operator:EQ, value:"male"}], userId:123)
//	  { totalCount, nodes { id, name, gender } }}
//
// With IsWithCursor the pagination arguments become first/after or
// last/before, taken from grid.Pagination.Cursor, and the selection adds
// pageInfo and edges cursors.
//
// # SQL
//
// SQLBuilder renders SELECT ... WHERE ... ORDER BY ... LIMIT ... OFFSET with a
// matching count(*) statement in Query.CountText. Identifiers are quoted when
// needed, values are rendered as literals according to the column type and
// contains/startsWith/endsWith become LIKE patterns with escaped wildcards.
// Cursor pagination is not supported (ErrCursorUnsupported).
//
// # Errors
//
// Build fails with grid.ErrInvalidColumnReference when a filter or sorter
// references an undeclared column, and with ErrMissingDataset when no dataset
// is configured.
package query
