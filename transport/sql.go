package transport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hugr-lab/pagefetch/query"
)

// SQLTransport executes SQL queries on a database/sql handle.
// The driver (DuckDB, SQLite, ...) is chosen by the caller.
type SQLTransport struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQL creates a SQL transport. The caller owns db.
func NewSQL(db *sql.DB, logger *slog.Logger) (*SQLTransport, error) {
	if db == nil {
		return nil, errors.New("transport: database handle is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLTransport{db: db, logger: logger}, nil
}

// Fetch implements Transport.
// Dotted column names ("billing.address.zip") are folded into nested nodes.
func (t *SQLTransport) Fetch(ctx context.Context, q query.Query) (*Result, error) {
	if q.Dialect != query.DialectSQL {
		return nil, NewError(KindBackendError, "sql", fmt.Errorf("unsupported query dialect %q", q.Dialect))
	}

	t.logger.Debug("SQL fetch", "dataset", q.Dataset, "query", q.Text)

	rows, err := t.db.QueryContext(ctx, q.Text)
	if err != nil {
		return nil, classifySQL(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classifySQL(ctx, err)
	}

	nodes := []Node{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classifySQL(ctx, err)
		}

		node := make(Node, len(cols))
		for i, c := range cols {
			setPath(node, c, sqlValue(values[i]))
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQL(ctx, err)
	}

	total := q.Offset + len(nodes)
	if q.CountText != "" {
		var n int64
		if err := t.db.QueryRowContext(ctx, q.CountText).Scan(&n); err != nil {
			return nil, classifySQL(ctx, err)
		}
		total = int(n)
	}

	return &Result{
		Nodes: nodes,
		PageInfo: PageInfo{
			HasNextPage:     q.Offset+len(nodes) < total,
			HasPreviousPage: q.Offset > 0,
		},
		TotalCount: total,
	}, nil
}

// setPath stores v in node under a dotted path, creating nested maps.
func setPath(node Node, path string, v any) {
	parts := strings.Split(path, ".")
	m := node
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

// sqlValue normalizes driver values.
func sqlValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// classifySQL reports context failures by kind and everything else as a backend error.
func classifySQL(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Classify("sql", ctxErr)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return NewError(KindNetworkFailure, "sql", err)
	}
	return Classify("sql", err)
}
