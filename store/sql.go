package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
)

// DefaultTable is the table used by SQLStore when none is configured.
const DefaultTable = "pagefetch_state"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps values in a single key/value table.
// The statements are portable across SQLite and DuckDB.
type SQLStore struct {
	db    *sql.DB
	table string

	getSQL    string
	putSQL    string
	deleteSQL string
}

// NewSQL creates a SQL store on db, creating the table if it does not exist.
// An empty table name uses DefaultTable. The caller owns db.
func NewSQL(ctx context.Context, db *sql.DB, table string) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("store: database handle is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("store: invalid table name %q", table)
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		state_key VARCHAR PRIMARY KEY,
		state_value BLOB NOT NULL
	)`, table)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return nil, fmt.Errorf("store: failed to create table %s: %w", table, err)
	}

	return &SQLStore{
		db:        db,
		table:     table,
		getSQL:    fmt.Sprintf(`SELECT state_value FROM %s WHERE state_key = ?`, table),
		putSQL:    fmt.Sprintf(`INSERT INTO %s (state_key, state_value) VALUES (?, ?) ON CONFLICT (state_key) DO UPDATE SET state_value = excluded.state_value`, table),
		deleteSQL: fmt.Sprintf(`DELETE FROM %s WHERE state_key = ?`, table),
	}, nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, s.getSQL, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to read %q: %w", key, err)
	}
	return v, nil
}

// Put implements Store.
func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, s.putSQL, key, value); err != nil {
		return fmt.Errorf("store: failed to write %q: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteSQL, key); err != nil {
		return fmt.Errorf("store: failed to delete %q: %w", key, err)
	}
	return nil
}
