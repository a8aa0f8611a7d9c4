package query

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/hugr-lab/pagefetch/grid"
)

func TestSQLBuild(t *testing.T) {
	b := NewSQLBuilder(SQLOptions{Columns: usersColumns(), Table: "users"})

	q, err := b.Build(usersState())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expected := `SELECT id, name, gender, company FROM users WHERE (gender = 'male') AND (name LIKE '%John Doe%' ESCAPE '\') ORDER BY name ASC LIMIT 20 OFFSET 20`
	if q.Text != expected {
		t.Errorf("expected\n%s\ngot\n%s", expected, q.Text)
	}
	expectedCount := `SELECT count(*) FROM users WHERE (gender = 'male') AND (name LIKE '%John Doe%' ESCAPE '\')`
	if q.CountText != expectedCount {
		t.Errorf("expected\n%s\ngot\n%s", expectedCount, q.CountText)
	}
	if q.Dialect != DialectSQL {
		t.Errorf("expected dialect %q, got %q", DialectSQL, q.Dialect)
	}
}

func TestSQLBuildPredicates(t *testing.T) {
	cols := grid.Columns{
		{ID: "name"},
		{ID: "age", Type: grid.FieldTypeNumber},
		{ID: "active", Type: grid.FieldTypeBoolean},
		{ID: "zip", Field: "billing.address.zip", Type: grid.FieldTypeNumber},
	}
	b := NewSQLBuilder(SQLOptions{Columns: cols, Table: "users"})

	tests := []struct {
		name     string
		filter   grid.Filter
		expected string
	}{
		{"equal number", grid.Filter{ColumnID: "age", SearchTerms: []string{"42"}}, "age = 42"},
		{"greater or equal prefix", grid.Filter{ColumnID: "age", SearchTerms: []string{">=18"}}, "age >= 18"},
		{"not equal", grid.Filter{ColumnID: "age", Operator: grid.OpNotEqual, SearchTerms: []string{"1.5"}}, "age <> 1.5"},
		{"less than", grid.Filter{ColumnID: "age", Operator: grid.OpLessThan, SearchTerms: []string{"65"}}, "age < 65"},
		{"boolean", grid.Filter{ColumnID: "active", SearchTerms: []string{"true"}}, "active = TRUE"},
		{"non numeric term", grid.Filter{ColumnID: "age", Operator: grid.OpEqual, SearchTerms: []string{"abc"}}, "age = 'abc'"},
		{"NaN term", grid.Filter{ColumnID: "age", Operator: grid.OpEqual, SearchTerms: []string{"NaN"}}, "age = 'NaN'"},
		{"infinite term", grid.Filter{ColumnID: "age", Operator: grid.OpGreaterThan, SearchTerms: []string{"+Inf"}}, "age > '+Inf'"},
		{"contains default", grid.Filter{ColumnID: "name", SearchTerms: []string{"Jo"}}, `name LIKE '%Jo%' ESCAPE '\'`},
		{"starts with", grid.Filter{ColumnID: "name", SearchTerms: []string{"Jo*"}}, `name LIKE 'Jo%' ESCAPE '\'`},
		{"ends with", grid.Filter{ColumnID: "name", SearchTerms: []string{"*oe"}}, `name LIKE '%oe' ESCAPE '\'`},
		{"like escapes wildcards", grid.Filter{ColumnID: "name", Operator: grid.OpContains, SearchTerms: []string{"50%_off"}}, `name LIKE '%50\%\_off%' ESCAPE '\'`},
		{"quote escaping", grid.Filter{ColumnID: "name", Operator: grid.OpEqual, SearchTerms: []string{"O'Brien"}}, "name = 'O''Brien'"},
		{"contains on number", grid.Filter{ColumnID: "age", Operator: grid.OpContains, SearchTerms: []string{"4"}}, `CAST(age AS VARCHAR) LIKE '%4%' ESCAPE '\'`},
		{"in", grid.Filter{ColumnID: "name", SearchTerms: []string{"a", "b"}}, "name IN ('a', 'b')"},
		{"not in", grid.Filter{ColumnID: "age", Operator: grid.OpNotIn, SearchTerms: []string{"1", "2"}}, "age NOT IN (1, 2)"},
		{"empty in", grid.Filter{ColumnID: "name", Operator: grid.OpIn}, "FALSE"},
		{"nested field", grid.Filter{ColumnID: "zip", SearchTerms: []string{"12345"}}, "billing.address.zip = 12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := b.Build(grid.State{Filters: []grid.Filter{tt.filter}})
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			expected := `SELECT id, name, age, active, billing.address.zip AS "billing.address.zip" FROM users WHERE ` +
				tt.expected + " LIMIT 20 OFFSET 0"
			if q.Text != expected {
				t.Errorf("expected\n%s\ngot\n%s", expected, q.Text)
			}
		})
	}
}

func TestSQLBuildFlattenNestedFields(t *testing.T) {
	b := NewSQLBuilder(SQLOptions{
		Columns:             grid.Columns{{ID: "zip", Field: "billing.address.zip", Type: grid.FieldTypeNumber}},
		Table:               "users",
		FlattenNestedFields: true,
		ExtraQueryArguments: []Argument{{Field: "userId", Value: 123}},
	})

	q, err := b.Build(grid.State{
		Sorters:    []grid.Sorter{{ColumnID: "zip", Direction: grid.SortDesc}},
		Pagination: &grid.Pagination{PageNumber: 3, PageSize: 10},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expected := `SELECT id, "billing.address.zip" FROM users WHERE userId = 123 ORDER BY "billing.address.zip" DESC LIMIT 10 OFFSET 20`
	if q.Text != expected {
		t.Errorf("expected\n%s\ngot\n%s", expected, q.Text)
	}
}

func TestSQLBuildQuotesReservedTable(t *testing.T) {
	b := NewSQLBuilder(SQLOptions{Columns: grid.Columns{{ID: "order"}}, Table: "select"})

	q, err := b.Build(grid.State{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expected := `SELECT id, "order" FROM "select" LIMIT 20 OFFSET 0`
	if q.Text != expected {
		t.Errorf("expected\n%s\ngot\n%s", expected, q.Text)
	}
}

func TestSQLBuildRejectsCursor(t *testing.T) {
	b := NewSQLBuilder(SQLOptions{Columns: usersColumns(), Table: "users"})

	_, err := b.Build(grid.State{
		Pagination: &grid.Pagination{PageNumber: 1, PageSize: 20, Cursor: &grid.Cursor{After: "x"}},
	})
	if !errors.Is(err, ErrCursorUnsupported) {
		t.Errorf("expected ErrCursorUnsupported, got %v", err)
	}
}

func TestSQLBuildInvalidColumn(t *testing.T) {
	b := NewSQLBuilder(SQLOptions{Columns: usersColumns(), Table: "users"})

	_, err := b.Build(grid.State{Filters: []grid.Filter{{ColumnID: "missing"}}})
	if !errors.Is(err, grid.ErrInvalidColumnReference) {
		t.Errorf("expected ErrInvalidColumnReference, got %v", err)
	}
}

func TestSQLBuildExecutesOnDuckDB(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open DuckDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE users (id INTEGER, name VARCHAR, gender VARCHAR, company VARCHAR, billing STRUCT(address STRUCT(zip INTEGER)))`,
		`INSERT INTO users VALUES
			(1, 'John Doe', 'male', 'xyz', {'address': {'zip': 10001}}),
			(2, 'Jane Doe', 'female', 'abc', {'address': {'zip': 10002}}),
			(3, 'John Doer', 'male', 'xyz', {'address': {'zip': 20001}}),
			(4, 'Bob', 'male', 'abc', {'address': {'zip': 30001}})`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
	}

	cols := append(usersColumns(), grid.Column{ID: "zip", Field: "billing.address.zip", Type: grid.FieldTypeNumber})
	b := NewSQLBuilder(SQLOptions{Columns: cols, Table: "users"})

	q, err := b.Build(grid.State{
		Filters: []grid.Filter{
			{ColumnID: "gender", Operator: grid.OpEqual, SearchTerms: []string{"male"}},
			{ColumnID: "name", Operator: grid.OpContains, SearchTerms: []string{"John Doe"}},
			{ColumnID: "zip", SearchTerms: []string{"<30000"}},
		},
		Sorters:    []grid.Sorter{{ColumnID: "name", Direction: grid.SortDesc}},
		Pagination: &grid.Pagination{PageNumber: 1, PageSize: 1},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var total int
	if err := db.QueryRowContext(ctx, q.CountText).Scan(&total); err != nil {
		t.Fatalf("count query failed: %v\n%s", err, q.CountText)
	}
	if total != 2 {
		t.Errorf("expected total 2, got %d", total)
	}

	rows, err := db.QueryContext(ctx, q.Text)
	if err != nil {
		t.Fatalf("query failed: %v\n%s", err, q.Text)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var (
			id                    int
			name, gender, company string
			zip                   int
		)
		if err := rows.Scan(&id, &name, &gender, &company, &zip); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 3 {
		t.Errorf("expected [3], got %v", ids)
	}
}
