package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/hugr-lab/pagefetch/grid"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to open SQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	fileStore, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}

	sqliteStore, err := NewSQL(ctx, openSQLite(t), "")
	if err != nil {
		t.Fatalf("NewSQL(sqlite) failed: %v", err)
	}

	duck, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open DuckDB: %v", err)
	}
	t.Cleanup(func() { duck.Close() })
	duckStore, err := NewSQL(ctx, duck, "grid_state")
	if err != nil {
		t.Fatalf("NewSQL(duckdb) failed: %v", err)
	}

	return map[string]Store{
		"memory": NewMemory(),
		"file":   fileStore,
		"sqlite": sqliteStore,
		"duckdb": duckStore,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "gridStateGraphql"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := s.Put(ctx, "gridStateGraphql", []byte(`{"filters":[]}`)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := s.Put(ctx, "gridStateGraphql", []byte(`{"sorters":[]}`)); err != nil {
				t.Fatalf("second Put failed: %v", err)
			}

			v, err := s.Get(ctx, "gridStateGraphql")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(v) != `{"sorters":[]}` {
				t.Errorf("expected last write, got %q", v)
			}

			if err := s.Delete(ctx, "gridStateGraphql"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := s.Get(ctx, "gridStateGraphql"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
			if err := s.Delete(ctx, "gridStateGraphql"); err != nil {
				t.Errorf("expected deleting a missing key to succeed, got %v", err)
			}
		})
	}
}

func TestStoreKeysAreIndependent(t *testing.T) {
	ctx := context.Background()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			keys := []string{"grid/a", "grid b", "../escape"}
			for _, k := range keys {
				if err := s.Put(ctx, k, []byte(k)); err != nil {
					t.Fatalf("Put(%q) failed: %v", k, err)
				}
			}
			for _, k := range keys {
				v, err := s.Get(ctx, k)
				if err != nil {
					t.Fatalf("Get(%q) failed: %v", k, err)
				}
				if string(v) != k {
					t.Errorf("expected %q, got %q", k, v)
				}
			}
		})
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	value := []byte("abc")
	if err := s.Put(ctx, "k", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	value[0] = 'x'

	v, _ := s.Get(ctx, "k")
	if string(v) != "abc" {
		t.Errorf("expected stored copy 'abc', got %q", v)
	}
	v[1] = 'y'
	v2, _ := s.Get(ctx, "k")
	if string(v2) != "abc" {
		t.Errorf("expected returned copy, got %q", v2)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 key, got %d", s.Len())
	}
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewMemory().Put(ctx, "k", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFileStoreConcurrentPut(t *testing.T) {
	ctx := context.Background()
	s, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Put(ctx, "k", []byte(`{"pagination":{"pageNumber":1,"pageSize":20}}`)); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}()
	}
	wg.Wait()

	v, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v) != `{"pagination":{"pageNumber":1,"pageSize":20}}` {
		t.Errorf("unexpected value %q", v)
	}
}

func TestNewSQLRejectsBadTable(t *testing.T) {
	if _, err := NewSQL(context.Background(), openSQLite(t), "state; DROP TABLE x"); err == nil {
		t.Error("expected error for invalid table name")
	}
	if _, err := NewSQL(context.Background(), nil, ""); err == nil {
		t.Error("expected error for nil db")
	}
}

func presetState() grid.State {
	return grid.State{
		Filters: []grid.Filter{
			{ColumnID: "gender", Operator: grid.OpEqual, SearchTerms: []string{"male"}},
			{ColumnID: "name", Operator: grid.OpContains, SearchTerms: []string{"John Doe"}},
			{ColumnID: "company", Operator: grid.OpIn, SearchTerms: []string{"xyz"}},
		},
		Sorters: []grid.Sorter{
			{ColumnID: "name", Direction: grid.SortAsc},
			{ColumnID: "company", Direction: grid.SortDesc},
		},
		Pagination: &grid.Pagination{PageNumber: 2, PageSize: 20},
	}
}

func TestCodecs(t *testing.T) {
	plain, err := NewMsgpackCodec(false)
	if err != nil {
		t.Fatalf("NewMsgpackCodec failed: %v", err)
	}
	defer plain.Close()

	compressed, err := NewMsgpackCodec(true)
	if err != nil {
		t.Fatalf("NewMsgpackCodec failed: %v", err)
	}
	defer compressed.Close()

	codecs := map[string]Codec{
		"json":         JSONCodec{},
		"msgpack":      plain,
		"msgpack+zstd": compressed,
	}

	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			data, err := c.Encode(presetState())
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			got, err := c.Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !reflect.DeepEqual(*got, presetState()) {
				t.Errorf("expected %+v, got %+v", presetState(), *got)
			}
		})
	}
}

func TestJSONCodecFormat(t *testing.T) {
	data, err := JSONCodec{}.Encode(grid.State{
		Filters:    []grid.Filter{{ColumnID: "gender", Operator: grid.OpEqual, SearchTerms: []string{"male"}}},
		Pagination: &grid.Pagination{PageNumber: 2, PageSize: 20},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	expected := `{"filters":[{"columnId":"gender","operator":"EQ","searchTerms":["male"]}],"pagination":{"pageNumber":2,"pageSize":20}}`
	if string(data) != expected {
		t.Errorf("expected %s, got %s", expected, data)
	}
}

func TestMsgpackCodecReadsUncompressed(t *testing.T) {
	plain, err := NewMsgpackCodec(false)
	if err != nil {
		t.Fatalf("NewMsgpackCodec failed: %v", err)
	}
	defer plain.Close()

	compressed, err := NewMsgpackCodec(true)
	if err != nil {
		t.Fatalf("NewMsgpackCodec failed: %v", err)
	}
	defer compressed.Close()

	data, err := plain.Encode(presetState())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := compressed.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(*got, presetState()) {
		t.Errorf("expected %+v, got %+v", presetState(), *got)
	}

	empty, err := compressed.Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil) failed: %v", err)
	}
	if !reflect.DeepEqual(*empty, grid.State{}) {
		t.Errorf("expected empty state, got %+v", *empty)
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	if _, err := (JSONCodec{}).Decode([]byte("{not json")); err == nil {
		t.Error("expected JSON decode error")
	}

	c, err := NewMsgpackCodec(false)
	if err != nil {
		t.Fatalf("NewMsgpackCodec failed: %v", err)
	}
	defer c.Close()
	if _, err := c.Decode([]byte{0xc1, 0x00}); err == nil {
		t.Error("expected MessagePack decode error")
	}
}
