package settings_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hugr-lab/pagefetch"
	"github.com/hugr-lab/pagefetch/settings"
	"github.com/hugr-lab/pagefetch/store"
	"github.com/hugr-lab/pagefetch/transport"
)

const usersConfig = `
log_level: debug
transport:
  kind: mock
  mock_delay: 5ms
query:
  dialect: graphql
  dataset: users
  with_cursor: false
  columns:
    - id: name
      name: Name
    - id: gender
    - id: company
    - id: age
      type: number
store:
  kind: file
  codec: msgpack+zstd
  key: usersGrid
negotiator:
  execute_on_init: true
  fetch_timeout: 2s
  fetch_interval: 10ms
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeConfig writes a YAML config with store.path pointing into a temp dir.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	body = strings.Replace(body, "store:\n", "store:\n  path: "+filepath.Join(dir, "state")+"\n", 1)
	path := filepath.Join(dir, "pagefetch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAGEFETCH_CONFIG", "")
	t.Setenv("PAGEFETCH_QUERY_DATASET", "users")

	_, err := settings.Load("")
	if !errors.Is(err, settings.ErrInvalidSettings) {
		t.Fatalf("expected invalid settings without columns, got %v", err)
	}
	if !strings.Contains(err.Error(), "query.columns") {
		t.Errorf("expected columns error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	s, err := settings.Load(writeConfig(t, usersConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Transport.Kind != settings.TransportMock {
		t.Errorf("expected mock transport, got %q", s.Transport.Kind)
	}
	if s.Transport.MockDelay != 5*time.Millisecond {
		t.Errorf("expected mock delay 5ms, got %v", s.Transport.MockDelay)
	}
	if s.Query.Dataset != "users" {
		t.Errorf("expected dataset users, got %q", s.Query.Dataset)
	}
	if len(s.Query.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(s.Query.Columns))
	}
	if s.Query.Columns[0].Name != "Name" || s.Query.Columns[3].Type != "number" {
		t.Errorf("unexpected columns %+v", s.Query.Columns)
	}
	if s.Query.DefaultPageSize != 20 {
		t.Errorf("expected default page size 20, got %d", s.Query.DefaultPageSize)
	}
	if s.Store.Key != "usersGrid" || s.Store.Codec != settings.CodecMsgpackZstd {
		t.Errorf("unexpected store settings %+v", s.Store)
	}
	if s.Negotiator.FetchTimeout != 2*time.Second {
		t.Errorf("expected fetch timeout 2s, got %v", s.Negotiator.FetchTimeout)
	}
	if s.Negotiator.PersistTimeout != pagefetch.DefaultPersistTimeout {
		t.Errorf("expected default persist timeout, got %v", s.Negotiator.PersistTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, usersConfig)
	t.Setenv("PAGEFETCH_CONFIG", path)
	t.Setenv("PAGEFETCH_QUERY_DATASET", "customers")
	t.Setenv("PAGEFETCH_NEGOTIATOR_FETCH_TIMEOUT", "750ms")
	t.Setenv("PAGEFETCH_STORE_KIND", "memory")

	s, err := settings.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Query.Dataset != "customers" {
		t.Errorf("expected dataset customers, got %q", s.Query.Dataset)
	}
	if s.Negotiator.FetchTimeout != 750*time.Millisecond {
		t.Errorf("expected fetch timeout 750ms, got %v", s.Negotiator.FetchTimeout)
	}
	if s.Store.Kind != settings.StoreMemory {
		t.Errorf("expected memory store, got %q", s.Store.Kind)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := settings.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validSettings() settings.Settings {
	return settings.Settings{
		LogLevel:  "info",
		Transport: settings.TransportSettings{Kind: settings.TransportMock},
		Query: settings.QuerySettings{
			Dialect: "graphql",
			Dataset: "users",
			Columns: []settings.ColumnSettings{{ID: "name"}, {ID: "gender"}},
		},
		Store: settings.StoreSettings{Kind: settings.StoreMemory, Codec: settings.CodecJSON},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *settings.Settings)
		errMsg string
	}{
		{"Valid", func(s *settings.Settings) {}, ""},
		{"UnknownTransport", func(s *settings.Settings) { s.Transport.Kind = "smtp" }, "transport.kind"},
		{"HTTPWithoutEndpoint", func(s *settings.Settings) { s.Transport.Kind = settings.TransportHTTP }, "transport.endpoint"},
		{"SQLTransportWithGraphQL", func(s *settings.Settings) { s.Transport.Kind = settings.TransportSQL }, "sql query dialect"},
		{"UnknownDialect", func(s *settings.Settings) { s.Query.Dialect = "cypher" }, "query.dialect"},
		{"MissingDataset", func(s *settings.Settings) { s.Query.Dataset = "" }, "query.dataset"},
		{"DuplicateColumn", func(s *settings.Settings) {
			s.Query.Columns = append(s.Query.Columns, settings.ColumnSettings{ID: "name"})
		}, "duplicate id"},
		{"UnknownColumnType", func(s *settings.Settings) { s.Query.Columns[0].Type = "geometry" }, "unknown type"},
		{"FileStoreWithoutPath", func(s *settings.Settings) { s.Store.Kind = settings.StoreFile }, "store.path"},
		{"UnknownCodec", func(s *settings.Settings) { s.Store.Codec = "gob" }, "store.codec"},
		{"UnknownLogLevel", func(s *settings.Settings) { s.LogLevel = "loud" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Fatalf("expected valid settings, got %v", err)
				}
				return
			}
			if !errors.Is(err, settings.ErrInvalidSettings) {
				t.Fatalf("expected ErrInvalidSettings, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestBuildNegotiator(t *testing.T) {
	s, err := settings.Load(writeConfig(t, usersConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ctx := context.Background()
	c, err := s.Build(ctx, quietLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})

	if _, ok := c.Config.Transport.(*transport.MockTransport); !ok {
		t.Errorf("expected mock transport, got %T", c.Config.Transport)
	}
	if _, ok := c.Config.Store.(*store.FileStore); !ok {
		t.Errorf("expected file store, got %T", c.Config.Store)
	}
	if _, ok := c.Config.Codec.(*store.MsgpackCodec); !ok {
		t.Errorf("expected msgpack codec, got %T", c.Config.Codec)
	}

	n, err := pagefetch.New(c.Config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	call, err := n.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := call.Wait(ctx); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if got := n.CurrentQuery().Text; !strings.Contains(got, "users(") {
		t.Errorf("expected users query, got %s", got)
	}
	if err := n.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := c.Config.Store.Get(ctx, "usersGrid"); err != nil {
		t.Errorf("expected state persisted under usersGrid, got %v", err)
	}
}

func TestBuildStores(t *testing.T) {
	tests := []struct {
		kind string
		file string
	}{
		{settings.StoreSQLite, "state.db"},
		{settings.StoreDuckDB, "state.duckdb"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			s := validSettings()
			s.Store = settings.StoreSettings{
				Kind:  tt.kind,
				Path:  filepath.Join(t.TempDir(), tt.file),
				Table: "grid_state",
				Codec: settings.CodecJSON,
				Key:   pagefetch.DefaultStateKey,
			}

			ctx := context.Background()
			c, err := s.Build(ctx, quietLogger())
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			defer c.Close()

			if _, ok := c.Config.Store.(*store.SQLStore); !ok {
				t.Fatalf("expected SQL store, got %T", c.Config.Store)
			}
			if err := c.Config.Store.Put(ctx, "k", []byte("v")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			got, err := c.Config.Store.Get(ctx, "k")
			if err != nil || string(got) != "v" {
				t.Errorf("expected v, got %q (%v)", got, err)
			}
		})
	}
}

func TestBuildTransports(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *settings.Settings)
		check  func(t *testing.T, tr transport.Transport)
	}{
		{
			name: "HTTP",
			mutate: func(s *settings.Settings) {
				s.Transport.Kind = settings.TransportHTTP
				s.Transport.Endpoint = "http://localhost:8080/graphql"
				s.Transport.Token = "secret"
			},
			check: func(t *testing.T, tr transport.Transport) {
				if _, ok := tr.(*transport.HTTPTransport); !ok {
					t.Errorf("expected HTTP transport, got %T", tr)
				}
			},
		},
		{
			name: "Flight",
			mutate: func(s *settings.Settings) {
				s.Transport.Kind = settings.TransportFlight
				s.Transport.Endpoint = "localhost:50051"
			},
			check: func(t *testing.T, tr transport.Transport) {
				if _, ok := tr.(*transport.FlightTransport); !ok {
					t.Errorf("expected Flight transport, got %T", tr)
				}
			},
		},
		{
			name: "SQL",
			mutate: func(s *settings.Settings) {
				s.Transport.Kind = settings.TransportSQL
				s.Transport.Driver = "duckdb"
				s.Query.Dialect = "sql"
			},
			check: func(t *testing.T, tr transport.Transport) {
				if _, ok := tr.(*transport.SQLTransport); !ok {
					t.Errorf("expected SQL transport, got %T", tr)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)
			c, err := s.Build(context.Background(), quietLogger())
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			defer c.Close()
			tt.check(t, c.Config.Transport)
		})
	}
}
