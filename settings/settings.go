// Package settings loads negotiator configuration from a file and the
// environment, and builds the transport, query builder and state store it
// describes.
//
// Every key can be overridden by an environment variable with the PAGEFETCH_
// prefix, dots replaced by underscores (transport.endpoint becomes
// PAGEFETCH_TRANSPORT_ENDPOINT). PAGEFETCH_CONFIG names the config file when
// Load is called without a path.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hugr-lab/pagefetch"
	"github.com/hugr-lab/pagefetch/grid"
	"github.com/hugr-lab/pagefetch/query"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "PAGEFETCH"

// Transport kinds.
const (
	TransportHTTP   = "http"
	TransportFlight = "flight"
	TransportSQL    = "sql"
	TransportMock   = "mock"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreDuckDB = "duckdb"
)

// Codec names.
const (
	CodecJSON        = "json"
	CodecMsgpack     = "msgpack"
	CodecMsgpackZstd = "msgpack+zstd"
)

// ErrInvalidSettings is returned when loaded settings are inconsistent.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the file/env representation of a negotiator.
type Settings struct {
	Transport  TransportSettings  `mapstructure:"transport"`
	Query      QuerySettings      `mapstructure:"query"`
	Store      StoreSettings      `mapstructure:"store"`
	Negotiator NegotiatorSettings `mapstructure:"negotiator"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// TransportSettings selects and configures the transport.
type TransportSettings struct {
	// Kind is http, flight, sql or mock.
	Kind string `mapstructure:"kind"`

	// Endpoint is the GraphQL URL (http) or host:port (flight).
	Endpoint string `mapstructure:"endpoint"`

	// Token is sent as a bearer token when set.
	Token string `mapstructure:"token"`

	Headers map[string]string `mapstructure:"headers"`

	// Driver and DSN open the database of the sql transport.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	// MockDelay is the response delay of the mock transport.
	MockDelay time.Duration `mapstructure:"mock_delay"`
}

// QuerySettings configures the query builder.
type QuerySettings struct {
	// Dialect is graphql or sql.
	Dialect string `mapstructure:"dialect"`

	// Dataset is the GraphQL root field or SQL table.
	Dataset string `mapstructure:"dataset"`

	Columns []ColumnSettings `mapstructure:"columns"`

	WithCursor      bool   `mapstructure:"with_cursor"`
	Locale          string `mapstructure:"locale"`
	QuotedFields    bool   `mapstructure:"quoted_fields"`
	IDProperty      string `mapstructure:"id_property"`
	DefaultPageSize int    `mapstructure:"default_page_size"`
}

// ColumnSettings declares one grid column.
type ColumnSettings struct {
	ID    string `mapstructure:"id"`
	Field string `mapstructure:"field"`
	Name  string `mapstructure:"name"`
	Type  string `mapstructure:"type"`
}

// StoreSettings configures state persistence.
type StoreSettings struct {
	// Kind is memory, file, sqlite or duckdb.
	Kind string `mapstructure:"kind"`

	// Path is the directory (file) or database file (sqlite, duckdb).
	Path string `mapstructure:"path"`

	// Table holds entries of the SQL stores.
	Table string `mapstructure:"table"`

	// Codec is json, msgpack or msgpack+zstd.
	Codec string `mapstructure:"codec"`

	// Key is the persisted state key.
	Key string `mapstructure:"key"`
}

// NegotiatorSettings configures the negotiator itself.
type NegotiatorSettings struct {
	ExecuteOnInit  bool          `mapstructure:"execute_on_init"`
	PageSize       int           `mapstructure:"page_size"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	FetchInterval  time.Duration `mapstructure:"fetch_interval"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("transport.kind", TransportMock)
	v.SetDefault("transport.endpoint", "")
	v.SetDefault("transport.token", "")
	v.SetDefault("transport.headers", map[string]string{})
	v.SetDefault("transport.driver", "duckdb")
	v.SetDefault("transport.dsn", "")
	v.SetDefault("transport.mock_delay", "500ms")

	v.SetDefault("query.dialect", string(query.DialectGraphQL))
	v.SetDefault("query.dataset", "")
	v.SetDefault("query.with_cursor", false)
	v.SetDefault("query.locale", "")
	v.SetDefault("query.quoted_fields", false)
	v.SetDefault("query.id_property", "id")
	v.SetDefault("query.default_page_size", query.DefaultPageSize)

	v.SetDefault("store.kind", StoreMemory)
	v.SetDefault("store.path", "")
	v.SetDefault("store.table", "grid_state")
	v.SetDefault("store.codec", CodecJSON)
	v.SetDefault("store.key", pagefetch.DefaultStateKey)

	v.SetDefault("negotiator.execute_on_init", true)
	v.SetDefault("negotiator.page_size", 0)
	v.SetDefault("negotiator.fetch_timeout", "0s")
	v.SetDefault("negotiator.fetch_interval", "0s")
	v.SetDefault("negotiator.persist_timeout", pagefetch.DefaultPersistTimeout.String())
}

// Load reads settings from path (or PAGEFETCH_CONFIG when path is empty)
// and applies environment overrides. Without any file the defaults describe
// a mock transport with an in-memory store.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that the settings describe a buildable negotiator.
func (s *Settings) Validate() error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

func (s *Settings) validate() error {
	switch s.Transport.Kind {
	case TransportHTTP, TransportFlight:
		if s.Transport.Endpoint == "" {
			return fmt.Errorf("transport.endpoint is required for %s", s.Transport.Kind)
		}
	case TransportSQL:
		if s.Query.Dialect != string(query.DialectSQL) {
			return errors.New("sql transport requires the sql query dialect")
		}
	case TransportMock:
	default:
		return fmt.Errorf("unknown transport.kind %q", s.Transport.Kind)
	}

	switch query.Dialect(s.Query.Dialect) {
	case query.DialectGraphQL, query.DialectSQL:
	default:
		return fmt.Errorf("unknown query.dialect %q", s.Query.Dialect)
	}
	if s.Query.Dataset == "" {
		return errors.New("query.dataset is required")
	}
	if len(s.Query.Columns) == 0 {
		return errors.New("query.columns must declare at least one column")
	}
	if _, err := s.columns(); err != nil {
		return err
	}

	switch s.Store.Kind {
	case StoreMemory:
	case StoreFile, StoreSQLite, StoreDuckDB:
		if s.Store.Path == "" {
			return fmt.Errorf("store.path is required for %s", s.Store.Kind)
		}
	default:
		return fmt.Errorf("unknown store.kind %q", s.Store.Kind)
	}
	switch s.Store.Codec {
	case CodecJSON, CodecMsgpack, CodecMsgpackZstd:
	default:
		return fmt.Errorf("unknown store.codec %q", s.Store.Codec)
	}

	if _, err := s.logLevel(); err != nil {
		return err
	}
	return nil
}

// columns converts the declared columns.
func (s *Settings) columns() (grid.Columns, error) {
	cols := make(grid.Columns, 0, len(s.Query.Columns))
	seen := make(map[string]bool, len(s.Query.Columns))
	for i, c := range s.Query.Columns {
		if c.ID == "" {
			return nil, fmt.Errorf("query.columns[%d]: id is required", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("query.columns[%d]: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = true

		t := grid.FieldType(strings.ToLower(c.Type))
		switch t {
		case "", grid.FieldTypeString, grid.FieldTypeNumber, grid.FieldTypeBoolean, grid.FieldTypeDate:
		default:
			return nil, fmt.Errorf("query.columns[%d]: unknown type %q", i, c.Type)
		}
		cols = append(cols, grid.Column{ID: c.ID, Field: c.Field, Name: c.Name, Type: t})
	}
	return cols, nil
}
