package pagefetch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hugr-lab/pagefetch/grid"
	"github.com/hugr-lab/pagefetch/query"
	"github.com/hugr-lab/pagefetch/store"
	"github.com/hugr-lab/pagefetch/transport"
)

// DefaultStateKey is the store key the grid state is persisted under.
const DefaultStateKey = "gridStateGraphql"

// DefaultPersistTimeout bounds a single background persistence write.
const DefaultPersistTimeout = 5 * time.Second

// Config contains configuration for a Negotiator.
type Config struct {
	// Builder converts grid state into backend queries.
	// REQUIRED: MUST NOT be nil.
	Builder query.Builder

	// Transport sends built queries to the backend.
	// REQUIRED unless Pipeline is set.
	Transport transport.Transport

	// Pipeline replaces the default transport pipeline.
	// OPTIONAL: when set, Transport and FetchInterval are ignored.
	// Hooks still run around the pipeline's Process stage.
	Pipeline Pipeline

	// Hooks observe the start and end of every fetch.
	// OPTIONAL.
	Hooks []Hooks

	// Store persists the grid state.
	// OPTIONAL: uses an in-memory store if nil.
	Store store.Store

	// Codec serializes the grid state for the store.
	// OPTIONAL: uses store.JSONCodec if nil.
	Codec store.Codec

	// StateKey is the store key of the persisted state.
	// OPTIONAL: defaults to DefaultStateKey.
	StateKey string

	// Presets is the initial state used when nothing is persisted.
	// OPTIONAL: filters and sorters MUST reference the builder's columns.
	Presets *grid.State

	// ExecuteOnInit issues the initial fetch from Start.
	ExecuteOnInit bool

	// DefaultPageSize is used by page navigation when the state carries no page size.
	// OPTIONAL: defaults to the builder's page size.
	DefaultPageSize int

	// FetchTimeout bounds a single fetch.
	// OPTIONAL: if 0, only the caller's context bounds the fetch.
	FetchTimeout time.Duration

	// FetchInterval is the minimum interval between two dispatched fetches.
	// Fetches issued faster wait inside the transport stage.
	// OPTIONAL: if 0, fetches are not rate limited.
	FetchInterval time.Duration

	// PersistTimeout bounds a single background persistence write.
	// OPTIONAL: defaults to DefaultPersistTimeout.
	PersistTimeout time.Duration

	// Registerer receives the negotiator's Prometheus collectors.
	// OPTIONAL: if nil, metrics are disabled.
	// Registering two negotiators on one Registerer panics; wrap it with
	// prometheus.WrapRegistererWith to tell them apart.
	Registerer prometheus.Registerer

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	// Note: If LogLevel is specified, a new logger will be created with that level.
	Logger *slog.Logger

	// LogLevel sets the logging level.
	// OPTIONAL: If nil, uses Info level.
	// If Logger is also provided, LogLevel is ignored (use pre-configured logger).
	LogLevel *slog.Level
}

// Standard errors returned by the pagefetch package.
var (
	// ErrInvalidConfig indicates Config validation failed.
	ErrInvalidConfig = errors.New("invalid negotiator config")

	// ErrClosed is returned by operations on a closed negotiator.
	ErrClosed = errors.New("negotiator closed")

	// ErrNotStarted is returned by user actions issued before Start.
	ErrNotStarted = errors.New("negotiator not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("negotiator already started")

	// ErrCursorPagination indicates a page-number operation in cursor mode.
	ErrCursorPagination = errors.New("page numbers are not available with cursor pagination")

	// ErrPageOutOfRange indicates a page navigation beyond the known pages.
	ErrPageOutOfRange = errors.New("page out of range")
)

// validateConfig checks that required Config fields are valid.
func validateConfig(config Config) error {
	if config.Builder == nil {
		return fmt.Errorf("builder is required")
	}
	if config.Transport == nil && config.Pipeline == nil {
		return fmt.Errorf("transport or pipeline is required")
	}
	if config.DefaultPageSize < 0 {
		return fmt.Errorf("default page size must not be negative, got %d", config.DefaultPageSize)
	}
	if config.FetchTimeout < 0 || config.FetchInterval < 0 || config.PersistTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if config.Presets != nil {
		if err := config.Presets.Validate(config.Builder.Columns()); err != nil {
			return fmt.Errorf("presets: %w", err)
		}
	}
	return nil
}

// newLogger returns the configured logger, creating one at LogLevel if needed.
func newLogger(config Config) *slog.Logger {
	if config.Logger != nil {
		return config.Logger
	}
	if config.LogLevel != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: *config.LogLevel}))
	}
	return slog.Default()
}
