package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/hugr-lab/pagefetch"
	"github.com/hugr-lab/pagefetch/auth"
	"github.com/hugr-lab/pagefetch/query"
	"github.com/hugr-lab/pagefetch/store"
	"github.com/hugr-lab/pagefetch/transport"
)

// Components is a negotiator configuration built from Settings together
// with the resources it owns.
type Components struct {
	// Config is ready for pagefetch.New. Presets, Hooks and Registerer are
	// left for the caller.
	Config pagefetch.Config

	closers []io.Closer
}

// Close releases transports, databases and codecs in reverse creation order.
func (c *Components) Close() error {
	var errs []error
	for _, cl := range slices.Backward(c.closers) {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Components) own(cl io.Closer) {
	c.closers = append(c.closers, cl)
}

// Build creates the builder, transport, store and codec described by s.
// If logger is nil, a text logger at s.LogLevel writing to stderr is used.
// On error every resource created so far is released.
func (s *Settings) Build(ctx context.Context, logger *slog.Logger) (_ *Components, err error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		level, _ := s.logLevel()
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	builder, err := s.builder()
	if err != nil {
		return nil, err
	}
	tr, err := s.transport(c, logger)
	if err != nil {
		return nil, err
	}
	st, err := s.store(ctx, c)
	if err != nil {
		return nil, err
	}
	codec, err := s.codec(c)
	if err != nil {
		return nil, err
	}

	c.Config = pagefetch.Config{
		Builder:         builder,
		Transport:       tr,
		Store:           st,
		Codec:           codec,
		StateKey:        s.Store.Key,
		ExecuteOnInit:   s.Negotiator.ExecuteOnInit,
		DefaultPageSize: s.Negotiator.PageSize,
		FetchTimeout:    s.Negotiator.FetchTimeout,
		FetchInterval:   s.Negotiator.FetchInterval,
		PersistTimeout:  s.Negotiator.PersistTimeout,
		Logger:          logger,
	}
	return c, nil
}

func (s *Settings) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

func (s *Settings) builder() (query.Builder, error) {
	cols, err := s.columns()
	if err != nil {
		return nil, err
	}
	q := s.Query

	if query.Dialect(q.Dialect) == query.DialectSQL {
		return query.NewSQLBuilder(query.SQLOptions{
			Columns:         cols,
			Table:           q.Dataset,
			IDProperty:      q.IDProperty,
			DefaultPageSize: q.DefaultPageSize,
		}), nil
	}
	return query.NewGraphQLBuilder(query.GraphQLOptions{
		Columns:                       cols,
		DatasetName:                   q.Dataset,
		IsWithCursor:                  q.WithCursor,
		AddLocaleIntoQuery:            q.Locale != "",
		Locale:                        q.Locale,
		KeepArgumentFieldDoubleQuotes: q.QuotedFields,
		IDProperty:                    q.IDProperty,
		DefaultPageSize:               q.DefaultPageSize,
	}), nil
}

func (s *Settings) token() auth.TokenSource {
	if s.Transport.Token == "" {
		return nil
	}
	return auth.StaticToken(s.Transport.Token)
}

func (s *Settings) transport(c *Components, logger *slog.Logger) (transport.Transport, error) {
	t := s.Transport
	switch t.Kind {
	case TransportHTTP:
		return transport.NewHTTP(transport.HTTPConfig{
			Endpoint: t.Endpoint,
			Token:    s.token(),
			Headers:  t.Headers,
			Logger:   logger,
		})
	case TransportFlight:
		ft, err := transport.NewFlight(transport.FlightConfig{
			Address: t.Endpoint,
			Token:   s.token(),
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		c.own(ft)
		return ft, nil
	case TransportSQL:
		db, err := sql.Open(t.Driver, t.DSN)
		if err != nil {
			return nil, fmt.Errorf("open %s database: %w", t.Driver, err)
		}
		c.own(db)
		return transport.NewSQL(db, logger)
	default:
		return transport.NewMock(transport.MockConfig{Delay: t.MockDelay}), nil
	}
}

func (s *Settings) store(ctx context.Context, c *Components) (store.Store, error) {
	st := s.Store
	switch st.Kind {
	case StoreFile:
		return store.NewFile(st.Path)
	case StoreSQLite, StoreDuckDB:
		db, err := sql.Open(st.Kind, st.Path)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", st.Kind, err)
		}
		c.own(db)
		return store.NewSQL(ctx, db, st.Table)
	default:
		return store.NewMemory(), nil
	}
}

func (s *Settings) codec(c *Components) (store.Codec, error) {
	name := strings.ToLower(s.Store.Codec)
	if name == CodecJSON {
		return store.JSONCodec{}, nil
	}
	mc, err := store.NewMsgpackCodec(name == CodecMsgpackZstd)
	if err != nil {
		return nil, err
	}
	c.own(mc)
	return mc, nil
}
