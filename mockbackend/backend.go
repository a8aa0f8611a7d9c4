// Package mockbackend is an over-the-wire stand-in for a remote query service.
//
// A Backend answers page requests after a configurable delay. It serves them
// as a GraphQL endpoint over HTTP (gin) and as an Arrow Flight DoGet service
// (gRPC), so transport.HTTPTransport and transport.FlightTransport can be
// exercised without a real backend.
package mockbackend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/pagefetch/auth"
	"github.com/hugr-lab/pagefetch/internal/recovery"
	"github.com/hugr-lab/pagefetch/transport"
)

// Request is a page request received by the backend.
type Request struct {
	// ID and Seq are the request metadata sent by the client, if any.
	ID  string
	Seq uint64

	// Identity is the authenticated caller ("" without authentication).
	Identity string

	Dataset  string
	Query    string
	PageSize int
	Offset   int
}

// Responder computes the page answering a request.
type Responder func(ctx context.Context, req Request) (*transport.Result, error)

// Canned returns a Responder that answers every request with res.
func Canned(res *transport.Result) Responder {
	return func(context.Context, Request) (*transport.Result, error) {
		return res, nil
	}
}

// Rows returns a Responder that pages over rows using the requested
// page size and offset. A zero page size returns all remaining rows.
func Rows(rows []transport.Node) Responder {
	return func(_ context.Context, req Request) (*transport.Result, error) {
		start := min(max(req.Offset, 0), len(rows))
		end := len(rows)
		if req.PageSize > 0 {
			end = min(start+req.PageSize, len(rows))
		}
		return &transport.Result{
			Nodes: append([]transport.Node{}, rows[start:end]...),
			PageInfo: transport.PageInfo{
				HasNextPage:     end < len(rows),
				HasPreviousPage: start > 0,
			},
			TotalCount: len(rows),
		}, nil
	}
}

// Config configures a Backend.
type Config struct {
	// Responder answers page requests.
	// OPTIONAL: defaults to Canned(transport.DefaultMockResult()).
	Responder Responder

	// Delay is waited before every answer.
	// OPTIONAL: zero answers immediately.
	Delay time.Duration

	// Auth validates bearer tokens on both endpoints.
	// OPTIONAL: no authentication when nil.
	Auth auth.Authenticator

	// Allocator for Flight record batches.
	// OPTIONAL: defaults to memory.DefaultAllocator.
	Allocator memory.Allocator

	// Logger for request logging.
	// OPTIONAL: defaults to slog.Default().
	Logger *slog.Logger
}

// Backend is a mock query service.
type Backend struct {
	responder Responder
	delay     time.Duration
	auth      auth.Authenticator
	alloc     memory.Allocator
	logger    *slog.Logger

	mu       sync.Mutex
	requests []Request
}

// New creates a Backend.
func New(cfg Config) *Backend {
	responder := cfg.Responder
	if responder == nil {
		responder = Canned(transport.DefaultMockResult())
	}
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		responder: responder,
		delay:     cfg.Delay,
		auth:      cfg.Auth,
		alloc:     alloc,
		logger:    logger,
	}
}

// Requests returns the requests received so far, oldest first.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// answer records req, waits for the delay and calls the responder.
func (b *Backend) answer(ctx context.Context, req Request) (*transport.Result, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	b.logger.Debug("Mock backend request",
		"request_id", req.ID,
		"seq", req.Seq,
		"dataset", req.Dataset,
		"page_size", req.PageSize,
		"offset", req.Offset,
	)

	if b.delay > 0 {
		t := time.NewTimer(b.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, transport.Classify("mock", ctx.Err())
		case <-t.C:
		}
	}

	res, err := recovery.RecoverToValue(b.logger, "mock responder", func() (*transport.Result, error) {
		return b.responder(ctx, req)
	})
	if err == nil && res == nil {
		err = fmt.Errorf("responder returned no result for %q", req.Dataset)
	}
	return res, err
}
