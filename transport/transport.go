package transport

import (
	"context"
	"time"

	"github.com/hugr-lab/pagefetch/query"
)

// Node is a single dataset row keyed by field name.
// Nested fields are nested maps.
type Node = map[string]any

// PageInfo describes the position of a page in the dataset.
type PageInfo struct {
	HasNextPage     bool   `json:"hasNextPage"`
	HasPreviousPage bool   `json:"hasPreviousPage"`
	StartCursor     string `json:"startCursor,omitempty"`
	EndCursor       string `json:"endCursor,omitempty"`
}

// Statistics describe a completed fetch.
type Statistics struct {
	StartTime      time.Time      `json:"startTime"`
	EndTime        time.Time      `json:"endTime"`
	ExecutionTime  time.Duration  `json:"executionTime"`
	ItemCount      int            `json:"itemCount"`
	TotalItemCount int            `json:"totalItemCount"`
	Aggregates     map[string]any `json:"aggregates,omitempty"`
}

// Result is one page of data returned by a backend.
// A result replaces the previous one wholesale.
type Result struct {
	Nodes      []Node      `json:"nodes"`
	PageInfo   PageInfo    `json:"pageInfo"`
	TotalCount int         `json:"totalCount"`
	Statistics *Statistics `json:"statistics,omitempty"`
}

// Transport sends a built query to a backend and returns one page.
//
// Implementations MUST be goroutine-safe, MUST honor ctx cancellation and
// deadlines, and SHOULD return *Error so callers can classify failures.
// Transports never retry.
type Transport interface {
	Fetch(ctx context.Context, q query.Query) (*Result, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, q query.Query) (*Result, error)

// Fetch implements Transport.
func (f Func) Fetch(ctx context.Context, q query.Query) (*Result, error) {
	return f(ctx, q)
}
