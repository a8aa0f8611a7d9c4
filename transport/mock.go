package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hugr-lab/pagefetch/query"
)

// DefaultMockDelay is the response delay of the demo backend.
const DefaultMockDelay = 500 * time.Millisecond

// DefaultMockResult returns the canned demo page: no nodes, a next page and 100 items in total.
func DefaultMockResult() *Result {
	return &Result{
		Nodes:      []Node{},
		PageInfo:   PageInfo{HasNextPage: true},
		TotalCount: 100,
	}
}

// MockConfig configures a MockTransport.
type MockConfig struct {
	// Result is returned by every successful fetch.
	// OPTIONAL: defaults to DefaultMockResult().
	Result *Result

	// Delay is waited before answering. Cancellation during the delay
	// fails the fetch with KindCanceled or KindTimeout.
	Delay time.Duration

	// Responder, when set, computes the answer instead of Result.
	Responder func(ctx context.Context, q query.Query) (*Result, error)
}

// MockTransport is a deterministic in-process Transport.
// It records every query it receives.
type MockTransport struct {
	mu        sync.Mutex
	result    *Result
	delay     time.Duration
	responder func(ctx context.Context, q query.Query) (*Result, error)
	failKind  Kind
	failErr   error
	queries   []query.Query
}

// NewMock creates a mock transport.
func NewMock(cfg MockConfig) *MockTransport {
	res := cfg.Result
	if res == nil {
		res = DefaultMockResult()
	}
	return &MockTransport{
		result:    res,
		delay:     cfg.Delay,
		responder: cfg.Responder,
	}
}

// SetResult replaces the canned result.
func (m *MockTransport) SetResult(res *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = res
}

// SetDelay replaces the response delay.
func (m *MockTransport) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FailWith makes subsequent fetches fail with the given kind.
// A zero kind restores successful answers.
func (m *MockTransport) FailWith(kind Kind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failKind = kind
	m.failErr = err
}

// Queries returns the queries received so far.
func (m *MockTransport) Queries() []query.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]query.Query, len(m.queries))
	copy(out, m.queries)
	return out
}

// Calls returns the number of fetches received.
func (m *MockTransport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

// Fetch implements Transport.
func (m *MockTransport) Fetch(ctx context.Context, q query.Query) (*Result, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	delay := m.delay
	res := m.result
	responder := m.responder
	failKind, failErr := m.failKind, m.failErr
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, Classify("mock", ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, Classify("mock", err)
	}

	if failKind != 0 {
		if failErr == nil {
			failErr = errors.New("mock failure")
		}
		return nil, NewError(failKind, "mock", failErr)
	}

	if responder != nil {
		return responder(ctx, q)
	}
	return cloneResult(res), nil
}

// cloneResult copies the result and its node slice.
func cloneResult(res *Result) *Result {
	if res == nil {
		return nil
	}
	out := *res
	out.Nodes = make([]Node, len(res.Nodes))
	copy(out.Nodes, res.Nodes)
	if res.Statistics != nil {
		s := *res.Statistics
		out.Statistics = &s
	}
	return &out
}
