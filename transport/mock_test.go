package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugr-lab/pagefetch/query"
)

func TestMockDefaultResult(t *testing.T) {
	m := NewMock(MockConfig{})

	res, err := m.Fetch(context.Background(), usersQuery())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.TotalCount != 100 || !res.PageInfo.HasNextPage || len(res.Nodes) != 0 {
		t.Errorf("unexpected default result %+v", res)
	}
	if m.Calls() != 1 || m.Queries()[0].Text != usersQuery().Text {
		t.Errorf("expected recorded query, got %v", m.Queries())
	}
}

func TestMockResultIsCopied(t *testing.T) {
	m := NewMock(MockConfig{Result: &Result{Nodes: []Node{{"id": 1}}, TotalCount: 1}})

	first, err := m.Fetch(context.Background(), usersQuery())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	first.Nodes = append(first.Nodes, Node{"id": 2})
	first.TotalCount = 2

	second, err := m.Fetch(context.Background(), usersQuery())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(second.Nodes) != 1 || second.TotalCount != 1 {
		t.Errorf("expected canned result unchanged, got %+v", second)
	}
}

func TestMockFailWith(t *testing.T) {
	m := NewMock(MockConfig{})
	m.FailWith(KindNetworkFailure, nil)

	_, err := m.Fetch(context.Background(), usersQuery())
	if !errors.Is(err, ErrNetworkFailure) {
		t.Errorf("expected ErrNetworkFailure, got %v", err)
	}

	m.FailWith(0, nil)
	if _, err := m.Fetch(context.Background(), usersQuery()); err != nil {
		t.Errorf("expected success after reset, got %v", err)
	}
}

func TestMockDelayHonorsContext(t *testing.T) {
	m := NewMock(MockConfig{Delay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Fetch(ctx, usersQuery())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("expected fetch to stop at the deadline")
	}

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = m.Fetch(ctx, usersQuery())
	if !errors.Is(err, ErrCanceled) {
		t.Errorf("expected ErrCanceled, got %v", err)
	}
}

func TestMockResponder(t *testing.T) {
	m := NewMock(MockConfig{
		Responder: func(ctx context.Context, q query.Query) (*Result, error) {
			return &Result{TotalCount: q.Offset}, nil
		},
	})

	res, err := m.Fetch(context.Background(), query.Query{Dataset: "users", Offset: 40})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.TotalCount != 40 {
		t.Errorf("expected 40, got %d", res.TotalCount)
	}
}

func TestFuncTransport(t *testing.T) {
	var tr Transport = Func(func(ctx context.Context, q query.Query) (*Result, error) {
		return &Result{TotalCount: 7}, nil
	})
	res, err := tr.Fetch(context.Background(), usersQuery())
	if err != nil || res.TotalCount != 7 {
		t.Errorf("expected 7, got %v, %v", res, err)
	}
}
