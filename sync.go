package pagefetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugr-lab/pagefetch/grid"
	"github.com/hugr-lab/pagefetch/internal/recovery"
	"github.com/hugr-lab/pagefetch/store"
	"github.com/hugr-lab/pagefetch/transport"
)

// View is the applied dataset of a grid.
type View struct {
	// Seq is the sequence number of the applied result, 0 before the first one.
	Seq uint64

	Nodes      []transport.Node
	TotalCount int
	PageInfo   transport.PageInfo
	Statistics *transport.Statistics

	// Err is the failure of the latest fetch, cleared by the next applied result.
	// A failed fetch leaves the dataset of the previous result in place.
	Err error

	// Status is the fetch indicator state when the view was taken.
	Status Status
}

// SynchronizerConfig configures a Synchronizer.
type SynchronizerConfig struct {
	// Store persists the grid state.
	// OPTIONAL: uses an in-memory store if nil.
	Store store.Store

	// Codec serializes the grid state.
	// OPTIONAL: uses store.JSONCodec if nil.
	Codec store.Codec

	// Key is the store key of the persisted state.
	// OPTIONAL: defaults to DefaultStateKey.
	Key string

	// WriteTimeout bounds a single persistence write.
	// OPTIONAL: defaults to DefaultPersistTimeout.
	WriteTimeout time.Duration

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger

	metrics *metrics
}

// Synchronizer applies fetch results and persists grid state.
//
// Results are applied with latest-wins: Next issues sequence numbers and
// OnResult only applies the result carrying the latest one. Persistence is
// fire-and-forget: one background writer stores the newest pending state, and
// store failures are logged and counted, never returned.
type Synchronizer struct {
	store   store.Store
	codec   store.Codec
	key     string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics

	latest atomic.Uint64

	mu    sync.RWMutex
	view  *View
	state grid.State

	// Write slot. pending holds the newest unwritten operation, gen counts
	// scheduled operations and written the last completed one.
	pmu     sync.Mutex
	pending *writeOp
	gen     uint64
	written uint64
	flushed chan struct{}
	closed  bool

	failures atomic.Uint64
	wake     chan struct{}
	done     chan struct{}
}

type writeOp struct {
	state  grid.State
	delete bool
}

// NewSynchronizer creates a synchronizer and starts its persistence writer.
// Close stops the writer.
func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	s := &Synchronizer{
		store:   cfg.Store,
		codec:   cfg.Codec,
		key:     cfg.Key,
		timeout: cfg.WriteTimeout,
		logger:  cfg.Logger,
		metrics: cfg.metrics,
		view:    &View{},
		flushed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if s.store == nil {
		s.store = store.NewMemory()
	}
	if s.codec == nil {
		s.codec = store.JSONCodec{}
	}
	if s.key == "" {
		s.key = DefaultStateKey
	}
	if s.timeout <= 0 {
		s.timeout = DefaultPersistTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	go s.writeLoop()
	return s
}

// Next issues the next fetch sequence number, making it the latest.
func (s *Synchronizer) Next() uint64 {
	return s.latest.Add(1)
}

// Latest returns the latest issued sequence number.
func (s *Synchronizer) Latest() uint64 {
	return s.latest.Load()
}

// OnResult applies res if seq is the latest issued sequence number.
// Dataset, total count, page info and statistics are replaced together.
// Returns false when the result is stale and was dropped.
func (s *Synchronizer) OnResult(seq uint64, res *transport.Result) bool {
	if res == nil {
		res = &transport.Result{}
	}
	v := &View{
		Seq:        seq,
		Nodes:      res.Nodes,
		TotalCount: res.TotalCount,
		PageInfo:   res.PageInfo,
		Statistics: res.Statistics,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.latest.Load() {
		return false
	}
	s.view = v
	return true
}

// OnError records err as the failure of the fetch seq if it is the latest.
// The applied dataset is kept. Returns false when the failure is stale.
func (s *Synchronizer) OnError(seq uint64, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.latest.Load() {
		return false
	}
	v := *s.view
	v.Err = err
	s.view = &v
	return true
}

// View returns the applied dataset. The returned view MUST NOT be modified.
func (s *Synchronizer) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.view
}

// OnStateChange records state as current and schedules its persistence.
func (s *Synchronizer) OnStateChange(state grid.State) {
	s.SetState(state)
	s.schedule(&writeOp{state: state.Clone()})
}

// SetState records state as current without persisting it.
func (s *Synchronizer) SetState(state grid.State) {
	st := state.Clone()
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// CurrentState returns a copy of the current state.
func (s *Synchronizer) CurrentState() grid.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Restore reads the persisted state.
// Returns false when nothing usable is persisted; an undecodable entry is
// logged and treated as missing.
func (s *Synchronizer) Restore(ctx context.Context) (*grid.State, bool) {
	data, err := s.store.Get(ctx, s.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("Failed to read persisted grid state", "key", s.key, "error", err)
		return nil, false
	}

	st, err := s.codec.Decode(data)
	if err != nil {
		s.logger.Warn("Ignoring undecodable grid state", "key", s.key, "error", err)
		return nil, false
	}
	return st, true
}

// Clear schedules the removal of the persisted state, replacing any pending write.
func (s *Synchronizer) Clear() {
	s.schedule(&writeOp{delete: true})
}

// WriteFailures returns the number of failed persistence operations.
func (s *Synchronizer) WriteFailures() uint64 {
	return s.failures.Load()
}

// Flush waits until every scheduled persistence operation completed.
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.pmu.Lock()
	target := s.gen
	s.pmu.Unlock()

	for {
		s.pmu.Lock()
		if s.written >= target {
			s.pmu.Unlock()
			return nil
		}
		ch := s.flushed
		s.pmu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close flushes pending persistence and stops the writer.
// Operations scheduled after Close are dropped.
func (s *Synchronizer) Close(ctx context.Context) error {
	err := s.Flush(ctx)

	s.pmu.Lock()
	if !s.closed {
		s.closed = true
		close(s.wake)
	}
	s.pmu.Unlock()

	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) schedule(op *writeOp) {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	if s.closed {
		return
	}
	s.pending = op
	s.gen++
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) writeLoop() {
	defer close(s.done)
	for range s.wake {
		s.drain()
	}
	s.drain()
}

// drain writes pending operations until the slot is empty.
func (s *Synchronizer) drain() {
	for {
		s.pmu.Lock()
		op, gen := s.pending, s.gen
		s.pending = nil
		s.pmu.Unlock()
		if op == nil {
			return
		}

		s.write(op)

		s.pmu.Lock()
		s.written = gen
		close(s.flushed)
		s.flushed = make(chan struct{})
		s.pmu.Unlock()
	}
}

func (s *Synchronizer) write(op *writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := recovery.RecoverToError(s.logger, "persist grid state", func() error {
		if op.delete {
			return s.store.Delete(ctx, s.key)
		}
		data, err := s.codec.Encode(op.state)
		if err != nil {
			return err
		}
		return s.store.Put(ctx, s.key, data)
	})

	s.metrics.write(err)
	if err != nil {
		s.failures.Add(1)
		s.logger.Warn("Failed to persist grid state", "key", s.key, "delete", op.delete, "error", err)
		return
	}
	s.logger.Debug("Grid state persisted", "key", s.key, "delete", op.delete)
}
