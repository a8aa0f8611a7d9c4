package pagefetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugr-lab/pagefetch/grid"
	"github.com/hugr-lab/pagefetch/query"
	"github.com/hugr-lab/pagefetch/transport"
)

// Phase is the negotiator state machine position.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseBuildingQuery
	PhaseFetching
	PhaseApplying
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBuildingQuery:
		return "building query"
	case PhaseFetching:
		return "fetching"
	case PhaseApplying:
		return "applying"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Negotiator mediates between one grid and a remote query service.
//
// Every user action rebuilds the query from the new grid state, persists the
// state and fetches one page asynchronously. Only the result of the latest
// fetch is applied.
type Negotiator struct {
	builder       query.Builder
	adapter       *Adapter
	sync          *Synchronizer
	status        *StatusReporter
	logger        *slog.Logger
	metrics       *metrics
	presets       *grid.State
	executeOnInit bool
	pageSize      int
	fetchTimeout  time.Duration
	cursorMode    bool

	// mu serializes state mutations and lifecycle changes.
	mu        sync.Mutex
	started   bool
	closed    bool
	lastQuery query.Query

	// lifecycleMu orders sequence issuing against phase and status updates.
	lifecycleMu sync.Mutex
	phase       atomic.Int32

	wg      sync.WaitGroup
	stopCtx context.Context
	stop    context.CancelFunc
}

// New creates a negotiator. Start must be called before any user action.
func New(config Config) (*Negotiator, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// Build an empty state: it can only fail on builder options.
	empty, err := config.Builder.Build(grid.State{})
	if err != nil {
		return nil, fmt.Errorf("%w: builder: %v", ErrInvalidConfig, err)
	}

	logger := newLogger(config)
	m := newMetrics(config.Registerer)

	pageSize := config.DefaultPageSize
	if pageSize == 0 {
		pageSize = empty.PageSize
	}
	if pageSize <= 0 {
		pageSize = query.DefaultPageSize
	}

	n := &Negotiator{
		builder:       config.Builder,
		logger:        logger,
		metrics:       m,
		executeOnInit: config.ExecuteOnInit,
		pageSize:      pageSize,
		fetchTimeout:  config.FetchTimeout,
		cursorMode:    empty.WithCursor,
		status:        NewStatusReporter(logger),
		sync: NewSynchronizer(SynchronizerConfig{
			Store:        config.Store,
			Codec:        config.Codec,
			Key:          config.StateKey,
			WriteTimeout: config.PersistTimeout,
			Logger:       logger,
			metrics:      m,
		}),
	}
	if config.Presets != nil {
		p := config.Presets.Clone()
		n.presets = &p
	}
	n.stopCtx, n.stop = context.WithCancel(context.Background())

	hooks := make([]Hooks, 0, len(config.Hooks)+1)
	hooks = append(hooks, lifecycle{n})
	hooks = append(hooks, config.Hooks...)
	n.adapter = NewAdapter(AdapterConfig{
		Transport:     config.Transport,
		Pipeline:      config.Pipeline,
		Hooks:         hooks,
		FetchInterval: config.FetchInterval,
		Logger:        logger,
		metrics:       m,
	})

	return n, nil
}

// Start loads the persisted state, falling back to the presets, and issues
// the initial fetch when ExecuteOnInit is set. Without ExecuteOnInit the
// returned Call is nil.
func (n *Negotiator) Start(ctx context.Context) (*Call, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}
	if n.started {
		return nil, ErrAlreadyStarted
	}
	n.started = true

	state, restored := n.initialState(ctx)
	n.logger.Info("Negotiator started",
		"restored", restored,
		"filters", len(state.Filters),
		"sorters", len(state.Sorters),
		"execute_on_init", n.executeOnInit,
	)

	if !n.executeOnInit {
		n.sync.OnStateChange(n.paged(state))
		return nil, nil
	}
	return n.apply(ctx, state, true)
}

func (n *Negotiator) initialState(ctx context.Context) (grid.State, bool) {
	if st, ok := n.sync.Restore(ctx); ok {
		err := st.Validate(n.builder.Columns())
		if err == nil {
			return *st, true
		}
		n.logger.Warn("Ignoring persisted grid state", "error", err)
	}
	if n.presets != nil {
		return n.presets.Clone(), false
	}
	return grid.State{}, false
}

// Update applies fn to a copy of the current state, rebuilds the query and
// fetches the page. A build failure is returned synchronously and leaves the
// state and the dataset unchanged.
func (n *Negotiator) Update(ctx context.Context, fn func(*grid.State)) (*Call, error) {
	return n.update(ctx, func(st *grid.State, _ View) error {
		fn(st)
		return nil
	})
}

// SetFilters replaces the filters and returns to the first page.
func (n *Negotiator) SetFilters(ctx context.Context, filters ...grid.Filter) (*Call, error) {
	return n.update(ctx, func(st *grid.State, _ View) error {
		st.Filters = append([]grid.Filter(nil), filters...)
		n.firstPage(st)
		return nil
	})
}

// SetSorters replaces the sorters and returns to the first page.
func (n *Negotiator) SetSorters(ctx context.Context, sorters ...grid.Sorter) (*Call, error) {
	return n.update(ctx, func(st *grid.State, _ View) error {
		st.Sorters = append([]grid.Sorter(nil), sorters...)
		n.firstPage(st)
		return nil
	})
}

// ClearAllFiltersAndSorts removes every filter and sorter and returns to the first page.
func (n *Negotiator) ClearAllFiltersAndSorts(ctx context.Context) (*Call, error) {
	return n.update(ctx, func(st *grid.State, _ View) error {
		st.Filters = nil
		st.Sorters = nil
		n.firstPage(st)
		return nil
	})
}

// SetPageSize changes the page size and returns to the first page.
func (n *Negotiator) SetPageSize(ctx context.Context, size int) (*Call, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: page size %d", grid.ErrInvalidPagination, size)
	}
	return n.update(ctx, func(st *grid.State, _ View) error {
		p := st.Page(n.pageSize)
		p.PageSize = size
		p.PageNumber = 1
		p.Cursor = nil
		st.Pagination = &p
		return nil
	})
}

// GoToPage moves to a page number. Not available with cursor pagination.
func (n *Negotiator) GoToPage(ctx context.Context, page int) (*Call, error) {
	if n.cursorMode {
		return nil, ErrCursorPagination
	}
	return n.update(ctx, func(st *grid.State, v View) error {
		p := st.Page(n.pageSize)
		if page < 1 || (v.TotalCount > 0 && page > lastPage(v.TotalCount, p.PageSize)) {
			return fmt.Errorf("%w: page %d", ErrPageOutOfRange, page)
		}
		p.PageNumber = page
		st.Pagination = &p
		return nil
	})
}

// GoToFirstPage moves to the first page.
func (n *Negotiator) GoToFirstPage(ctx context.Context) (*Call, error) {
	return n.update(ctx, func(st *grid.State, _ View) error {
		n.firstPage(st)
		return nil
	})
}

// GoToNextPage moves to the following page. In cursor mode it pages after
// the end cursor of the applied result.
func (n *Negotiator) GoToNextPage(ctx context.Context) (*Call, error) {
	return n.update(ctx, func(st *grid.State, v View) error {
		p := st.Page(n.pageSize)
		if n.cursorMode {
			if !v.PageInfo.HasNextPage || v.PageInfo.EndCursor == "" {
				return fmt.Errorf("%w: no next page", ErrPageOutOfRange)
			}
			p.Cursor = &grid.Cursor{After: v.PageInfo.EndCursor}
		} else if v.TotalCount > 0 && p.PageNumber >= lastPage(v.TotalCount, p.PageSize) {
			return fmt.Errorf("%w: page %d is the last page", ErrPageOutOfRange, p.PageNumber)
		}
		p.PageNumber++
		st.Pagination = &p
		return nil
	})
}

// GoToPreviousPage moves to the preceding page. In cursor mode it pages
// before the start cursor of the applied result.
func (n *Negotiator) GoToPreviousPage(ctx context.Context) (*Call, error) {
	return n.update(ctx, func(st *grid.State, v View) error {
		p := st.Page(n.pageSize)
		if n.cursorMode {
			if !v.PageInfo.HasPreviousPage || v.PageInfo.StartCursor == "" {
				return fmt.Errorf("%w: no previous page", ErrPageOutOfRange)
			}
			p.Cursor = &grid.Cursor{Before: v.PageInfo.StartCursor, Last: true}
		} else if p.PageNumber <= 1 {
			return fmt.Errorf("%w: already on the first page", ErrPageOutOfRange)
		}
		if p.PageNumber > 1 {
			p.PageNumber--
		}
		st.Pagination = &p
		return nil
	})
}

// GoToLastPage moves to the last page. Offset pagination needs a known total count.
func (n *Negotiator) GoToLastPage(ctx context.Context) (*Call, error) {
	return n.update(ctx, func(st *grid.State, v View) error {
		p := st.Page(n.pageSize)
		if n.cursorMode {
			p.Cursor = &grid.Cursor{Last: true}
		} else if v.Seq == 0 {
			return fmt.Errorf("%w: total count unknown", ErrPageOutOfRange)
		}
		p.PageNumber = lastPage(v.TotalCount, p.PageSize)
		st.Pagination = &p
		return nil
	})
}

// Reset drops the presets and all grid state, clears the persisted entry
// and fetches the first page.
func (n *Negotiator) Reset(ctx context.Context) (*Call, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkLocked(); err != nil {
		return nil, err
	}

	n.sync.Clear()
	n.logger.Info("Grid state reset")
	return n.apply(ctx, grid.State{}, false)
}

// Refresh fetches the current page again.
func (n *Negotiator) Refresh(ctx context.Context) (*Call, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkLocked(); err != nil {
		return nil, err
	}
	return n.apply(ctx, n.sync.CurrentState(), false)
}

// View returns the applied dataset and the current status.
func (n *Negotiator) View() View {
	v := n.sync.View()
	v.Status = n.status.Status()
	return v
}

// CurrentState returns a copy of the current grid state.
func (n *Negotiator) CurrentState() grid.State {
	return n.sync.CurrentState()
}

// CurrentQuery returns the last successfully built query.
func (n *Negotiator) CurrentQuery() query.Query {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastQuery
}

// Phase returns the state machine position.
func (n *Negotiator) Phase() Phase {
	return Phase(n.phase.Load())
}

// Status returns the fetch indicator state.
func (n *Negotiator) Status() Status {
	return n.status.Status()
}

// Subscribe registers fn for status changes. See StatusReporter.Subscribe.
// fn runs on the fetch goroutine and MUST NOT call negotiator actions synchronously.
func (n *Negotiator) Subscribe(fn func(StatusUpdate)) (unsubscribe func()) {
	return n.status.Subscribe(fn)
}

// WriteFailures returns the number of failed persistence operations.
func (n *Negotiator) WriteFailures() uint64 {
	return n.sync.WriteFailures()
}

// Close rejects new actions, waits for in-flight fetches and flushes the
// persisted state. When ctx ends first, in-flight fetches are canceled.
func (n *Negotiator) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		n.stop()
		<-done
	}
	n.stop()

	if serr := n.sync.Close(ctx); err == nil {
		err = serr
	}
	n.logger.Info("Negotiator closed")
	return err
}

func (n *Negotiator) checkLocked() error {
	if n.closed {
		return ErrClosed
	}
	if !n.started {
		return ErrNotStarted
	}
	return nil
}

func (n *Negotiator) update(ctx context.Context, fn func(st *grid.State, v View) error) (*Call, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkLocked(); err != nil {
		return nil, err
	}

	next := n.sync.CurrentState()
	if err := fn(&next, n.sync.View()); err != nil {
		return nil, err
	}
	return n.apply(ctx, next, true)
}

// apply builds the query for next and dispatches it. n.mu must be held.
func (n *Negotiator) apply(ctx context.Context, next grid.State, persist bool) (*Call, error) {
	n.setPhase(PhaseBuildingQuery)
	next = n.paged(next)
	q, err := n.builder.Build(next)
	if err != nil {
		n.setPhase(PhaseError)
		n.logger.Debug("Query build failed", "error", err)
		return nil, err
	}

	if persist {
		n.sync.OnStateChange(next)
	} else {
		n.sync.SetState(next)
	}
	n.lastQuery = q
	return n.dispatch(ctx, q), nil
}

// dispatch starts the fetch of q. n.mu must be held.
func (n *Negotiator) dispatch(ctx context.Context, q query.Query) *Call {
	n.lifecycleMu.Lock()
	seq := n.sync.Next()
	n.setPhase(PhaseFetching)
	n.lifecycleMu.Unlock()

	var cancel context.CancelFunc
	if n.fetchTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, n.fetchTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	stop := context.AfterFunc(n.stopCtx, cancel)

	n.wg.Add(1)
	call := n.adapter.Fetch(ctx, q, seq)
	go func() {
		defer n.wg.Done()
		<-call.Done()
		stop()
		cancel()
	}()
	return call
}

func (n *Negotiator) setPhase(p Phase) {
	n.phase.Store(int32(p))
}

// paged returns st with an explicit page number and size, filling an unset
// size with the negotiator's page size.
func (n *Negotiator) paged(st grid.State) grid.State {
	p := st.Page(n.pageSize)
	st.Pagination = &p
	return st
}

// firstPage resets st to the first page, keeping the page size.
func (n *Negotiator) firstPage(st *grid.State) {
	p := st.Page(n.pageSize)
	p.PageNumber = 1
	p.Cursor = nil
	st.Pagination = &p
}

func lastPage(total, size int) int {
	if total <= 0 || size <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

// lifecycle connects adapter notifications to the synchronizer and the status.
type lifecycle struct {
	n *Negotiator
}

func (l lifecycle) OnFetchStart(ctx context.Context, req Request) {
	n := l.n
	n.lifecycleMu.Lock()
	defer n.lifecycleMu.Unlock()
	if req.Seq == n.sync.Latest() {
		n.status.SetProcessing(true)
	}
}

func (l lifecycle) OnFetchEnd(ctx context.Context, req Request, res *transport.Result, err error) {
	n := l.n
	n.lifecycleMu.Lock()
	defer n.lifecycleMu.Unlock()

	if err != nil {
		if !n.sync.OnError(req.Seq, err) {
			n.metrics.stale()
			n.logger.Debug("Dropped stale fetch error", "seq", req.Seq, "error", err)
			return
		}
		n.setPhase(PhaseError)
		n.status.SetError(err)
		n.logger.Warn("Fetch failed", "seq", req.Seq, "request_id", req.ID, "error", err)
		return
	}

	if req.Seq == n.sync.Latest() {
		n.setPhase(PhaseApplying)
	}
	if !n.sync.OnResult(req.Seq, res) {
		n.metrics.stale()
		n.logger.Debug("Dropped stale result", "seq", req.Seq, "latest", n.sync.Latest())
		return
	}
	n.setPhase(PhaseIdle)
	n.status.SetProcessing(false)
}
