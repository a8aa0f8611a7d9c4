package pagefetch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hugr-lab/pagefetch/internal/recovery"
	"github.com/hugr-lab/pagefetch/internal/reqcontext"
	"github.com/hugr-lab/pagefetch/query"
	"github.com/hugr-lab/pagefetch/transport"
)

// Request identifies one fetch travelling through the pipeline.
type Request struct {
	// ID is a unique request id, sent to the backend as request metadata.
	ID string

	// Seq is the negotiator sequence number of the fetch.
	Seq uint64

	// Query is the backend query being fetched.
	Query query.Query
}

// Pipeline is the three-stage fetch lifecycle.
//
// The adapter calls PreProcess, Process and PostProcess in that order,
// exactly once each per fetch, whatever the outcome.
type Pipeline interface {
	// PreProcess signals that processing started.
	PreProcess(ctx context.Context, req Request)

	// Process dispatches the query to the backend.
	Process(ctx context.Context, req Request) (*transport.Result, error)

	// PostProcess signals that processing finished, with the result or the error.
	PostProcess(ctx context.Context, req Request, res *transport.Result, err error)
}

// Hooks observe fetch lifecycle notifications.
// Implementations MUST be goroutine-safe. Panics are recovered and logged.
type Hooks interface {
	OnFetchStart(ctx context.Context, req Request)
	OnFetchEnd(ctx context.Context, req Request, res *transport.Result, err error)
}

// HookFuncs adapts plain functions to Hooks. Nil fields are skipped.
type HookFuncs struct {
	Start func(ctx context.Context, req Request)
	End   func(ctx context.Context, req Request, res *transport.Result, err error)
}

// OnFetchStart implements Hooks.
func (h HookFuncs) OnFetchStart(ctx context.Context, req Request) {
	if h.Start != nil {
		h.Start(ctx, req)
	}
}

// OnFetchEnd implements Hooks.
func (h HookFuncs) OnFetchEnd(ctx context.Context, req Request, res *transport.Result, err error) {
	if h.End != nil {
		h.End(ctx, req, res, err)
	}
}

// transportPipeline is the default Pipeline: a rate-limited Transport with
// no stage notifications of its own.
type transportPipeline struct {
	transport transport.Transport
	limiter   *rate.Limiter
}

func (p *transportPipeline) PreProcess(ctx context.Context, req Request) {}

func (p *transportPipeline) Process(ctx context.Context, req Request) (*transport.Result, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return nil, transport.Classify("rate limit", err)
		}
	}
	return p.transport.Fetch(ctx, req.Query)
}

func (p *transportPipeline) PostProcess(ctx context.Context, req Request, res *transport.Result, err error) {
}

// Adapter runs fetches asynchronously through a Pipeline.
// It never retries; the caller decides what to do with a failure.
//
// Stage order per fetch:
//
//	PreProcess -> Hooks.OnFetchStart -> Process -> Hooks.OnFetchEnd -> PostProcess
type Adapter struct {
	pipeline Pipeline
	hooks    []Hooks
	logger   *slog.Logger
	metrics  *metrics
}

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	// Transport sends queries to the backend.
	// REQUIRED unless Pipeline is set.
	Transport transport.Transport

	// Pipeline replaces the default transport pipeline.
	// OPTIONAL.
	Pipeline Pipeline

	// Hooks observe every fetch, whatever the pipeline.
	// OPTIONAL.
	Hooks []Hooks

	// FetchInterval rate limits the default pipeline.
	// OPTIONAL: if 0, no limit.
	FetchInterval time.Duration

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger

	metrics *metrics
}

// NewAdapter creates an adapter.
func NewAdapter(cfg AdapterConfig) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := cfg.Pipeline
	if p == nil {
		tp := &transportPipeline{transport: cfg.Transport}
		if cfg.FetchInterval > 0 {
			tp.limiter = rate.NewLimiter(rate.Every(cfg.FetchInterval), 1)
		}
		p = tp
	}

	return &Adapter{
		pipeline: p,
		hooks:    cfg.Hooks,
		logger:   logger,
		metrics:  cfg.metrics,
	}
}

// Call is an in-flight fetch.
type Call struct {
	// Request identifies the fetch.
	Request Request

	done chan struct{}
	res  *transport.Result
	err  error
}

// Done is closed when the fetch finished and PostProcess returned.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the fetch finishes or ctx is done.
// A ctx error does not cancel the fetch.
func (c *Call) Wait(ctx context.Context) (*transport.Result, error) {
	select {
	case <-c.done:
		return c.res, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fetch starts fetching q on a new goroutine and returns immediately.
// The request id and seq are attached to ctx for the transport.
func (a *Adapter) Fetch(ctx context.Context, q query.Query, seq uint64) *Call {
	call := &Call{
		Request: Request{ID: uuid.NewString(), Seq: seq, Query: q},
		done:    make(chan struct{}),
	}
	ctx = reqcontext.WithRequest(ctx, reqcontext.Request{ID: call.Request.ID, Seq: seq})

	go func() {
		defer close(call.done)
		call.res, call.err = a.run(ctx, call.Request)
	}()
	return call
}

// FetchSync fetches q and waits for the outcome.
func (a *Adapter) FetchSync(ctx context.Context, q query.Query, seq uint64) (*transport.Result, error) {
	req := Request{ID: uuid.NewString(), Seq: seq, Query: q}
	return a.run(reqcontext.WithRequest(ctx, reqcontext.Request{ID: req.ID, Seq: seq}), req)
}

// run drives one fetch through the pipeline. The returned result is shared
// with the hooks and MUST NOT be modified.
func (a *Adapter) run(ctx context.Context, req Request) (*transport.Result, error) {
	a.logger.Debug("Fetch started", "seq", req.Seq, "request_id", req.ID, "dataset", req.Query.Dataset)
	recovery.Recover(a.logger, "PreProcess", func() {
		a.pipeline.PreProcess(ctx, req)
	})
	for _, h := range a.hooks {
		recovery.Recover(a.logger, "OnFetchStart", func() {
			h.OnFetchStart(ctx, req)
		})
	}

	start := time.Now()
	res, err := recovery.RecoverToValue(a.logger, "Process", func() (*transport.Result, error) {
		return a.pipeline.Process(ctx, req)
	})
	end := time.Now()

	if err != nil {
		if _, ok := transport.KindOf(err); !ok {
			if ctx.Err() != nil && !errors.Is(err, recovery.ErrPanic) {
				err = transport.Classify("fetch", ctx.Err())
			} else {
				err = transport.NewError(transport.KindBackendError, "fetch", err)
			}
		}
		res = nil
	} else if res == nil {
		res = &transport.Result{}
	}
	if res != nil {
		fillStatistics(res, start, end)
	}
	a.metrics.observeFetch(end.Sub(start), err)

	for _, h := range a.hooks {
		recovery.Recover(a.logger, "OnFetchEnd", func() {
			h.OnFetchEnd(ctx, req, res, err)
		})
	}
	recovery.Recover(a.logger, "PostProcess", func() {
		a.pipeline.PostProcess(ctx, req, res, err)
	})

	if err != nil {
		a.logger.Debug("Fetch failed", "seq", req.Seq, "request_id", req.ID, "error", err)
	} else {
		a.logger.Debug("Fetch finished", "seq", req.Seq, "request_id", req.ID, "items", len(res.Nodes), "total", res.TotalCount)
	}
	return res, err
}

// fillStatistics completes the statistics the backend did not report.
func fillStatistics(res *transport.Result, start, end time.Time) {
	if res.Statistics == nil {
		res.Statistics = &transport.Statistics{}
	}
	st := res.Statistics
	if st.StartTime.IsZero() {
		st.StartTime = start
	}
	if st.EndTime.IsZero() {
		st.EndTime = end
	}
	if st.ExecutionTime == 0 {
		st.ExecutionTime = st.EndTime.Sub(st.StartTime)
	}
	if st.ItemCount == 0 {
		st.ItemCount = len(res.Nodes)
	}
	if st.TotalItemCount == 0 {
		st.TotalItemCount = res.TotalCount
	}
}
