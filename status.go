package pagefetch

import (
	"log/slog"
	"sync"

	"github.com/hugr-lab/pagefetch/internal/recovery"
)

// Status is the fetch indicator state.
type Status int

const (
	StatusIdle Status = iota
	StatusProcessing
	StatusDone
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Display is the text and style class shown for a status.
type Display struct {
	Text  string
	Class string
}

var displays = map[Status]Display{
	StatusIdle:       {},
	StatusProcessing: {Text: "processing...", Class: "alert alert-danger"},
	StatusDone:       {Text: "done", Class: "alert alert-success"},
	StatusError:      {Text: "error", Class: "alert alert-warning"},
}

// Display returns the display projection of the status.
func (s Status) Display() Display {
	return displays[s]
}

// StatusUpdate is delivered to subscribers on every status change.
type StatusUpdate struct {
	Status  Status
	Display Display
	Err     error
}

// StatusReporter projects the fetch lifecycle onto a status indicator.
// Subscribers run synchronously in the goroutine that changed the status and
// MUST NOT change the status themselves.
type StatusReporter struct {
	notifyMu sync.Mutex

	mu     sync.RWMutex
	status Status
	err    error
	subs   map[int]func(StatusUpdate)
	nextID int

	logger *slog.Logger
}

// NewStatusReporter creates a reporter in StatusIdle.
func NewStatusReporter(logger *slog.Logger) *StatusReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusReporter{
		subs:   make(map[int]func(StatusUpdate)),
		logger: logger,
	}
}

// SetProcessing switches to StatusProcessing when true and StatusDone when false.
func (r *StatusReporter) SetProcessing(processing bool) {
	if processing {
		r.set(StatusProcessing, nil)
		return
	}
	r.set(StatusDone, nil)
}

// SetError switches to StatusError.
func (r *StatusReporter) SetError(err error) {
	r.set(StatusError, err)
}

// Status returns the current status.
func (r *StatusReporter) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Err returns the error of StatusError, nil otherwise.
func (r *StatusReporter) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Display returns the display projection of the current status.
func (r *StatusReporter) Display() Display {
	return r.Status().Display()
}

// Subscribe registers fn for status changes and returns a function removing it.
func (r *StatusReporter) Subscribe(fn func(StatusUpdate)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *StatusReporter) set(status Status, err error) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	r.status = status
	r.err = err
	subs := make([]func(StatusUpdate), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	u := StatusUpdate{Status: status, Display: status.Display(), Err: err}
	for _, fn := range subs {
		recovery.Recover(r.logger, "status subscriber", func() {
			fn(u)
		})
	}
}
