// internal/stream/router.go
package stream

import (
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mwiater/ragview/internal/search"
	"github.com/mwiater/ragview/internal/sse"
	"github.com/mwiater/ragview/internal/util"
)

// Phase is the router's position in its state machine.
type Phase int32

const (
	// PhaseIdle is the state before any token arrived.
	PhaseIdle Phase = iota
	// PhaseStreaming is entered on the first token delta.
	PhaseStreaming
	// PhaseCompleted is entered on a final token or a clean end of stream.
	PhaseCompleted
	// PhaseFailed is entered on a transport error.
	PhaseFailed
	// PhaseDetached is entered when a newer query supersedes this one.
	PhaseDetached
)

// Terminal reports whether no further input is accepted in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseDetached
}

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStreaming:
		return "streaming"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Callbacks is the surface a presentation layer observes. Every field is
// optional. Callbacks for one router are never invoked concurrently.
type Callbacks struct {
	OnResults  func([]search.Result)
	OnToken    func(string)
	OnComplete func()
	OnError    func(error)
	// OnDrop observes malformed and unrecognised frames. It exists for
	// diagnostics and metrics only.
	OnDrop func(sse.Event)
}

// Sink consumes the decoded events of one stream.
type Sink interface {
	Handle(ev sse.Event)
	Finish()
	Fail(err error)
	Done() bool
}

// Router merges results and token events of one query into a single summary
// state and drives Callbacks with exactly-once termination. It is the only
// writer of the accumulated summary text.
type Router struct {
	query  string
	cb     Callbacks
	logger *zap.Logger

	// mu serialises state transitions and callback invocations.
	mu    sync.Mutex
	phase atomic.Int32

	errMu sync.Mutex
	err   error

	resultsMu   sync.RWMutex
	results     []search.Result
	resultsSeen atomic.Bool

	textMu sync.RWMutex
	text   strings.Builder
	length atomic.Int64
}

// NewRouter returns an idle router for query.
func NewRouter(query string, cb Callbacks, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{query: query, cb: cb, logger: logger}
}

// Handle applies one event. Input after a terminal phase is ignored.
func (r *Router) Handle(ev sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Phase().Terminal() {
		return
	}

	switch ev.Kind {
	case sse.KindResults:
		results := search.FromAPI(ev.Results)
		r.resultsMu.Lock()
		r.results = results
		r.resultsMu.Unlock()
		r.resultsSeen.Store(true)
		r.logger.Debug("results received", zap.Int("count", len(results)))
		if r.cb.OnResults != nil {
			r.cb.OnResults(append([]search.Result(nil), results...))
		}

	case sse.KindToken:
		r.appendText(ev.Text)
		if r.Phase() == PhaseIdle {
			r.phase.Store(int32(PhaseStreaming))
		}
		if ev.Text != "" && r.cb.OnToken != nil {
			r.cb.OnToken(ev.Text)
		}
		if ev.Final {
			r.complete()
		}

	case sse.KindMalformed, sse.KindUnrecognized:
		r.logger.Debug("frame dropped",
			zap.Stringer("kind", ev.Kind),
			zap.String("type", ev.Type),
			zap.Error(ev.Err),
		)
		if r.cb.OnDrop != nil {
			r.cb.OnDrop(ev)
		}
	}
}

// Finish records a clean end of the transport. It completes the router unless
// it already reached a terminal phase.
func (r *Router) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Phase().Terminal() {
		return
	}
	r.complete()
}

// Fail moves the router to PhaseFailed and reports err, once.
func (r *Router) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Phase().Terminal() {
		return
	}
	r.errMu.Lock()
	r.err = err
	r.errMu.Unlock()
	r.phase.Store(int32(PhaseFailed))
	r.logger.Debug("stream failed", zap.Error(err))
	if r.cb.OnError != nil {
		r.cb.OnError(err)
	}
}

// Detach silences the router. When Detach returns, any callback that was
// running has returned and no further callback will run.
func (r *Router) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Phase().Terminal() {
		return
	}
	r.phase.Store(int32(PhaseDetached))
}

func (r *Router) complete() {
	r.phase.Store(int32(PhaseCompleted))
	r.logger.Debug("stream completed", zap.Int64("runes", r.length.Load()))
	if r.cb.OnComplete != nil {
		r.cb.OnComplete()
	}
}

func (r *Router) appendText(text string) {
	if text == "" {
		return
	}
	r.textMu.Lock()
	r.text.WriteString(text)
	r.textMu.Unlock()
	r.length.Add(int64(utf8.RuneCountInString(text)))
}

// Query returns the query this router belongs to.
func (r *Router) Query() string { return r.query }

// Phase returns the current phase.
func (r *Router) Phase() Phase { return Phase(r.phase.Load()) }

// Done reports whether the router reached a terminal phase.
func (r *Router) Done() bool { return r.Phase().Terminal() }

// Err returns the failure reported through OnError, if any.
func (r *Router) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// ResultsSeen reports whether a results event arrived.
func (r *Router) ResultsSeen() bool { return r.resultsSeen.Load() }

// Results returns a copy of the latest result list.
func (r *Router) Results() []search.Result {
	r.resultsMu.RLock()
	defer r.resultsMu.RUnlock()
	return append([]search.Result(nil), r.results...)
}

// Text returns the accumulated summary text.
func (r *Router) Text() string {
	r.textMu.RLock()
	defer r.textMu.RUnlock()
	return r.text.String()
}

// Len returns the accumulated summary length in runes.
func (r *Router) Len() int { return int(r.length.Load()) }

// Prefix returns the first n runes of the accumulated text.
func (r *Router) Prefix(n int) string {
	r.textMu.RLock()
	defer r.textMu.RUnlock()
	return util.RunePrefix(r.text.String(), n)
}
