// internal/session/session.go
// Package session runs one search at a time: every submitted query supersedes
// the previous one, whose transport is aborted and whose callbacks are
// silenced before Submit returns.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mwiater/ragview/internal/reveal"
	"github.com/mwiater/ragview/internal/search"
	"github.com/mwiater/ragview/internal/stream"
)

// Query is one submitted search.
type Query struct {
	ID     uint64
	Text   string
	Router *stream.Router

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the query's read loop has returned.
func (q *Query) Done() <-chan struct{} { return q.done }

// Wait blocks until the read loop returns and reports its error.
func (q *Query) Wait() error {
	<-q.done
	return q.err
}

// Session pairs each query's router with a shared reveal scheduler.
type Session struct {
	searcher stream.Searcher
	logger   *zap.Logger
	reveal   *reveal.Scheduler

	mu      sync.Mutex
	current *Query
	nextID  uint64
	closed  bool
}

// New returns a session that searches through searcher and reveals summary
// text one rune per delay. onReveal, if set, observes visible-length changes.
func New(searcher stream.Searcher, delay time.Duration, onReveal func(visible int), logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		searcher: searcher,
		logger:   logger.Named("session"),
		reveal:   reveal.New(nil, delay, onReveal),
	}
}

// Submit starts req and returns its Query. Any previous query is detached and
// its transport cancelled first, so none of its callbacks run after Submit
// returns. Callbacks must not call Submit, Cancel or Close.
func (s *Session) Submit(ctx context.Context, req search.Request, cb stream.Callbacks) *Query {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.supersedeLocked()

	s.nextID++
	id := s.nextID
	logger := s.logger.With(zap.Uint64("query_id", id))

	onToken := cb.OnToken
	cb.OnToken = func(text string) {
		if onToken != nil {
			onToken(text)
		}
		s.reveal.Notify()
	}

	router := stream.NewRouter(req.Query, cb, logger)
	s.reveal.Retarget(router)

	ctx, cancel := context.WithCancel(ctx)
	q := &Query{
		ID:     id,
		Text:   req.Query,
		Router: router,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if s.closed {
		cancel()
		router.Detach()
		q.err = context.Canceled
		close(q.done)
		return q
	}
	s.current = q

	logger.Debug("query submitted", zap.String("query", req.Query))
	go func() {
		defer close(q.done)
		defer cancel()
		q.err = s.searcher.Search(ctx, req, router)
	}()
	return q
}

// Cancel aborts the current query, if any. Text already accumulated stays
// visible.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked()
}

// Close cancels the current query, waits for its read loop and stops the
// reveal scheduler.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	q := s.current
	s.supersedeLocked()
	s.mu.Unlock()

	if q != nil {
		<-q.done
	}
	s.reveal.Stop()
}

func (s *Session) supersedeLocked() {
	prev := s.current
	if prev == nil {
		return
	}
	s.current = nil
	prev.Router.Detach()
	prev.cancel()
	s.logger.Debug("query superseded", zap.Uint64("query_id", prev.ID))
}

// Current returns the active query, or nil.
func (s *Session) Current() *Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Visible returns the revealed prefix of the current summary.
func (s *Session) Visible() string { return s.reveal.Text() }

// VisibleLen returns the number of revealed runes.
func (s *Session) VisibleLen() int { return s.reveal.Visible() }

// Revealing reports whether the summary is still being revealed or streamed.
func (s *Session) Revealing() bool { return s.reveal.Revealing() }
