// internal/metrics/searcher.go
package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mwiater/ragview/internal/search"
	"github.com/mwiater/ragview/internal/sse"
	"github.com/mwiater/ragview/internal/stream"
)

const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Searcher is a decorator that wraps a stream.Searcher to record metrics.
type Searcher struct {
	wrapped stream.Searcher
	logger  *zap.Logger
}

// NewSearcher creates a new metrics-enabled searcher that wraps an existing one.
func NewSearcher(wrapped stream.Searcher, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("wrapping searcher with metrics")
	return &Searcher{wrapped: wrapped, logger: logger.Named("metrics")}
}

// Wrapped returns the searcher being decorated.
func (s *Searcher) Wrapped() stream.Searcher { return s.wrapped }

// Search intercepts the wrapped searcher's events to record stream metrics.
func (s *Searcher) Search(ctx context.Context, req search.Request, sink stream.Sink) error {
	obs := &observedSink{Sink: sink, start: time.Now()}
	err := s.wrapped.Search(ctx, req, obs)

	outcome := obs.outcome(err)
	elapsed := time.Since(obs.start)
	StreamsTotal.WithLabelValues(outcome).Inc()
	StreamDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	s.logger.Debug("stream recorded",
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
		zap.Int("tokens", obs.tokenCount()),
	)
	return err
}

// phaser is implemented by sinks that expose their router phase.
type phaser interface {
	Phase() stream.Phase
}

// observedSink forwards to the wrapped Sink and counts what passes through.
type observedSink struct {
	stream.Sink
	start time.Time

	mu     sync.Mutex
	tokens int
	failed bool
}

func (o *observedSink) Handle(ev sse.Event) {
	switch ev.Kind {
	case sse.KindToken:
		if ev.Text != "" {
			o.mu.Lock()
			if o.tokens == 0 {
				TimeToFirstToken.Observe(time.Since(o.start).Seconds())
			}
			o.tokens++
			o.mu.Unlock()
			TokensTotal.Inc()
		}
	case sse.KindResults:
		ResultsTotal.Add(float64(len(ev.Results)))
	case sse.KindMalformed, sse.KindUnrecognized:
		FramesDroppedTotal.WithLabelValues(ev.Kind.String()).Inc()
	}
	o.Sink.Handle(ev)
}

func (o *observedSink) Fail(err error) {
	o.mu.Lock()
	o.failed = true
	o.mu.Unlock()
	o.Sink.Fail(err)
}

func (o *observedSink) tokenCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tokens
}

func (o *observedSink) outcome(err error) string {
	if p, ok := o.Sink.(phaser); ok && p.Phase() == stream.PhaseDetached {
		return OutcomeCancelled
	}
	if errors.Is(err, context.Canceled) {
		return OutcomeCancelled
	}
	o.mu.Lock()
	failed := o.failed
	o.mu.Unlock()
	if err != nil || failed {
		return OutcomeFailed
	}
	return OutcomeCompleted
}
