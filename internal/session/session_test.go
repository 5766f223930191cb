package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/ragview/internal/appconfig"
	"github.com/mwiater/ragview/internal/search"
	"github.com/mwiater/ragview/internal/sse"
	"github.com/mwiater/ragview/internal/stream"
)

func tokenFrame(content string, done bool) string {
	return fmt.Sprintf("data: {\"type\":\"token\",\"data\":{\"message\":{\"content\":%q},\"done\":%t}}\n\n", content, done)
}

type counter struct {
	tokens    atomic.Int32
	completed atomic.Int32
	failed    atomic.Int32
}

func (c *counter) callbacks() stream.Callbacks {
	return stream.Callbacks{
		OnToken:    func(string) { c.tokens.Add(1) },
		OnComplete: func() { c.completed.Add(1) },
		OnError:    func(error) { c.failed.Add(1) },
	}
}

func (c *counter) total() int32 {
	return c.tokens.Load() + c.completed.Load() + c.failed.Load()
}

func request(query string) search.Request {
	return search.NewRequest(query, search.Options{TopK: 5, Temperature: 0.7})
}

func TestSubmitSupersedesOpenQuery(t *testing.T) {
	t.Parallel()

	aOpen := make(chan struct{})
	aAborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body search.Request
		_ = json.NewDecoder(r.Body).Decode(&body)
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")

		if body.Query == "A" {
			fmt.Fprint(w, tokenFrame("from A ", false))
			flusher.Flush()
			close(aOpen)
			for {
				select {
				case <-r.Context().Done():
					close(aAborted)
					return
				case <-time.After(2 * time.Millisecond):
					if _, err := fmt.Fprint(w, tokenFrame("more A ", false)); err != nil {
						close(aAborted)
						return
					}
					flusher.Flush()
				}
			}
		}
		fmt.Fprint(w, tokenFrame("B", false))
		fmt.Fprint(w, tokenFrame("!", true))
	}))
	defer srv.Close()

	client := stream.New(&appconfig.Config{BaseURL: srv.URL}, nil)
	sess := New(client, time.Millisecond, nil, nil)
	defer sess.Close()

	a := &counter{}
	qa := sess.Submit(context.Background(), request("A"), a.callbacks())
	<-aOpen
	require.Eventually(t, func() bool { return a.tokens.Load() > 0 }, 2*time.Second, time.Millisecond)

	b := &counter{}
	qb := sess.Submit(context.Background(), request("B"), b.callbacks())
	frozen := a.total()
	assert.Equal(t, stream.PhaseDetached, qa.Router.Phase())

	select {
	case <-aAborted:
	case <-time.After(2 * time.Second):
		t.Fatal("transport of the superseded query was not aborted")
	}
	// A either observed the cancellation or stopped on its detached router.
	if err := qa.Wait(); err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
	require.NoError(t, qb.Wait())

	assert.Equal(t, frozen, a.total(), "callbacks of A fired after B was submitted")
	assert.Zero(t, a.completed.Load())
	assert.Zero(t, a.failed.Load())
	assert.Equal(t, int32(1), b.completed.Load())
	assert.Equal(t, int32(2), b.tokens.Load())
	assert.Greater(t, qb.ID, qa.ID)
	assert.Same(t, qb, sess.Current())

	require.Eventually(t, func() bool { return sess.Visible() == "B!" }, 2*time.Second, time.Millisecond)
	assert.False(t, sess.Revealing())
}

// scriptedSearcher feeds events into the sink until told to stop, ignoring
// cancellation so late events can be observed.
type scriptedSearcher struct {
	release chan struct{}
	events  []sse.Event
}

func (s *scriptedSearcher) Search(ctx context.Context, req search.Request, sink stream.Sink) error {
	<-s.release
	for _, ev := range s.events {
		sink.Handle(ev)
	}
	sink.Finish()
	return nil
}

func TestLateEventsOfSupersededQueryAreIgnored(t *testing.T) {
	t.Parallel()

	searcher := &scriptedSearcher{
		release: make(chan struct{}),
		events: []sse.Event{
			{Kind: sse.KindToken, Text: "late"},
			{Kind: sse.KindResults, Results: []search.APIResult{{Rank: 1}}},
		},
	}
	sess := New(searcher, time.Hour, nil, nil)
	defer sess.Close()

	var mu sync.Mutex
	var fired []string
	cb := stream.Callbacks{
		OnToken:    func(s string) { mu.Lock(); fired = append(fired, s); mu.Unlock() },
		OnResults:  func([]search.Result) { mu.Lock(); fired = append(fired, "results"); mu.Unlock() },
		OnComplete: func() { mu.Lock(); fired = append(fired, "complete"); mu.Unlock() },
	}

	qa := sess.Submit(context.Background(), request("A"), cb)
	qb := sess.Submit(context.Background(), request("B"), stream.Callbacks{})
	close(searcher.release)
	require.NoError(t, qa.Wait())
	require.NoError(t, qb.Wait())

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, fired)
	assert.Equal(t, "", qa.Router.Text())
	assert.Equal(t, stream.PhaseCompleted, qb.Router.Phase())
}

func TestRetargetClampsVisibleSummary(t *testing.T) {
	t.Parallel()

	searcher := &scriptedSearcher{
		release: make(chan struct{}),
		events:  []sse.Event{{Kind: sse.KindToken, Text: "first summary"}},
	}
	close(searcher.release)

	sess := New(searcher, time.Millisecond, nil, nil)
	defer sess.Close()

	qa := sess.Submit(context.Background(), request("A"), stream.Callbacks{})
	require.NoError(t, qa.Wait())
	require.Eventually(t, func() bool { return sess.Visible() == "first summary" }, 2*time.Second, time.Millisecond)

	blocked := &scriptedSearcher{release: make(chan struct{})}
	sess.searcher = blocked
	qb := sess.Submit(context.Background(), request("B"), stream.Callbacks{})
	assert.Equal(t, 0, sess.VisibleLen(), "visible text clamps when the new query starts")
	assert.Equal(t, "", sess.Visible())
	assert.True(t, sess.Revealing())

	close(blocked.release)
	require.NoError(t, qb.Wait())
}

func TestCancel(t *testing.T) {
	t.Parallel()

	searcher := &scriptedSearcher{
		release: make(chan struct{}),
		events:  []sse.Event{{Kind: sse.KindToken, Text: "x"}},
	}
	sess := New(searcher, time.Hour, nil, nil)

	c := &counter{}
	q := sess.Submit(context.Background(), request("A"), c.callbacks())
	sess.Cancel()
	assert.Nil(t, sess.Current())
	assert.Equal(t, stream.PhaseDetached, q.Router.Phase())

	close(searcher.release)
	require.NoError(t, q.Wait())
	assert.Zero(t, c.total())

	sess.Close()
	late := sess.Submit(context.Background(), request("B"), c.callbacks())
	assert.ErrorIs(t, late.Wait(), context.Canceled)
	assert.Zero(t, c.total())
}
