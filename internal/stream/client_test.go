package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/ragview/internal/appconfig"
	"github.com/mwiater/ragview/internal/search"
	"github.com/mwiater/ragview/internal/sse"
)

const scenarioStream = `data: {"type":"search_results","data":[` +
	`{"rank":3,"similarity":0.71,"page_id":30,"page_number":3,"Article_id":3,"Article_title":"سوم","Article_url":"example.org/3","language":"fa","preview":"c"},` +
	`{"rank":1,"similarity":0.93,"page_id":10,"page_number":1,"Article_id":1,"Article_title":"اول","Article_title_tr":"First","Article_url":"example.org/1","language":"fa","preview":"a"},` +
	`{"rank":5,"similarity":0.42,"page_id":50,"page_number":5,"Article_id":5,"Article_title":"پنجم","Article_url":"example.org/5","language":"fa","preview":"e"},` +
	`{"rank":2,"similarity":0.88,"page_id":20,"page_number":2,"Article_id":2,"Article_title":"دوم","Article_url":"example.org/2","language":"fa","preview":"b"},` +
	`{"rank":4,"similarity":0.55,"page_id":40,"page_number":4,"Article_id":4,"Article_title":"چهارم","Article_url":"example.org/4","language":"fa","preview":"d"}` +
	"]}\n\n" +
	`data: {"type":"token","data":"{\"message\":{\"content\":\"Hel\"}}"}` + "\n\n" +
	`data: {"type":"token","data":"{\"message\":{\"content\":\"lo\"},\"done\":true}"}` + "\n\n" +
	"data: [DONE]\n\n"

// chunkedHandler writes body in the given pieces, flushing after each.
func chunkedHandler(t *testing.T, pieces []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Errorf("response writer does not flush")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, piece := range pieces {
			if _, err := w.Write([]byte(piece)); err != nil {
				return
			}
			flusher.Flush()
			time.Sleep(time.Millisecond)
		}
	}
}

func splitAt(s string, cuts ...int) []string {
	sort.Ints(cuts)
	pieces := make([]string, 0, len(cuts)+1)
	prev := 0
	for _, c := range cuts {
		pieces = append(pieces, s[prev:c])
		prev = c
	}
	return append(pieces, s[prev:])
}

func newTestClient(baseURL string) *Client {
	return New(&appconfig.Config{BaseURL: baseURL}, nil)
}

func testRequest(query string) search.Request {
	return search.NewRequest(query, search.Options{TopK: 5, Temperature: 0.7})
}

func TestClientEndToEndScenario(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	splits := [][]int{
		{len(scenarioStream) / 3, 2 * len(scenarioStream) / 3},
		{strings.Index(scenarioStream, "سوم") + 1, strings.Index(scenarioStream, `\"Hel`) + 3},
		{1, len(scenarioStream) - 1},
	}
	for i := 0; i < 10; i++ {
		splits = append(splits, []int{1 + rng.Intn(len(scenarioStream)-1), 1 + rng.Intn(len(scenarioStream)-1)})
	}

	for i, cuts := range splits {
		cuts := cuts
		t.Run(fmt.Sprintf("split_%d", i), func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(chunkedHandler(t, splitAt(scenarioStream, cuts...)))
			defer srv.Close()

			rec := &recorder{}
			router := NewRouter("q", rec.callbacks(), nil)
			err := newTestClient(srv.URL).Search(context.Background(), testRequest("q"), router)
			require.NoError(t, err)

			got := rec.snapshot()
			require.Len(t, got.results, 1)
			require.Len(t, got.results[0], 5)
			assert.Equal(t, []int{1, 2, 3, 4, 5}, ranks(got.results[0]))
			assert.Equal(t, "First", got.results[0][0].Title)
			assert.Equal(t, "سوم", got.results[0][2].Title)
			assert.Equal(t, []string{"Hel", "lo"}, got.tokens)
			assert.Equal(t, 1, got.completed)
			assert.Empty(t, got.errs)
			assert.Equal(t, "Hello", router.Text())
		})
	}
}

func TestClientSendsRequest(t *testing.T) {
	t.Parallel()

	type captured struct {
		body                      search.Request
		accept, contentType, path string
	}
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{
			accept:      r.Header.Get("Accept"),
			contentType: r.Header.Get("Content-Type"),
			path:        r.URL.Path,
		}
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		seen <- c
		fmt.Fprint(w, "data: {\"type\":\"token\",\"data\":{\"message\":{\"content\":\"ok\"},\"done\":true}}\n")
	}))
	defer srv.Close()

	router := NewRouter("سلام", Callbacks{}, nil)
	req := search.NewRequest("سلام", search.Options{TopK: 3, Temperature: 0.2})
	require.NoError(t, newTestClient(srv.URL).Search(context.Background(), req, router))

	got := <-seen
	assert.Equal(t, req, got.body)
	assert.Equal(t, "text/event-stream", got.accept)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, appconfig.DefaultStreamPath, got.path)
	assert.Equal(t, "ok", router.Text())
}

func TestClientMalformedFrameBetweenGoodFrames(t *testing.T) {
	t.Parallel()

	body := "data: {\"type\":\"token\",\"data\":{\"message\":{\"content\":\"a\"}}}\n" +
		"data: {\"type\":\"token\",\"data\":{\"message\":\n" +
		"data: {\"type\":\"heartbeat\"}\n" +
		"data: {\"type\":\"token\",\"data\":{\"message\":{\"content\":\"b\"}}}\n"
	srv := httptest.NewServer(chunkedHandler(t, []string{body}))
	defer srv.Close()

	rec := &recorder{}
	router := NewRouter("q", rec.callbacks(), nil)
	require.NoError(t, newTestClient(srv.URL).Search(context.Background(), testRequest("q"), router))

	got := rec.snapshot()
	assert.Equal(t, []string{"a", "b"}, got.tokens)
	assert.Equal(t, []sse.EventKind{sse.KindMalformed, sse.KindUnrecognized}, got.dropped)
	assert.Equal(t, 1, got.completed, "clean close completes the stream")
}

func TestClientDiscardsUnterminatedFrame(t *testing.T) {
	t.Parallel()

	body := "data: {\"type\":\"token\",\"data\":{\"message\":{\"content\":\"Hel\"}}}\n" +
		"data: {\"type\":\"token\",\"data\":{\"message\":{\"content\":\"lo\"}}}"
	srv := httptest.NewServer(chunkedHandler(t, []string{body}))
	defer srv.Close()

	rec := &recorder{}
	router := NewRouter("q", rec.callbacks(), nil)
	require.NoError(t, newTestClient(srv.URL).Search(context.Background(), testRequest("q"), router))

	assert.Equal(t, "Hel", router.Text())
	assert.Equal(t, 1, rec.snapshot().completed)
}

func TestClientStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"upstream returned 503"}`)
	}))
	defer srv.Close()

	rec := &recorder{}
	router := NewRouter("q", rec.callbacks(), nil)
	err := newTestClient(srv.URL).Search(context.Background(), testRequest("q"), router)
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "status", terr.Op)
	assert.Equal(t, http.StatusServiceUnavailable, terr.StatusCode)
	assert.Equal(t, "search failed: status 503: upstream returned 503", err.Error())

	got := rec.snapshot()
	require.Len(t, got.errs, 1)
	assert.Same(t, err, got.errs[0])
	assert.Zero(t, got.completed)
	assert.Equal(t, PhaseFailed, router.Phase())
}

func TestClientStatusErrorPlainBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	router := NewRouter("q", Callbacks{}, nil)
	err := newTestClient(srv.URL).Search(context.Background(), testRequest("q"), router)
	assert.EqualError(t, err, "search failed: status 404: not here")
}

func TestClientEmptyBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := &recorder{}
	router := NewRouter("q", rec.callbacks(), nil)
	err := newTestClient(srv.URL).Search(context.Background(), testRequest("q"), router)
	require.ErrorIs(t, err, ErrEmptyBody)

	got := rec.snapshot()
	assert.Len(t, got.errs, 1)
	assert.Zero(t, got.completed)
}

func TestClientTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"token\",\"data\":{\"message\":{\"content\":\"slow\"}}}\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	client.timeout = 100 * time.Millisecond

	rec := &recorder{}
	router := NewRouter("q", rec.callbacks(), nil)
	err := client.Search(context.Background(), testRequest("q"), router)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out after 100ms")

	got := rec.snapshot()
	assert.Equal(t, []string{"slow"}, got.tokens)
	assert.Len(t, got.errs, 1)
	assert.Zero(t, got.completed)
}

func TestClientCancelled(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": open\n")
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	router := NewRouter("q", Callbacks{}, nil)
	errCh := make(chan error, 1)
	go func() {
		errCh <- newTestClient(srv.URL).Search(ctx, testRequest("q"), router)
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Search did not return after cancellation")
	}
}

func TestClientStopsReadingAfterCompletion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"token\",\"data\":{\"message\":{\"content\":\"fin\"},\"done\":true}}\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	rec := &recorder{}
	router := NewRouter("q", rec.callbacks(), nil)

	start := time.Now()
	require.NoError(t, newTestClient(srv.URL).Search(context.Background(), testRequest("q"), router))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, rec.snapshot().completed)
}

func TestClientRejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	rec := &recorder{}
	router := NewRouter("", rec.callbacks(), nil)
	err := newTestClient(srv.URL).Search(context.Background(), testRequest("   "), router)
	require.ErrorIs(t, err, search.ErrInvalidRequest)
	assert.Zero(t, hits.Load())
	assert.Len(t, rec.snapshot().errs, 1)
}

func TestClientConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	router := NewRouter("q", Callbacks{}, nil)
	err := newTestClient(url).Search(context.Background(), testRequest("q"), router)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "request", terr.Op)
	assert.True(t, strings.HasPrefix(err.Error(), "search failed: request:"))
	assert.False(t, errors.Is(err, ErrEmptyBody))
}
