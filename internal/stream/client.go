// internal/stream/client.go
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mwiater/ragview/internal/appconfig"
	"github.com/mwiater/ragview/internal/logging"
	"github.com/mwiater/ragview/internal/search"
	"github.com/mwiater/ragview/internal/sse"
)

const (
	readBufferSize = 32 * 1024
	// maxErrorBody bounds how much of a non-2xx body is read for its message.
	maxErrorBody = 4 * 1024
)

// Searcher issues one streamed search and feeds its events into sink.
// Every failure is reported through sink.Fail before Search returns it.
type Searcher interface {
	Search(ctx context.Context, req search.Request, sink Sink) error
}

// Client is the HTTP implementation of Searcher.
type Client struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration
	logger   *zap.Logger
}

// New constructs a Client configured with the application's endpoint and request timeout.
func New(cfg *appconfig.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client: &http.Client{
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
		endpoint: cfg.Endpoint(),
		timeout:  cfg.RequestTimeout(),
		logger:   logger.Named("stream"),
	}
}

// Endpoint returns the URL searches are posted to.
func (c *Client) Endpoint() string { return c.endpoint }

// Search posts req and streams the response into sink until the transport
// closes, the sink reaches a terminal state or ctx is cancelled.
func (c *Client) Search(ctx context.Context, req search.Request, sink Sink) error {
	if err := req.Validate(); err != nil {
		sink.Fail(err)
		return err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return c.fail(sink, fmt.Errorf("encode request: %w", err))
	}
	logging.LogRequest("RAGVIEW->API", c.endpoint, req.Query, body)

	streamCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return c.fail(sink, &TransportError{Op: "request", Err: err})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return c.fail(sink, &TransportError{Op: "request", Err: c.contextCause(ctx, streamCtx, err)})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.LogRequest("API->RAGVIEW", c.endpoint, req.Query, raw)
		return c.fail(sink, &TransportError{
			Op:         "status",
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		})
	}

	return c.readStream(ctx, streamCtx, resp.Body, req.Query, sink)
}

func (c *Client) readStream(ctx, streamCtx context.Context, body io.Reader, query string, sink Sink) error {
	dec := sse.NewDecoder()
	buf := make([]byte, readBufferSize)
	var total int

	for {
		n, err := body.Read(buf)
		if n > 0 {
			total += n
			for _, line := range dec.Feed(buf[:n]) {
				ev := sse.Parse(line)
				if ev.Kind == sse.KindNone {
					continue
				}
				logging.LogRequest("API->RAGVIEW", c.endpoint, query, ev.Raw)
				sink.Handle(ev)
				if sink.Done() {
					return nil
				}
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if rest := dec.Close(); rest != "" {
				c.logger.Debug("discarding unterminated frame", zap.Int("bytes", len(rest)))
			}
			if total == 0 {
				return c.fail(sink, &TransportError{Op: "body", Err: ErrEmptyBody})
			}
			sink.Finish()
			return nil
		}
		return c.fail(sink, &TransportError{Op: "read", Err: c.contextCause(ctx, streamCtx, err)})
	}
}

func (c *Client) fail(sink Sink, err error) error {
	c.logger.Debug("search failed", zap.Error(err))
	sink.Fail(err)
	return err
}

// contextCause replaces a transport error caused by the request deadline with
// a timeout error, and one caused by the caller's cancellation with ctx.Err().
func (c *Client) contextCause(ctx, streamCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(streamCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", c.timeout, context.DeadlineExceeded)
	}
	return err
}

// errorMessage extracts {"error": "..."} from an error body, falling back to
// the trimmed body text.
func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		return strings.TrimSpace(payload.Error)
	}
	return strings.TrimSpace(string(raw))
}
