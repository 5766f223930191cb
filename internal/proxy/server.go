// internal/proxy/server.go
// Package proxy forwards search requests to the retrieval service and relays
// its event stream verbatim.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mwiater/ragview/internal/appconfig"
	"github.com/mwiater/ragview/internal/logging"
	"github.com/mwiater/ragview/internal/metrics"
)

const (
	readBufferSize = 32 * 1024
	shutdownGrace  = 5 * time.Second
)

// Server is the forwarding proxy.
type Server struct {
	upstream string
	timeout  time.Duration
	client   *http.Client
	logger   *zap.Logger
}

// New constructs a proxy for cfg.Proxy.
func New(cfg *appconfig.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		upstream: strings.TrimSpace(cfg.Proxy.Upstream),
		timeout:  cfg.ProxyTimeout(),
		client: &http.Client{
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
		logger: logger.Named("proxy"),
	}
}

// Handler returns the proxy's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(accessLog(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/api/search", s.handleSearch)
	r.Post("/api/search", s.handleSearch)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting proxy", zap.String("addr", addr), zap.String("upstream", s.upstream))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("proxy shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	if s.upstream == "" {
		writeError(w, http.StatusInternalServerError, "upstream not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	upReq, err := s.upstreamRequest(ctx, r)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp, err := s.client.Do(upReq)
	if err != nil {
		logger.Warn("upstream request failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("upstream returned error status", zap.Int("status", resp.StatusCode))
		writeError(w, resp.StatusCode, fmt.Sprintf("upstream returned %d", resp.StatusCode))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	n, err := relay(w, resp.Body)
	if err != nil && r.Context().Err() == nil {
		logger.Warn("stream relay interrupted", zap.Int64("bytes", n), zap.Error(err))
		return
	}
	logger.Debug("stream relayed", zap.Int64("bytes", n))
}

// upstreamRequest builds the forwarded request. GET keeps the query string;
// POST forwards the JSON body.
func (s *Server) upstreamRequest(ctx context.Context, r *http.Request) (*http.Request, error) {
	target, err := url.Parse(s.upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %q: %w", s.upstream, err)
	}

	var body io.Reader
	if r.Method == http.MethodGet {
		q := target.Query()
		for key, values := range r.URL.Query() {
			q[key] = values
		}
		target.RawQuery = q.Encode()
	} else {
		body = r.Body
	}

	upReq, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	upReq.Header.Set("Accept", "text/event-stream")
	if ct := r.Header.Get("Content-Type"); ct != "" && body != nil {
		upReq.Header.Set("Content-Type", ct)
	}
	return upReq, nil
}

// relay copies src to w, flushing after every read so frames are not held back.
func relay(w http.ResponseWriter, src io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, readBufferSize)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
