package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

const heartbeatInterval = 30 * time.Second

type sessionFeed interface {
	Subscribe() chan domain.SessionEvent
	Unsubscribe(ch chan domain.SessionEvent)
	Recent() []domain.SessionEvent
}

// Server exposes the status page and an SSE stream of session events.
type Server struct {
	Addr   string
	Events sessionFeed

	logger    *zap.Logger
	heartbeat time.Duration
}

// NewServer creates a new web server instance.
func NewServer(addr string, feed sessionFeed, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, Events: feed, logger: logger, heartbeat: heartbeatInterval}
}

// Handler routes of the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/session", s.handleSessions)
	mux.HandleFunc("/session/stream", s.handleSessionStream)

	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("dashboard listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "dashboard server")
	}
	return nil
}

// StartWithAutoTLS serves HTTPS with ACME certificates for domains and answers
// HTTP-01 challenges on :80.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return domain.NewValidationError("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("dashboard listening with auto TLS", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "dashboard tls server")
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "session feed not available")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Events.Recent()); err != nil {
		s.logger.Warn("failed to encode sessions", zap.Error(err))
	}
}

func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "session feed not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.Events.Subscribe()
	defer s.Events.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	send := func(e domain.SessionEvent) bool {
		payload, err := json.Marshal(e)
		if err != nil {
			s.logger.Warn("failed to encode session event", zap.Error(err))
			return true
		}
		if _, err := fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for _, e := range s.Events.Recent() {
		if !send(e) {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e, open := <-ch:
			if !open || !send(e) {
				return
			}
		}
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>rangebot</title>
  <style>
    body { font-family:'Space Mono','JetBrains Mono',monospace; margin:2rem; color:#111; }
    table { border-collapse:collapse; width:100%; }
    th, td { border-bottom:1px solid #ddd; padding:.4rem .6rem; text-align:left; }
    .failed { color:#b00020; }
    .complete { color:#006400; }
  </style>
</head>
<body>
  <h1>rangebot sessions</h1>
  <table>
    <thead><tr><th>time</th><th>platform</th><th>pair</th><th>state</th><th>message</th><th>order</th></tr></thead>
    <tbody id="events"></tbody>
  </table>
  <script>
    const body = document.getElementById('events');
    const source = new EventSource('/session/stream');
    source.addEventListener('session', (msg) => {
      const e = JSON.parse(msg.data);
      const row = document.createElement('tr');
      row.className = e.state;
      for (const v of [e.ts, e.platform, e.pair, e.state, e.error || e.message || '', e.order_id || '']) {
        const cell = document.createElement('td');
        cell.textContent = v;
        row.appendChild(cell);
      }
      body.prepend(row);
    });
  </script>
</body>
</html>
`
