package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/goodieshq/bitbridge/internal/session"
	"github.com/goodieshq/bitbridge/internal/translate"
	"github.com/goodieshq/bitbridge/internal/utils"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Link reports the state of the hub connection
type Link interface {
	State() string
	Connected() bool
}

type ServerOpts struct {
	Addr     string
	Link     Link
	Session  *session.State
	Store    *translate.Store
	Gatherer prometheus.Gatherer
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout *time.Duration
}

// Server exposes health, readiness, metrics and session state over HTTP
type Server struct {
	opts    ServerOpts
	router  *mux.Router
	started time.Time
}

func NewServer(opts ServerOpts) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Session == nil {
		opts.Session = session.New()
	}
	if opts.Store == nil {
		opts.Store = translate.NewStore()
	}

	s := &Server{
		opts:    opts,
		router:  mux.NewRouter(),
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(requestLogger(log.Logger))
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	s.router.HandleFunc("/translations", s.handleTranslations).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.opts.Addr).Msg("Status server listening")
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

	timeout := utils.DefaultIfNil(s.opts.ShutdownTimeout, 5*time.Second)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) state() (string, bool) {
	if s.opts.Link == nil {
		return "unknown", false
	}
	return s.opts.Link.State(), s.opts.Link.Connected()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state, _ := s.state()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": utils.DisplayTime(time.Since(s.started)),
		"link":   state,
	})
}

type readiness struct {
	Ready               bool    `json:"ready"`
	Link                string  `json:"link"`
	Connected           bool    `json:"connected"`
	TranslationsVersion float64 `json:"translations_version"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	state, connected := s.state()
	resp := readiness{Link: state, Connected: connected}
	if tbl := s.opts.Store.Load(); tbl != nil {
		resp.TranslationsVersion = tbl.Version
		resp.Ready = connected
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Session.Snapshot())
}

func (s *Server) handleTranslations(w http.ResponseWriter, r *http.Request) {
	tbl := s.opts.Store.Load()
	if tbl == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no translations loaded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  tbl.Version,
		"services": tbl.Names(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response body")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			event := logger.Debug()
			if rec.status >= 500 && rec.status != http.StatusServiceUnavailable {
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("http_request")
		})
	}
}
