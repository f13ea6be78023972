// Package server exposes the relay's HTTP surface: health, the
// authorization flow endpoints and the authenticated send endpoint.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/relaykit/gmail-relay/internal/authflow"
	"github.com/relaykit/gmail-relay/internal/config"
	"github.com/relaykit/gmail-relay/internal/logging"
	"github.com/relaykit/gmail-relay/internal/relay"
)

const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second
)

// Server is the relay HTTP server.
type Server struct {
	apiKey     string
	relay      *relay.Service
	auth       *authflow.Controller
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
	addr       string
}

// New wires the router. The send endpoint is gated by the shared
// secret; the body-size limit applies to all routes.
func New(cfg config.Config, svc *relay.Service, auth *authflow.Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		apiKey: cfg.APIKey,
		relay:  svc,
		auth:   auth,
		logger: logger,
		addr:   cfg.HTTPAddr,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(cfg.BodyLimit))

	r.Get("/health", s.handleHealth)
	r.Get("/auth/start", auth.Start)
	r.Get("/auth/callback", auth.Callback)
	r.With(s.requireAPIKey).Post("/send", s.handleSend)

	s.router = r
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start runs the server in a blocking manner.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	s.logger.Info("starting relay server", slog.String("addr", s.addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		s.logger.Info("shutting down relay server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// requireAPIKey rejects requests whose x-api-key header does not match
// the shared secret, before any further work is done.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-api-key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			s.writeError(w, relay.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req relay.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, relay.ValidationError("Invalid request body"))
		return
	}

	result, rerr := s.relay.Send(r.Context(), &req)
	if rerr != nil {
		s.logger.Error("send failed",
			logging.Operation("send"),
			logging.Status(logging.StatusError),
			slog.Int("http_status", rerr.Status),
			logging.Err(rerr),
		)
		s.writeError(w, rerr)
		return
	}

	sendsTotal.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeError(w http.ResponseWriter, rerr *relay.Error) {
	sendsTotal.WithLabelValues(strconv.Itoa(rerr.Status)).Inc()
	writeJSON(w, rerr.Status, map[string]string{"error": rerr.Message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
