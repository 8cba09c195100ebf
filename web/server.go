// Package web provides the thin trigger surface for the sync engine. The
// endpoints mirror the external contract: fire a sync, register an
// agreement token, report health. All sync behaviour lives in the sync
// package; the routing here is deliberately minimal.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	syncer "github.com/squaremeter/economirror/sync"
)

// Runner triggers sync passes. Satisfied by *sync.Orchestrator.
type Runner interface {
	Run(ctx context.Context) (*syncer.Report, error)
	RunInvoices(ctx context.Context) (*syncer.Report, error)
}

// Registrar validates and stores a new agreement grant token. Implemented
// by the entrypoint over the source client and the mirror store.
type Registrar interface {
	RegisterToken(ctx context.Context, token string) (agreementNumber, name string, err error)
}

// syncTimeout bounds a triggered sync pass; full passes over many tenants
// are long-running.
const syncTimeout = 2 * time.Hour

// Server is the trigger web server.
type Server struct {
	log       *slog.Logger
	runner    Runner
	registrar Registrar
	listen    string
	server    *http.Server

	// running serializes sync triggers: a second trigger while a pass is
	// in flight receives 409.
	running sync.Mutex
}

// New initialises a Server.
func New(logger *slog.Logger, runner Runner, registrar Registrar, listenAddress string) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(
			os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo},
		))
	}
	return &Server{
		log:       logger,
		runner:    runner,
		registrar: registrar,
		listen:    listenAddress,
		server: &http.Server{
			Addr:              listenAddress,
			ReadHeaderTimeout: 30 * time.Second,
		},
	}
}

// Start starts the server and blocks until it exits.
func (s *Server) Start() error {
	s.server.Handler = s.routes()
	s.log.Info(fmt.Sprintf("starting trigger server on %s", s.listen))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// routes connects the endpoints and provides logging middleware.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Handle("/api/sync", s.handleSync(s.runner.Run)).Methods(http.MethodPost)
	r.Handle("/api/invoices/sync", s.handleSync(s.runner.RunInvoices)).Methods(http.MethodPost)
	r.Handle("/api/agreements/register-token", s.handleRegisterToken()).Methods(http.MethodPost)
	r.Handle("/health", s.handleHealth()).Methods(http.MethodGet)
	return handlers.LoggingHandler(os.Stdout, r)
}

// handleSync runs the given sync entrypoint, rejecting concurrent triggers.
func (s *Server) handleSync(run func(ctx context.Context) (*syncer.Report, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.running.TryLock() {
			writeJSON(w, http.StatusConflict, map[string]any{
				"status":  "error",
				"message": "a sync is already running",
			})
			return
		}
		defer s.running.Unlock()

		ctx, cancel := context.WithTimeout(r.Context(), syncTimeout)
		defer cancel()

		report, err := run(ctx)
		if err != nil {
			s.serverError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})
}

// handleRegisterToken validates a candidate grant token against the source
// API and stores the agreement it belongs to.
func (s *Server) handleRegisterToken() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]string{"message": "token is required"},
			})
			return
		}

		number, name, err := s.registrar.RegisterToken(r.Context(), body.Token)
		if err != nil {
			s.log.Error(fmt.Sprintf("token registration failed: %v", err))
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]string{"message": err.Error()},
			})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{
			"agreementNumber": number,
			"name":            name,
		})
	})
}

// handleHealth reports liveness.
func (s *Server) handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// serverError sends a 500 with the error message. Modules called by this
// server provide self-describing errors.
func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.log.Error(fmt.Sprintf("server error: %v", err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"status":  "error",
		"message": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
