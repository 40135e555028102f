// Package api serves the bot's state, health, and metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"runtime"
	"time"

	"solana-pool-cycler/internal/observability"
	"solana-pool-cycler/internal/state"
)

// Server exposes read-only endpoints over the cycle record.
type Server struct {
	store     state.Store
	startedAt time.Time
}

// NewServer creates a server projecting the given store.
func NewServer(store state.Store) *Server {
	return &Server{
		store:     store,
		startedAt: time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/bot-state", s.handleBotState)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/metrics", observability.Handler())
	return mux
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// indexResponse is the service banner at /.
type indexResponse struct {
	Service   string   `json:"service"`
	Status    string   `json:"status"`
	Endpoints []string `json:"endpoints"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
		return
	}

	writeJSON(w, http.StatusOK, indexResponse{
		Service: "solana-pool-cycler",
		Status:  "running",
		Endpoints: []string{
			"/api/bot-state",
			"/api/health",
			"/metrics",
		},
	})
}

func (s *Server) handleBotState(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Read(r.Context())
	if err != nil {
		s.log("read bot state: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to retrieve bot state",
		})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// healthResponse is the JSON response for /api/health.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
	GoVersion string `json:"goVersion"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		GoVersion: runtime.Version(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) log(format string, args ...interface{}) {
	log.Printf("[api] "+format, args...)
}
