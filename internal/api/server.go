// Package api serves the read-only HTTP surface next to the WebSocket
// endpoint: poll history, the active poll, the join QR code, and health.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"pollroom/internal/config"
	"pollroom/internal/results"
	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// Polls is the read view over poll state the HTTP endpoints need.
type Polls interface {
	HistoryWithResults(ctx context.Context) ([]types.PollHistoryEntry, error)
	Remaining(poll *types.Poll) int
}

// Server hosts the REST endpoints and mounts the WebSocket handler.
type Server struct {
	cfg     config.HTTPConfig
	store   interfaces.Store
	polls   Polls
	stats   func() map[string]int
	ws      http.Handler
	httpSrv *http.Server
}

// NewServer assembles the HTTP server. stats reports live connection counts
// for the health payload.
func NewServer(cfg config.HTTPConfig, store interfaces.Store, polls Polls, stats func() map[string]int, ws http.Handler) *Server {
	s := &Server{
		cfg:   cfg,
		store: store,
		polls: polls,
		stats: stats,
		ws:    ws,
	}
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.ws)
	mux.HandleFunc("/api/polls/history", s.handleHistory)
	mux.HandleFunc("/api/polls/active", s.handleActive)
	mux.HandleFunc("/api/join-qr", s.handleJoinQR)
	mux.HandleFunc("/health", s.handleHealth)
	return corsMiddleware(mux)
}

// Start blocks serving HTTP until Shutdown or failure.
func (s *Server) Start() error {
	log.Printf("HTTP server listening on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	history, err := s.polls.HistoryWithResults(r.Context())
	if err != nil {
		log.Printf("Failed to load poll history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"polls": history})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	active, err := s.store.FindActivePoll(r.Context())
	if err != nil {
		log.Printf("Failed to load active poll: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load active poll")
		return
	}
	if active == nil {
		writeJSON(w, http.StatusOK, types.PollStatePayload{Results: map[string]int{}})
		return
	}

	votes, err := s.store.FindVotesByPoll(r.Context(), active.ID)
	if err != nil {
		log.Printf("Failed to load votes: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load votes")
		return
	}
	writeJSON(w, http.StatusOK, types.PollStatePayload{
		Poll:          active,
		RemainingTime: s.polls.Remaining(active),
		Results:       results.Tally(votes),
	})
}

// handleJoinQR renders the public join URL as a PNG QR code the teacher can
// project.
func (s *Server) handleJoinQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	png, err := qrcode.Encode(s.cfg.PublicURL, qrcode.Medium, 256)
	if err != nil {
		log.Printf("Failed to encode QR code: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	payload := map[string]interface{}{
		"status":      "ok",
		"connections": s.stats(),
	}
	if err := s.store.HealthCheck(ctx); err != nil {
		payload["status"] = "degraded"
		payload["database"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, payload)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
