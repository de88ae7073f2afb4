// Package server exposes the agent runtime over HTTP as a streamed chat endpoint.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/user/agentflow/internal/runtime"
	"github.com/user/agentflow/internal/stream"
	"github.com/user/agentflow/internal/types"
)

// ChatPath is the streamed chat endpoint.
const ChatPath = "/api/v1/agents/chat"

const maxRequestBody = 4 * 1024 * 1024

// Server is the HTTP front of the runtime.
type Server struct {
	rt      *runtime.Runtime
	sem     *semaphore.Weighted
	mux     *http.ServeMux
	handler http.Handler
}

// NewServer creates a Server running at most maxConcurrent turns at once.
// Further requests wait for a slot until their client goes away.
func NewServer(rt *runtime.Runtime, maxConcurrent int64, allowedOrigin string) *Server {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	s := &Server{
		rt:  rt,
		sem: semaphore.NewWeighted(maxConcurrent),
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST "+ChatPath, s.handleChat)
	s.handler = Cors(allowedOrigin, s.mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	turn, err := s.rt.Prepare(req)
	if err != nil {
		if errors.Is(err, runtime.ErrMissingModel) || errors.Is(err, runtime.ErrMissingAPIKey) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("prepare turn failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		slog.Info("client left while waiting for a slot", "turn_id", turn.ID)
		return
	}
	defer s.sem.Release(1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := stream.NewWriter(w)
	if err := turn.Execute(ctx, sw); err != nil {
		if ctx.Err() != nil {
			slog.Info("client disconnected mid-turn", "turn_id", turn.ID)
			return
		}
		slog.Error("turn failed", "turn_id", turn.ID, "error", err)
		if werr := sw.WriteEvent(stream.Content("Error: " + err.Error())); werr != nil {
			return
		}
	}
	if err := sw.WriteDone(); err != nil {
		slog.Debug("write done frame", "turn_id", turn.ID, "error", err)
	}
}
