// Package server exposes the host over HTTP: a chat endpoint that runs
// one workflow turn, an SSE stream per session, and the usual health
// and metrics surfaces.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/mcphost/internal/sessions"
	"github.com/haasonsaas/mcphost/internal/stream"
	"github.com/haasonsaas/mcphost/internal/workflow"
	"github.com/haasonsaas/mcphost/pkg/models"
)

// TurnRunner executes one chat turn. Satisfied by workflow.Executor.
type TurnRunner interface {
	Execute(ctx context.Context, sessionID, message string, reactMode bool) (*workflow.TurnState, error)
}

// Server wires the HTTP surface to the workflow executor and the
// stream hub.
type Server struct {
	runner TurnRunner
	hub    *stream.Hub
	store  *sessions.Store
	logger *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New creates a server for the given collaborators.
func New(runner TurnRunner, hub *stream.Hub, store *sessions.Store, logger *slog.Logger) *Server {
	return &Server{
		runner: runner,
		hub:    hub,
		store:  store,
		logger: logger.With("component", "http"),
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /stream/{session_id}", s.handleStream)
	mux.HandleFunc("GET /sessions/{session_id}/history", s.handleHistory)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("http server started", "addr", addr)
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	ReactMode bool   `json:"react_mode"`
}

type chatResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	ToolCalls int    `json:"tool_calls"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = stream.NewSessionID()
	}

	st, err := s.runner.Execute(r.Context(), sessionID, req.Message, req.ReactMode)
	if err != nil {
		s.logger.Warn("turn aborted", "session", sessionID, "error", err)
		writeJSON(w, http.StatusOK, &chatResponse{
			SessionID: sessionID,
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, &chatResponse{
		Success:   st.Success,
		Message:   st.Response,
		SessionID: sessionID,
		ToolCalls: len(st.ToolCalls),
		Error:     st.Error,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	entries := s.store.History(sessionID, 0)
	if entries == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   entries,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.store.ActiveCount(),
		"streams":  s.hub.ConnectionCount(),
	})
}

// handleStream attaches the caller as the session's SSE subscriber.
// Opening the stream displaces any previous subscriber of the same
// session. The writer forwards hub records as SSE data frames and emits
// a heartbeat comment when the session goes quiet.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	conn, err := s.hub.Open(sessionID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer s.hub.Close(conn.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	heartbeat := time.NewTicker(stream.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, models.SSEHeartbeat); err != nil {
				return
			}
			flusher.Flush()
		case msg, open := <-conn.Receive():
			if !open {
				return
			}
			if _, err := fmt.Fprint(w, msg.SSERecord()); err != nil {
				return
			}
			flusher.Flush()
			heartbeat.Reset(stream.HeartbeatInterval)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
