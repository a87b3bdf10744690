// Package server is the HTTP transport for the turn engine. It stays
// thin: JSON in, JSON out, no game logic. Authentication is expected to
// happen upstream (reverse proxy or API gateway).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loremaster-ai/loremaster/internal/observe"
	"github.com/loremaster-ai/loremaster/internal/pipeline"
	"github.com/loremaster-ai/loremaster/pkg/memory"
)

// checkTimeout bounds a single readiness probe.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the
// dependency is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config wires a [Server]. Metrics and Checkers may be nil.
type Config struct {
	Engine   *pipeline.Engine
	Sessions memory.SessionStore
	Metrics  *observe.Metrics
	Checkers []Checker
}

// Server serves the turn API. Construct with [New].
type Server struct {
	engine   *pipeline.Engine
	sessions memory.SessionStore
	metrics  *observe.Metrics
	checkers []Checker
	logger   *slog.Logger
}

// New builds a server from cfg.
func New(cfg Config) *Server {
	return &Server{
		engine:   cfg.Engine,
		sessions: cfg.Sessions,
		metrics:  cfg.Metrics,
		checkers: cfg.Checkers,
		logger:   slog.Default().With("component", "server"),
	}
}

// Handler returns the full route table:
//
//	POST /api/sessions                    — create a session
//	GET  /api/sessions?user_id=U          — list a user's sessions
//	GET  /api/sessions/{sessionID}        — current session state
//	POST /api/sessions/{sessionID}/turns  — process one player message
//	POST /api/sessions/{sessionID}/rolls  — roll dice
//	GET  /api/sessions/{sessionID}/ws     — websocket turn transport
//	GET  /healthz, /readyz, /metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{sessionID}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{sessionID}/turns", s.handleTurn)
	mux.HandleFunc("POST /api/sessions/{sessionID}/rolls", s.handleRoll)
	mux.HandleFunc("GET /api/sessions/{sessionID}/ws", s.handleTurnSocket)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.metrics != nil {
		return observe.Middleware(s.metrics)(mux)
	}
	return mux
}

// createSessionRequest is the JSON body for session creation.
type createSessionRequest struct {
	UserID      string `json:"user_id"`
	CharacterID string `json:"character_id"`
	WorldID     string `json:"world_id"`
	ModuleID    string `json:"module_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	session, err := s.engine.CreateSession(r.Context(), req.UserID, req.CharacterID, req.WorldID, req.ModuleID)
	if err != nil {
		s.logger.Error("create session failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	infos, err := s.sessions.List(r.Context(), userID)
	if err != nil {
		s.logger.Error("list sessions failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not list sessions")
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	cp, err := s.sessions.Load(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("load session failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	if cp == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, cp.Session)
}

// turnRequest is the JSON body for the turn endpoint.
type turnRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.engine.ProcessMessage(r.Context(), pipeline.Request{
		SessionID: sessionID,
		UserID:    req.UserID,
		Message:   req.Message,
	})
	if err != nil {
		s.writeTurnError(w, sessionID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeTurnError maps engine errors to HTTP statuses.
func (s *Server) writeTurnError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, pipeline.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, memory.ErrRevisionConflict):
		writeError(w, http.StatusConflict, "session was modified concurrently; retry")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		s.logger.Error("turn failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "turn failed")
	}
}

// rollRequest is the JSON body for the dice endpoint.
type rollRequest struct {
	UserID   string `json:"user_id"`
	DiceType string `json:"dice_type"`
	Modifier int    `json:"modifier"`
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	var req rollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	log, err := s.engine.Roll(r.Context(), sessionID, req.UserID, req.DiceType, req.Modifier)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownDice) {
			writeError(w, http.StatusBadRequest, "unknown dice type")
			return
		}
		s.logger.Error("roll failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "roll failed")
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// healthResult is the JSON body for the probe endpoints.
type healthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealthz is the liveness probe; serving HTTP is being alive.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResult{Status: "ok"})
}

// handleReadyz runs every configured checker and fails the probe if any
// dependency is down.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checkers))
	status := http.StatusOK

	for _, c := range s.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[c.Name] = "ok"
		}
	}

	body := healthResult{Status: "ok", Checks: checks}
	if status != http.StatusOK {
		body.Status = "fail"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
