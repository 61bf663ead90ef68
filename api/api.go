// Package api exposes the orchestrator over HTTP and streams its events over
// a websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hupe1980/eduswarm/agent"
	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/logging"
	"github.com/hupe1980/eduswarm/orchestrator"
	"github.com/hupe1980/eduswarm/swarm"
)

// Pinger is implemented by collaborators that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure a Server.
type Options struct {
	// Health lists named dependencies checked by /healthz.
	Health map[string]Pinger
	// EventBuffer bounds the per-connection event backlog. Events beyond it
	// are dropped for that connection.
	EventBuffer int
	Logger      logging.Logger
}

// Server is the HTTP transport.
type Server struct {
	orch   *orchestrator.Orchestrator
	opts   Options
	logger logging.Logger
	router chi.Router
}

// New builds a server around orch.
func New(orch *orchestrator.Orchestrator, optFns ...func(o *Options)) *Server {
	opts := Options{EventBuffer: 64}
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &Server{orch: orch, opts: opts, logger: core.EnsureLogger(opts.Logger)}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.startSession)
		r.Get("/sessions/current", s.currentSession)
		r.Delete("/sessions/current", s.endSession)
		r.Post("/messages", s.postMessage)
		r.Get("/agents", s.listAgents)
		r.Post("/agents/{id}/activate", s.activateAgent)
		r.Delete("/agents/{id}", s.deactivateAgent)
		r.Get("/graph", s.graph)
		r.Get("/users/{id}/sessions", s.recentSessions)
		r.Get("/events", s.events)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error body.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrSessionActive):
		status = http.StatusConflict
	case errors.Is(err, orchestrator.ErrNoActiveSession), errors.Is(err, agent.ErrNoActiveSession):
		status = http.StatusConflict
	case errors.Is(err, agent.ErrUnknownAgent), errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, orchestrator.ErrNotInitialized):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("http.error", "error", err)
	}
	Error(w, status, err.Error())
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.opts.Health))
	status := http.StatusOK
	for name, p := range s.opts.Health {
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = "unreachable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	JSON(w, status, map[string]any{
		"status":      http.StatusText(status),
		"initialized": s.orch.Initialized(),
		"checks":      checks,
	})
}

type startSessionRequest struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decode(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	snap, err := s.orch.StartSession(r.Context(), req.UserID, req.AgentID)
	if err != nil {
		s.fail(w, err)
		return
	}
	JSON(w, http.StatusCreated, snap)
}

func (s *Server) currentSession(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.orch.Session()
	if !ok {
		Error(w, http.StatusNotFound, orchestrator.ErrNoActiveSession.Error())
		return
	}
	JSON(w, http.StatusOK, snap)
}

type endSessionRequest struct {
	Summary string `json:"summary"`
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := decode(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := s.orch.EndSession(r.Context(), req.Summary)
	if err != nil {
		s.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

type messageRequest struct {
	Message    string `json:"message"`
	AgentID    string `json:"agent_id"`
	UseTools   bool   `json:"use_tools"`
	ToolChoice string `json:"tool_choice"`
	Model      string `json:"model"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	nodeID, err := s.orch.ProcessUserMessage(r.Context(), req.Message, orchestrator.MessageOptions{
		AgentID: req.AgentID,
		ResponseOptions: agent.ResponseOptions{
			UseTools:   req.UseTools,
			ToolChoice: req.ToolChoice,
			Model:      req.Model,
		},
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"node_id": nodeID})
}

type agentView struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	AvatarID         string            `json:"avatar_id,omitempty"`
	Status           swarm.AgentStatus `json:"status"`
	ActivatedAt      *time.Time        `json:"activated_at,omitempty"`
	ActivationNodeID string            `json:"activation_node_id,omitempty"`
	Responses        int               `json:"responses"`
}

func (s *Server) listAgents(w http.ResponseWriter, _ *http.Request) {
	registry := make(map[string]swarm.Agent)
	for _, a := range s.orch.Agents() {
		registry[a.ID] = a
	}

	out := make([]agentView, 0, len(s.orch.Catalog().Agents))
	for _, info := range s.orch.Catalog().Agents {
		v := agentView{
			ID:          info.ID,
			Name:        info.Name,
			Description: info.Description,
			AvatarID:    info.AvatarID,
			Status:      swarm.AgentReady,
		}
		if a, ok := registry[info.ID]; ok {
			v.Status = a.Status
			v.ActivationNodeID = a.ActivationNodeID
			v.Responses = len(a.History)
			if !a.ActivatedAt.IsZero() {
				at := a.ActivatedAt
				v.ActivatedAt = &at
			}
		}
		out = append(out, v)
	}
	JSON(w, http.StatusOK, out)
}

type activateRequest struct {
	ConnectionType string `json:"connection_type"`
	SourceNodeID   string `json:"source_node_id"`
}

func (s *Server) activateAgent(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decode(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	connType := core.EdgeType(req.ConnectionType)
	if connType == "" {
		connType = core.EdgeDirect
	}
	id := chi.URLParam(r, "id")
	if err := s.orch.ActivateAgent(r.Context(), id, connType, req.SourceNodeID); err != nil {
		s.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"agent_id": id, "status": string(swarm.AgentActive)})
}

func (s *Server) deactivateAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DeactivateAgent(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) graph(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, s.orch.Graph())
}

func (s *Server) recentSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	sessions, err := s.orch.RecentSessions(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if sessions == nil {
		sessions = []core.SessionRecord{}
	}
	JSON(w, http.StatusOK, sessions)
}
