package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/mdonan90/ClawController/internal/agent"
	"github.com/mdonan90/ClawController/internal/liveness"
	"github.com/mdonan90/ClawController/pkg/cerr"
)

type AgentServer struct {
	repo     agent.Repository
	liveness liveness.Source
}

func NewAgentServer(repo agent.Repository, livenessSource liveness.Source) *AgentServer {
	return &AgentServer{repo: repo, liveness: livenessSource}
}

func (s *AgentServer) Routes(r chi.Router) {
	r.Get("/agents", s.list)
	r.Post("/agents", s.create)
	r.Get("/agents/{agentID}", s.get)
	r.Patch("/agents/{agentID}/status", s.updateStatus)
	r.Delete("/agents/{agentID}", s.delete)
}

// list returns all agents with their status derived from live session
// activity, overriding the stored status.
func (s *AgentServer) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agents, err := s.repo.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	activity, err := s.liveness.LastActivity(ctx)
	if err == nil {
		now := time.Now()
		for _, a := range agents {
			a.Status = agent.LiveStatus(activity[a.ID], now)
		}
	}
	cerr.SetJSONResponse(ctx, agents)
}

type createAgentRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description"`
	Avatar      string `json:"avatar"`
	Workspace   string `json:"workspace"`
}

func (s *AgentServer) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Name == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "name is required", nil)
		return
	}

	a := &agent.Agent{
		ID:          req.ID,
		Name:        req.Name,
		Role:        agent.Role(req.Role),
		Description: req.Description,
		Avatar:      req.Avatar,
		Status:      agent.StatusStandby,
		Workspace:   req.Workspace,
		CreatedAt:   time.Now(),
	}
	if a.ID == "" {
		a.ID = ulid.Make().String()
	}
	if a.Role == "" {
		a.Role = agent.RoleSpecialist
	}
	if err := s.repo.Create(ctx, a); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, a)
}

func (s *AgentServer) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := s.repo.Get(ctx, chi.URLParam(r, "agentID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	if activity, lerr := s.liveness.LastActivity(ctx); lerr == nil {
		a.Status = agent.LiveStatus(activity[a.ID], time.Now())
	}
	cerr.SetJSONResponse(ctx, a)
}

type updateAgentStatusRequest struct {
	Status string `json:"status"`
}

func (s *AgentServer) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateAgentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	status, err := agent.ParseStatus(req.Status)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), nil)
		return
	}

	a, err := s.repo.Get(ctx, chi.URLParam(r, "agentID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	a.Status = status
	if err := s.repo.Update(ctx, a); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, a)
}

func (s *AgentServer) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.repo.Delete(ctx, chi.URLParam(r, "agentID")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, ok)
}
