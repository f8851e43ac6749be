package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/service"
)

// AgentHandler handles HTTP requests for agent endpoints.
type AgentHandler struct {
	svc *service.AgentService
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(svc *service.AgentService) *AgentHandler {
	return &AgentHandler{svc: svc}
}

// createAgentRequest is the JSON request body for POST /agents.
type createAgentRequest struct {
	Name      string   `json:"name"`
	AgentType string   `json:"agent_type"`
	Balance   *float64 `json:"balance"`
}

type agentResponse struct {
	AgentID   string  `json:"agent_id"`
	Name      string  `json:"name"`
	AgentType string  `json:"agent_type"`
	Balance   float64 `json:"balance"`
	CreatedAt string  `json:"created_at"`
}

type agentListResponse struct {
	Agents []agentResponse `json:"agents"`
	Total  int             `json:"total"`
}

// partialAgentsResponse reports a random population request that failed
// after some agents were created.
type partialAgentsResponse struct {
	Error         string          `json:"error"`
	Message       string          `json:"message"`
	CreatedAgents []agentResponse `json:"created_agents"`
}

type resultListResponse struct {
	Results []resultResponse `json:"results"`
	Total   int              `json:"total"`
}

func toAgentResponse(a *domain.Agent) agentResponse {
	return agentResponse{
		AgentID:   a.AgentID,
		Name:      a.Name,
		AgentType: string(a.Type),
		Balance:   domain.AmountToFloat(a.Balance),
		CreatedAt: formatTime(a.CreatedAt),
	}
}

func toAgentList(agents []*domain.Agent) agentListResponse {
	resp := agentListResponse{Agents: make([]agentResponse, len(agents)), Total: len(agents)}
	for i, a := range agents {
		resp.Agents[i] = toAgentResponse(a)
	}
	return resp
}

// Create handles POST /agents.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	agent, err := h.svc.Create(r.Context(), service.CreateAgentRequest{
		Name:    req.Name,
		Type:    domain.AgentType(req.AgentType),
		Balance: req.Balance,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toAgentResponse(agent))
}

// AddRandom handles POST /agents/random?count=N.
func (h *AgentHandler) AddRandom(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "count must be an integer")
		return
	}

	agents, err := h.svc.AddRandom(r.Context(), count)
	if err != nil {
		if len(agents) == 0 {
			writeServiceError(w, err)
			return
		}
		status, code, message := classifyError(err)
		WriteJSON(w, status, partialAgentsResponse{
			Error:         code,
			Message:       message,
			CreatedAgents: toAgentList(agents).Agents,
		})
		return
	}
	WriteJSON(w, http.StatusCreated, toAgentList(agents))
}

// List handles GET /agents.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toAgentList(agents))
}

// Get handles GET /agents/{agent_id}.
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	agent, err := h.svc.Get(r.Context(), chi.URLParam(r, "agent_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toAgentResponse(agent))
}

// Results handles GET /agents/{agent_id}/results.
func (h *AgentHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.Results(r.Context(), chi.URLParam(r, "agent_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toResultList(results))
}
