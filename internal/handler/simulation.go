package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/service"
)

// SimulationHandler handles HTTP requests for simulation endpoints.
type SimulationHandler struct {
	svc *service.SimulationService
}

// NewSimulationHandler creates a new SimulationHandler.
func NewSimulationHandler(svc *service.SimulationService) *SimulationHandler {
	return &SimulationHandler{svc: svc}
}

type resultResponse struct {
	ResultID   string  `json:"result_id"`
	TickID     string  `json:"tick_id"`
	AgentID    string  `json:"agent_id"`
	ProfitLoss float64 `json:"profit_loss"`
	CreatedAt  string  `json:"created_at"`
}

type tickResponse struct {
	TickID        string           `json:"tick_id"`
	State         string           `json:"state"`
	Orders        int              `json:"orders"`
	Matches       int              `json:"matches"`
	Volume        int64            `json:"volume"`
	Unmatched     int              `json:"unmatched_orders"`
	NetProfitLoss float64          `json:"net_profit_loss"`
	Results       []resultResponse `json:"results"`
	StartedAt     string           `json:"started_at"`
	FinishedAt    string           `json:"finished_at"`
}

type runResponse struct {
	Ticks []tickResponse `json:"ticks"`
}

// partialRunResponse reports a multi-tick run that failed after some ticks
// were committed. Those ticks are durable and must not be run again.
type partialRunResponse struct {
	Error          string         `json:"error"`
	Message        string         `json:"message"`
	CommittedTicks []tickResponse `json:"committed_ticks"`
}

func toResultResponse(r *domain.SimulationResult) resultResponse {
	return resultResponse{
		ResultID:   r.ResultID,
		TickID:     r.TickID,
		AgentID:    r.AgentID,
		ProfitLoss: domain.AmountToFloat(r.ProfitLoss),
		CreatedAt:  formatTime(r.CreatedAt),
	}
}

func toResultList(results []*domain.SimulationResult) resultListResponse {
	resp := resultListResponse{Results: make([]resultResponse, len(results)), Total: len(results)}
	for i, r := range results {
		resp.Results[i] = toResultResponse(r)
	}
	return resp
}

func toTickResponse(t *domain.TickReport) tickResponse {
	results := make([]resultResponse, len(t.Results))
	for i, r := range t.Results {
		results[i] = toResultResponse(r)
	}
	return tickResponse{
		TickID:        t.TickID,
		State:         t.State.String(),
		Orders:        t.Orders,
		Matches:       t.Matches,
		Volume:        t.Volume,
		Unmatched:     t.Unmatched,
		NetProfitLoss: domain.AmountToFloat(t.NetProfitLoss()),
		Results:       results,
		StartedAt:     formatTime(t.StartedAt),
		FinishedAt:    formatTime(t.FinishedAt),
	}
}

// Run handles POST /simulations/run. The optional ticks query parameter
// runs several ticks back to back.
func (h *SimulationHandler) Run(w http.ResponseWriter, r *http.Request) {
	n := 1
	if v := r.URL.Query().Get("ticks"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "ticks must be an integer")
			return
		}
		n = parsed
	}

	reports, err := h.svc.RunTicks(r.Context(), n)
	if err != nil {
		if len(reports) == 0 {
			writeServiceError(w, err)
			return
		}
		status, code, message := classifyError(err)
		WriteJSON(w, status, partialRunResponse{
			Error:          code,
			Message:        message,
			CommittedTicks: toTickResponses(reports),
		})
		return
	}

	WriteJSON(w, http.StatusOK, runResponse{Ticks: toTickResponses(reports)})
}

func toTickResponses(reports []*domain.TickReport) []tickResponse {
	out := make([]tickResponse, len(reports))
	for i, rep := range reports {
		out[i] = toTickResponse(rep)
	}
	return out
}

// TickResults handles GET /simulations/{tick_id}/results.
func (h *SimulationHandler) TickResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.TickResults(r.Context(), chi.URLParam(r, "tick_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toResultList(results))
}
