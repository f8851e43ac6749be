package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/service"
)

// BehaviorHandler handles HTTP requests for the agent behavior registry.
type BehaviorHandler struct {
	svc *service.BehaviorService
}

// NewBehaviorHandler creates a new BehaviorHandler.
func NewBehaviorHandler(svc *service.BehaviorService) *BehaviorHandler {
	return &BehaviorHandler{svc: svc}
}

type behaviorBody struct {
	Name     string `json:"name"`
	Behavior string `json:"behavior"`
}

type behaviorListResponse struct {
	Behaviors []behaviorBody `json:"behaviors"`
	Total     int            `json:"total"`
}

// List handles GET /agent_behaviors.
func (h *BehaviorHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := behaviorListResponse{Behaviors: make([]behaviorBody, len(list)), Total: len(list)}
	for i, b := range list {
		resp.Behaviors[i] = behaviorBody{Name: b.Name, Behavior: b.Behavior}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Create handles POST /agent_behaviors.
func (h *BehaviorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req behaviorBody
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	b, err := h.svc.Create(r.Context(), domain.Behavior{Name: req.Name, Behavior: req.Behavior})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, behaviorBody{Name: b.Name, Behavior: b.Behavior})
}

// Get handles GET /agent_behaviors/{name}.
func (h *BehaviorHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, behaviorBody{Name: b.Name, Behavior: b.Behavior})
}

// Update handles PUT /agent_behaviors/{name}.
func (h *BehaviorHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req behaviorBody
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	b, err := h.svc.Update(r.Context(), chi.URLParam(r, "name"), domain.Behavior{Name: req.Name, Behavior: req.Behavior})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, behaviorBody{Name: b.Name, Behavior: b.Behavior})
}
