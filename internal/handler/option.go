package handler

import (
	"net/http"

	"github.com/efreitasn/marketsim/internal/pricing"
)

// OptionHandler prices European options.
type OptionHandler struct{}

// NewOptionHandler creates a new OptionHandler.
func NewOptionHandler() *OptionHandler {
	return &OptionHandler{}
}

type optionPriceRequest struct {
	S     float64 `json:"S"`
	K     float64 `json:"K"`
	T     float64 `json:"T"`
	R     float64 `json:"r"`
	Sigma float64 `json:"sigma"`
}

type optionPriceResponse struct {
	CallPrice float64 `json:"call_price"`
	PutPrice  float64 `json:"put_price"`
}

// Price handles POST /options/price.
func (h *OptionHandler) Price(w http.ResponseWriter, r *http.Request) {
	var req optionPriceRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	call, put, err := pricing.BlackScholes(pricing.OptionInput{
		Spot:       req.S,
		Strike:     req.K,
		Maturity:   req.T,
		Rate:       req.R,
		Volatility: req.Sigma,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, optionPriceResponse{CallPrice: call, PutPrice: put})
}
