// Package pricing prices European options with the Black-Scholes-Merton
// model.
package pricing

import (
	"math"

	"github.com/efreitasn/marketsim/internal/domain"
)

// OptionInput holds the model parameters.
type OptionInput struct {
	Spot       float64 // S, current price of the underlying
	Strike     float64 // K
	Maturity   float64 // T, in years
	Rate       float64 // r, continuously compounded risk-free rate
	Volatility float64 // sigma, annualized
}

// Validate checks S > 0, K > 0, T > 0, r >= 0 and 0 < sigma <= 1.
func (in OptionInput) Validate() error {
	switch {
	case !(in.Spot > 0):
		return &domain.ValidationError{Message: "S must be greater than 0"}
	case !(in.Strike > 0):
		return &domain.ValidationError{Message: "K must be greater than 0"}
	case !(in.Maturity > 0):
		return &domain.ValidationError{Message: "T must be greater than 0"}
	case !(in.Rate >= 0):
		return &domain.ValidationError{Message: "r must be non-negative"}
	case !(in.Volatility > 0 && in.Volatility <= 1):
		return &domain.ValidationError{Message: "sigma must be greater than 0 and at most 1"}
	}
	if math.IsInf(in.Spot, 0) || math.IsInf(in.Strike, 0) || math.IsInf(in.Maturity, 0) || math.IsInf(in.Rate, 0) {
		return &domain.ValidationError{Message: "inputs must be finite"}
	}
	return nil
}

// BlackScholes returns the call and put prices for in.
func BlackScholes(in OptionInput) (call, put float64, err error) {
	if err := in.Validate(); err != nil {
		return 0, 0, err
	}

	sqrtT := math.Sqrt(in.Maturity)
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Volatility*in.Volatility)*in.Maturity) /
		(in.Volatility * sqrtT)
	d2 := d1 - in.Volatility*sqrtT
	discount := in.Strike * math.Exp(-in.Rate*in.Maturity)

	call = in.Spot*normCDF(d1) - discount*normCDF(d2)
	put = discount*normCDF(-d2) - in.Spot*normCDF(-d1)
	return call, put, nil
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
