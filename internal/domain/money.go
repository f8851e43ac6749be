package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountFromFloat converts a float64 monetary input to a decimal.
// It rejects values with more than 2 decimal places.
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	d := decimal.NewFromFloat(f)
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, fmt.Errorf("monetary values must have at most 2 decimal places")
	}
	return d, nil
}

// AmountToFloat converts a decimal amount to float64 for presentation.
func AmountToFloat(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
