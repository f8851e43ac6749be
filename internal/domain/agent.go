package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentType classifies an agent. Order generation does not depend on it.
type AgentType string

const (
	AgentTypeIntelligent AgentType = "intelligent"
	AgentTypeTechnical   AgentType = "technical"
	AgentTypeThesis      AgentType = "thesis"
)

// AgentTypes lists every known agent type.
var AgentTypes = []AgentType{AgentTypeIntelligent, AgentTypeTechnical, AgentTypeThesis}

// Valid reports whether t is one of the known agent types.
func (t AgentType) Valid() bool {
	for _, known := range AgentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DefaultBalance is the balance assigned to an agent created without one.
var DefaultBalance = decimal.NewFromInt(10000)

// Agent represents a simulated trading participant. The balance is owned by
// the ledger; the simulation reads it once and writes it once per tick.
type Agent struct {
	AgentID   string
	Name      string
	Type      AgentType
	Balance   decimal.Decimal
	CreatedAt time.Time
}
