package action

import (
	"fmt"
	"strings"
)

// RiskTier grades how dangerous an action invocation is. Tiers are ordered.
type RiskTier int

const (
	RiskLow RiskTier = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// Cost thresholds in USD for DefaultRiskTier. Each bound is exclusive.
const (
	MediumRiskCost   = 1.0
	HighRiskCost     = 10.0
	CriticalRiskCost = 100.0
)

var riskNames = map[RiskTier]string{
	RiskLow:      "LOW",
	RiskMedium:   "MEDIUM",
	RiskHigh:     "HIGH",
	RiskCritical: "CRITICAL",
}

func (r RiskTier) String() string {
	if name, ok := riskNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RiskTier(%d)", int(r))
}

// RequiresApproval reports whether a human must approve before execution.
func (r RiskTier) RequiresApproval() bool {
	return r >= RiskMedium
}

// Requires2FA reports whether approval must be second-factor confirmed.
func (r RiskTier) Requires2FA() bool {
	return r >= RiskCritical
}

// MarshalText implements encoding.TextMarshaler.
func (r RiskTier) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RiskTier) UnmarshalText(text []byte) error {
	tier, err := ParseRiskTier(string(text))
	if err != nil {
		return err
	}
	*r = tier
	return nil
}

// ParseRiskTier parses a tier name, case-insensitively.
func ParseRiskTier(s string) (RiskTier, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for tier, name := range riskNames {
		if name == upper {
			return tier, nil
		}
	}
	return RiskLow, fmt.Errorf("unknown risk tier %q", s)
}

// DefaultRiskTier maps an estimated cost to a tier: above 100 is CRITICAL,
// above 10 HIGH, above 1 MEDIUM, otherwise LOW.
func DefaultRiskTier(costUSD float64) RiskTier {
	switch {
	case costUSD > CriticalRiskCost:
		return RiskCritical
	case costUSD > HighRiskCost:
		return RiskHigh
	case costUSD > MediumRiskCost:
		return RiskMedium
	default:
		return RiskLow
	}
}

// MaxTier returns the higher of a and b.
func MaxTier(a, b RiskTier) RiskTier {
	if a > b {
		return a
	}
	return b
}
