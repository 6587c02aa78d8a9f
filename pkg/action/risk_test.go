package action

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRiskTier(t *testing.T) {
	tests := []struct {
		cost float64
		want RiskTier
	}{
		{0, RiskLow},
		{1, RiskLow},
		{1.01, RiskMedium},
		{10, RiskMedium},
		{10.5, RiskHigh},
		{100, RiskHigh},
		{150, RiskCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultRiskTier(tt.cost), "cost %v", tt.cost)
	}
}

func TestRiskTier_Flags(t *testing.T) {
	assert.False(t, RiskLow.RequiresApproval())
	assert.True(t, RiskMedium.RequiresApproval())
	assert.False(t, RiskHigh.Requires2FA())
	assert.True(t, RiskCritical.Requires2FA())
	assert.Equal(t, RiskHigh, MaxTier(RiskMedium, RiskHigh))
}

func TestRiskTier_Text(t *testing.T) {
	data, err := json.Marshal(map[string]RiskTier{"tier": RiskCritical})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"CRITICAL"}`, string(data))

	var decoded map[string]RiskTier
	require.NoError(t, json.Unmarshal([]byte(`{"tier":"medium"}`), &decoded))
	assert.Equal(t, RiskMedium, decoded["tier"])

	_, err = ParseRiskTier("extreme")
	assert.Error(t, err)
	assert.Equal(t, "RiskTier(9)", RiskTier(9).String())
}

func TestIsAffirmative(t *testing.T) {
	for _, s := range []string{"approve", "approved", "yes", "y", "ok", "confirm", " YES "} {
		assert.True(t, IsAffirmative(s), s)
	}
	for _, s := range []string{"", "no", "deny", "nope", "yes please"} {
		assert.False(t, IsAffirmative(s), s)
	}
}
