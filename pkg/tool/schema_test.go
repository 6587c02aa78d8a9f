package tool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentManifest() Manifest {
	return Manifest{
		Name:        "payment_transfer",
		Version:     "1.0.0",
		Description: "Transfer funds",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"amount":    map[string]any{"type": "number"},
				"recipient": map[string]any{"type": "string"},
			},
			"required": []any{"amount", "recipient"},
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"transfer_id": map[string]any{"type": "string"},
			},
			"required": []any{"transfer_id"},
		},
	}
}

func TestValidateParams(t *testing.T) {
	m := paymentManifest()

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{name: "valid", params: map[string]any{"amount": 12.5, "recipient": "acme"}},
		{name: "integer amount", params: map[string]any{"amount": 12, "recipient": "acme"}},
		{name: "missing recipient", params: map[string]any{"amount": 12.5}, wantErr: true},
		{name: "wrong type", params: map[string]any{"amount": "lots", "recipient": "acme"}, wantErr: true},
		{name: "nil params", params: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(m, tt.params)
			if tt.wantErr {
				require.Error(t, err)
				var valErr *ValidationError
				assert.True(t, errors.As(err, &valErr))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateParams_NoSchema(t *testing.T) {
	assert.NoError(t, ValidateParams(Manifest{}, map[string]any{"anything": true}))
}

func TestValidateOutput(t *testing.T) {
	m := paymentManifest()

	assert.NoError(t, ValidateOutput(m, map[string]any{"transfer_id": "tx-1"}))
	assert.Error(t, ValidateOutput(m, map[string]any{"status": "ok"}))

	m.OutputSchema = nil
	assert.NoError(t, ValidateOutput(m, "anything"))
}

func TestSchema_FallbackWhenUncompilable(t *testing.T) {
	raw := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":  map[string]any{"type": "string"},
			"weird": map[string]any{"type": "not-a-type"},
		},
		"required": []any{"name"},
	}

	s := CompileSchema(raw)
	degraded, cause := s.Degraded()
	require.True(t, degraded)
	assert.Error(t, cause)

	assert.NoError(t, s.Validate(map[string]any{"name": "ada", "weird": 1}))

	err := s.Validate(map[string]any{"weird": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")

	err = s.Validate(map[string]any{"name": 42})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name: expected string")
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryTimeout, CategoryOf(Errorf(CategoryTimeout, "slow")))
	assert.Equal(t, CategoryValidation, CategoryOf(fmt.Errorf("wrap: %w", &ValidationError{Message: "bad"})))
	assert.Equal(t, CategoryExecution, CategoryOf(errors.New("boom")))
}

func TestFromError(t *testing.T) {
	res := FromError(Errorf(CategoryDeclined, "approval declined"))
	assert.False(t, res.Success)
	assert.Equal(t, CategoryDeclined, res.Category)
	assert.Equal(t, "approval declined", res.Error)
	assert.NotEmpty(t, res.Metadata["error_type"])
}

func TestDecode(t *testing.T) {
	type transfer struct {
		Amount    float64 `json:"amount"`
		Recipient string  `json:"recipient"`
		Retries   int     `json:"retries"`
	}

	var out transfer
	err := Decode(map[string]any{"amount": 12.5, "recipient": "acme", "retries": float64(3)}, &out)
	require.NoError(t, err)
	assert.Equal(t, transfer{Amount: 12.5, Recipient: "acme", Retries: 3}, out)
}

func TestExecutionContext_MissingPermissions(t *testing.T) {
	execCtx := &ExecutionContext{Permissions: []string{"email_send", "hris_read"}}
	assert.Equal(t, []string{"hris_write"}, execCtx.MissingPermissions([]string{"email_send", "hris_write"}))
	assert.Empty(t, execCtx.MissingPermissions([]string{"hris_read"}))

	var nilCtx *ExecutionContext
	assert.Equal(t, []string{"hris_read"}, nilCtx.MissingPermissions([]string{"hris_read"}))
}
