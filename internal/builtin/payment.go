package builtin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/opsframe/pkg/action"
	"github.com/harun/opsframe/pkg/tool"
)

// ReversalWindow is how long after a transfer it can still be reversed.
const ReversalWindow = 24 * time.Hour

// TransferFeeUSD is the flat provider fee added to every transfer estimate.
const TransferFeeUSD = 0.25

// ErrUnknownTransfer is returned when a transfer ID is not in the ledger.
var ErrUnknownTransfer = errors.New("unknown transfer")

// Transfer is one ledger entry.
type Transfer struct {
	ID        string    `json:"transfer_id"`
	Recipient string    `json:"recipient"`
	AmountUSD float64   `json:"amount_usd"`
	Memo      string    `json:"memo,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Reversed  bool      `json:"reversed"`
}

// Ledger is an in-process payment provider.
type Ledger struct {
	mu        sync.Mutex
	transfers map[string]Transfer
	now       func() time.Time
}

// NewLedger creates an empty ledger. A nil clock uses time.Now.
func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{transfers: make(map[string]Transfer), now: now}
}

// Send books a transfer.
func (l *Ledger) Send(recipient string, amount float64, memo string) Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := Transfer{
		ID:        "tr_" + uuid.NewString(),
		Recipient: recipient,
		AmountUSD: amount,
		Memo:      memo,
		CreatedAt: l.now(),
	}
	l.transfers[t.ID] = t
	return t
}

// Reverse refunds a transfer. It returns false when the transfer is already
// reversed or older than ReversalWindow.
func (l *Ledger) Reverse(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.transfers[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTransfer, id)
	}
	if t.Reversed || l.now().Sub(t.CreatedAt) > ReversalWindow {
		return false, nil
	}
	t.Reversed = true
	l.transfers[id] = t
	return true, nil
}

// Get returns a transfer by ID.
func (l *Ledger) Get(id string) (Transfer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.transfers[id]
	return t, ok
}

// PaymentTransferManifest is the default manifest of payment_transfer.
func PaymentTransferManifest() tool.Manifest {
	return tool.Manifest{
		Name:                "payment_transfer",
		Version:             "1.0.0",
		Description:         "Send money to a vendor or employee account",
		Domains:             []string{"finance"},
		AllowedRoles:        []string{"finance_manager", "accountant", "admin"},
		RequiredPermissions: []string{"payment_send"},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"recipient":  map[string]any{"type": "string", "minLength": 1},
				"amount_usd": map[string]any{"type": "number", "minimum": 0.01},
				"memo":       map[string]any{"type": "string"},
			},
			"required": []any{"recipient", "amount_usd"},
		},
		OutputSchema: map[string]any{
			"type":     "object",
			"required": []any{"transfer_id", "amount_usd"},
		},
		CostEstimate:    TransferFeeUSD,
		TimeoutSeconds:  30,
		RequiresNetwork: true,
		Tags:            []string{"finance", "side-effect", "reversible"},
	}
}

type transferParams struct {
	Recipient string  `json:"recipient"`
	AmountUSD float64 `json:"amount_usd"`
	Memo      string  `json:"memo"`
}

// PaymentTransfer moves money through a Ledger. Every transfer needs at
// least MEDIUM approval regardless of amount.
type PaymentTransfer struct {
	manifest tool.Manifest
	ledger   *Ledger
}

var (
	_ action.Action       = (*PaymentTransfer)(nil)
	_ action.RiskAssessor = (*PaymentTransfer)(nil)
	_ action.Reverser     = (*PaymentTransfer)(nil)
)

// NewPaymentTransfer creates the action. An empty manifest uses the default.
func NewPaymentTransfer(m tool.Manifest, ledger *Ledger) *PaymentTransfer {
	if m.Name == "" {
		m = PaymentTransferManifest()
	}
	return &PaymentTransfer{manifest: m, ledger: ledger}
}

// Manifest implements action.Action.
func (p *PaymentTransfer) Manifest() tool.Manifest {
	return p.manifest
}

// EstimateCost is the amount moved plus the provider fee.
func (p *PaymentTransfer) EstimateCost(_ context.Context, params map[string]any) (float64, error) {
	var req transferParams
	if err := tool.Decode(params, &req); err != nil {
		return 0, err
	}
	return req.AmountUSD + TransferFeeUSD, nil
}

// AssessRisk implements action.RiskAssessor.
func (p *PaymentTransfer) AssessRisk(_ map[string]any, costUSD float64) action.RiskTier {
	return action.MaxTier(action.DefaultRiskTier(costUSD), action.RiskMedium)
}

// Describe implements action.Action.
func (p *PaymentTransfer) Describe(params map[string]any) string {
	var req transferParams
	_ = tool.Decode(params, &req)
	if req.Memo != "" {
		return fmt.Sprintf("Transfer $%.2f to %s (%s)", req.AmountUSD, req.Recipient, req.Memo)
	}
	return fmt.Sprintf("Transfer $%.2f to %s", req.AmountUSD, req.Recipient)
}

// Perform implements action.Action.
func (p *PaymentTransfer) Perform(ctx context.Context, params map[string]any, _ *tool.ExecutionContext) (tool.Result, error) {
	var req transferParams
	if err := tool.Decode(params, &req); err != nil {
		return tool.FromError(err), nil
	}
	if err := ctx.Err(); err != nil {
		return tool.Result{}, err
	}

	t := p.ledger.Send(req.Recipient, req.AmountUSD, req.Memo)
	return tool.OK(map[string]any{
		"transfer_id": t.ID,
		"recipient":   t.Recipient,
		"amount_usd":  t.AmountUSD,
	}), nil
}

// Reverse implements action.Reverser using the transfer ID stored in the
// execution result.
func (p *PaymentTransfer) Reverse(_ context.Context, entry action.HistoryEntry) (bool, error) {
	id, err := transferID(entry.Result.Data)
	if err != nil {
		return false, err
	}
	return p.ledger.Reverse(id)
}

func transferID(data any) (string, error) {
	switch d := data.(type) {
	case map[string]any:
		if id, ok := d["transfer_id"].(string); ok && id != "" {
			return id, nil
		}
	case map[string]string:
		if id := d["transfer_id"]; id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("execution result carries no transfer_id")
}
