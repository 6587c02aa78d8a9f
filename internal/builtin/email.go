package builtin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/opsframe/pkg/action"
	"github.com/harun/opsframe/pkg/tool"
)

// EmailCostUSD is the per-recipient delivery cost.
const EmailCostUSD = 0.001

// Email is one delivered message.
type Email struct {
	ID      string    `json:"message_id"`
	To      []string  `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// Outbox is an in-process mail transport.
type Outbox struct {
	mu   sync.Mutex
	sent []Email
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Deliver stores a message.
func (o *Outbox) Deliver(e Email) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, e)
}

// Sent returns a copy of every delivered message.
func (o *Outbox) Sent() []Email {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Email(nil), o.sent...)
}

// EmailSendManifest is the default manifest of email_send.
func EmailSendManifest() tool.Manifest {
	return tool.Manifest{
		Name:                "email_send",
		Version:             "1.0.0",
		Description:         "Send an email on behalf of the operator",
		Domains:             []string{"hr", "finance", "legal"},
		AllowedRoles:        []string{tool.WildcardRole},
		RequiredPermissions: []string{"email_send"},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"to": map[string]any{
					"type":     "array",
					"items":    map[string]any{"type": "string"},
					"minItems": 1,
				},
				"subject": map[string]any{"type": "string", "minLength": 1},
				"body":    map[string]any{"type": "string"},
			},
			"required": []any{"to", "subject", "body"},
		},
		CostEstimate:    EmailCostUSD,
		TimeoutSeconds:  15,
		RequiresNetwork: true,
		Tags:            []string{"communication", "side-effect", "irreversible"},
	}
}

type emailParams struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// EmailSend delivers mail through an Outbox. Sent mail cannot be recalled.
type EmailSend struct {
	manifest tool.Manifest
	outbox   *Outbox
	now      func() time.Time
}

var _ action.Action = (*EmailSend)(nil)

// NewEmailSend creates the action. An empty manifest uses the default.
func NewEmailSend(m tool.Manifest, outbox *Outbox) *EmailSend {
	if m.Name == "" {
		m = EmailSendManifest()
	}
	return &EmailSend{manifest: m, outbox: outbox, now: time.Now}
}

// Manifest implements action.Action.
func (e *EmailSend) Manifest() tool.Manifest {
	return e.manifest
}

// EstimateCost charges per recipient.
func (e *EmailSend) EstimateCost(_ context.Context, params map[string]any) (float64, error) {
	var req emailParams
	if err := tool.Decode(params, &req); err != nil {
		return 0, err
	}
	return float64(len(req.To)) * EmailCostUSD, nil
}

// Describe implements action.Action.
func (e *EmailSend) Describe(params map[string]any) string {
	var req emailParams
	_ = tool.Decode(params, &req)
	return fmt.Sprintf("Email %q to %s", req.Subject, strings.Join(req.To, ", "))
}

// Perform implements action.Action.
func (e *EmailSend) Perform(ctx context.Context, params map[string]any, _ *tool.ExecutionContext) (tool.Result, error) {
	var req emailParams
	if err := tool.Decode(params, &req); err != nil {
		return tool.FromError(err), nil
	}
	if err := ctx.Err(); err != nil {
		return tool.Result{}, err
	}

	msg := Email{
		ID:      uuid.NewString(),
		To:      req.To,
		Subject: req.Subject,
		Body:    req.Body,
		SentAt:  e.now(),
	}
	e.outbox.Deliver(msg)
	return tool.OK(map[string]any{
		"message_id": msg.ID,
		"recipients": len(msg.To),
	}), nil
}
