package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harun/opsframe/pkg/bus"
	"github.com/rs/zerolog"
)

const (
	// TopicApprovalRequest carries Approval payloads to approvers.
	TopicApprovalRequest = "approval.request"
	// TopicApprovalResponse is the topic set on approver replies.
	TopicApprovalResponse = "approval.response"

	DefaultApprovalTimeout = 300 * time.Second
)

var affirmative = map[string]struct{}{
	"approve":  {},
	"approved": {},
	"yes":      {},
	"y":        {},
	"ok":       {},
	"confirm":  {},
}

// IsAffirmative reports whether an approver's answer approves.
func IsAffirmative(answer string) bool {
	_, ok := affirmative[strings.ToLower(strings.TrimSpace(answer))]
	return ok
}

// Approval is the payload published on TopicApprovalRequest.
type Approval struct {
	ID           string         `json:"id"`
	ActionName   string         `json:"action_name"`
	Description  string         `json:"description"`
	CostEstimate float64        `json:"cost_estimate"`
	RiskTier     RiskTier       `json:"risk_tier"`
	Details      map[string]any `json:"details,omitempty"`
	Requires2FA  bool           `json:"requires_2fa"`
	MissionID    string         `json:"mission_id,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	RoleID       string         `json:"role_id,omitempty"`
	RequestedAt  time.Time      `json:"requested_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// Response is the structured reply payload. Approvers may also reply with a
// bare string.
type Response struct {
	Answer    string `json:"answer"`
	Responder string `json:"responder,omitempty"`
	Note      string `json:"note,omitempty"`
}

// Reply builds the bus message answering an approval request.
func Reply(request bus.Message, answer, responder string) bus.Message {
	return bus.Message{
		Topic:   TopicApprovalResponse,
		ReplyTo: request.ID,
		Sender:  responder,
		Payload: Response{Answer: answer, Responder: responder},
	}
}

// ApprovalFrom extracts the Approval carried by an approval request message.
func ApprovalFrom(msg bus.Message) (Approval, bool) {
	switch p := msg.Payload.(type) {
	case Approval:
		return p, true
	case *Approval:
		if p != nil {
			return *p, true
		}
	}
	return Approval{}, false
}

// Decision is the resolved outcome of an approval request.
type Decision struct {
	ApprovalID string
	Approved   bool
	TimedOut   bool
	Answer     string
	Responder  string
}

// Requester sends a request and waits for its reply. *bus.Bus implements it.
type Requester interface {
	Request(ctx context.Context, msg bus.Message, timeout time.Duration) (bus.Message, error)
}

// Gate asks a human, through the bus, to approve an action.
type Gate struct {
	requester Requester
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewGate creates an approval gate. A zero timeout uses
// DefaultApprovalTimeout.
func NewGate(requester Requester, timeout time.Duration, logger zerolog.Logger) *Gate {
	if timeout <= 0 {
		timeout = DefaultApprovalTimeout
	}
	return &Gate{
		requester: requester,
		timeout:   timeout,
		logger:    logger.With().Str("component", "approval-gate").Logger(),
		now:       time.Now,
	}
}

// Timeout returns how long the gate waits for a reply.
func (g *Gate) Timeout() time.Duration {
	return g.timeout
}

// Request publishes approval and waits for an answer. Only affirmative
// answers approve. Anything else, including no reply before the timeout,
// declines.
func (g *Gate) Request(ctx context.Context, approval Approval) Decision {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.RequestedAt.IsZero() {
		approval.RequestedAt = g.now()
	}
	approval.ExpiresAt = approval.RequestedAt.Add(g.timeout)

	decision := Decision{ApprovalID: approval.ID}
	if g.requester == nil {
		g.logger.Warn().Str("action", approval.ActionName).Msg("No approval channel configured, declining")
		decision.Answer = "no approval channel"
		return decision
	}

	g.logger.Info().
		Str("approval_id", approval.ID).
		Str("action", approval.ActionName).
		Str("risk", approval.RiskTier.String()).
		Float64("cost", approval.CostEstimate).
		Bool("requires_2fa", approval.Requires2FA).
		Msg("Requesting approval")

	reply, err := g.requester.Request(ctx, bus.Message{
		ID:      approval.ID,
		Topic:   TopicApprovalRequest,
		Sender:  "action:" + approval.ActionName,
		Payload: approval,
	}, g.timeout)
	if err != nil {
		if errors.Is(err, bus.ErrTimeout) {
			decision.TimedOut = true
			decision.Answer = "timeout"
			g.logger.Warn().
				Str("approval_id", approval.ID).
				Dur("timeout", g.timeout).
				Msg("Approval request timed out")
			return decision
		}
		decision.Answer = fmt.Sprintf("approval request failed: %v", err)
		g.logger.Error().Err(err).Str("approval_id", approval.ID).Msg("Approval request failed")
		return decision
	}

	decision.Answer, decision.Responder = answerOf(reply)
	decision.Approved = IsAffirmative(decision.Answer)

	level, msg := zerolog.InfoLevel, "Approval granted"
	if !decision.Approved {
		level, msg = zerolog.WarnLevel, "Approval denied"
	}
	g.logger.WithLevel(level).
		Str("approval_id", approval.ID).
		Str("answer", decision.Answer).
		Str("responder", decision.Responder).
		Msg(msg)

	return decision
}

func answerOf(reply bus.Message) (string, string) {
	switch p := reply.Payload.(type) {
	case string:
		return p, reply.Sender
	case Response:
		return p.Answer, firstNonEmpty(p.Responder, reply.Sender)
	case *Response:
		if p != nil {
			return p.Answer, firstNonEmpty(p.Responder, reply.Sender)
		}
	case map[string]any:
		answer, _ := p["answer"].(string)
		responder, _ := p["responder"].(string)
		return answer, firstNonEmpty(responder, reply.Sender)
	}
	return "", reply.Sender
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
