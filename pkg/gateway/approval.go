package gateway

import (
	"context"
	"errors"

	"github.com/harun/opsframe/pkg/action"
	"github.com/harun/opsframe/pkg/bus"
	"github.com/harun/opsframe/pkg/tool"
)

// EventApprovalRequest is emitted for each action waiting on a human.
const EventApprovalRequest = "approval.request"

// forwardApprovals relays approval requests published on the bus to the
// client. The client answers with approvals.respond.
func (s *Server) forwardApprovals() {
	s.unsubscribe = s.bus.SubscribeAsync(action.TopicApprovalRequest, func(msg bus.Message) {
		approval, ok := action.ApprovalFrom(msg)
		if !ok {
			s.logger.Warn().Str("message_id", msg.ID).Msg("Approval request without approval payload")
			return
		}
		s.logger.Info().
			Str("approval_id", approval.ID).
			Str("action", approval.ActionName).
			Msg("Forwarding approval request")
		s.Emit(EventApprovalRequest, approval)
	})
}

type approvalResponseParams struct {
	ApprovalID string `json:"approval_id"`
	Answer     string `json:"answer"`
	Responder  string `json:"responder"`
}

func (s *Server) handleApprovalRespond(_ context.Context, params map[string]any) (any, error) {
	if s.bus == nil {
		return nil, &RPCError{Code: MethodNotFound, Message: "approvals are not routed through this gateway"}
	}

	var p approvalResponseParams
	if err := tool.Decode(params, &p); err != nil {
		return nil, invalidParams("invalid approval response", err)
	}
	if p.ApprovalID == "" || p.Answer == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "approval_id and answer are required"}
	}
	if p.Responder == "" {
		p.Responder = "gateway"
	}

	request := bus.Message{ID: p.ApprovalID}
	if err := s.bus.Respond(action.Reply(request, p.Answer, p.Responder)); err != nil {
		if errors.Is(err, bus.ErrNoPending) {
			return nil, &RPCError{Code: NoPendingApproval, Message: "no pending approval: " + p.ApprovalID}
		}
		return nil, err
	}
	return map[string]any{"delivered": true, "approved": action.IsAffirmative(p.Answer)}, nil
}
