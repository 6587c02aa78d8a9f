package action

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/harun/opsframe/pkg/audit"
	"github.com/harun/opsframe/pkg/tool"
	"github.com/rs/zerolog"
)

// State is a step of the action state machine.
type State string

const (
	StateValidating       State = "validating"
	StateCostEstimated    State = "cost_estimated"
	StateAwaitingApproval State = "awaiting_approval"
	StateApproved         State = "approved"
	StateDeclined         State = "declined"
	StateTimedOut         State = "timed_out"
	StateExecuting        State = "executing"
	StateSucceeded        State = "succeeded"
	StateFailed           State = "failed"
	StateRolledBack       State = "rolled_back"
)

// Approval outcomes reported to an Observer.
const (
	OutcomeApproved    = "approved"
	OutcomeDeclined    = "declined"
	OutcomeTimedOut    = "timed_out"
	OutcomeNotRequired = "not_required"
	OutcomeDryRun      = "dry_run"
)

// Auditor records audit events. *audit.Log implements it.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event) error
}

// Observer receives approval outcomes, e.g. for metrics.
type Observer interface {
	ApprovalStarted(action string)
	ApprovalResolved(action, tier, outcome string)
}

// Services are the collaborators shared by every Runner.
type Services struct {
	Approvals       Requester
	ApprovalTimeout time.Duration
	Auditor         Auditor
	History         HistoryStore
	Observer        Observer
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Runner adapts an Action into a tool.Tool that estimates cost, grades risk,
// asks for approval when needed, performs the action, stores history and
// emits exactly one audit event per Execute.
type Runner struct {
	action   Action
	manifest tool.Manifest
	gate     *Gate
	auditor  Auditor
	history  HistoryStore
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRunner wraps a with svc. A nil History gets a private MemoryHistory.
func NewRunner(a Action, svc Services) *Runner {
	manifest := a.Manifest()
	history := svc.History
	if history == nil {
		history = NewMemoryHistory()
	}
	now := svc.Now
	if now == nil {
		now = time.Now
	}

	gate := NewGate(svc.Approvals, svc.ApprovalTimeout, svc.Logger)
	gate.now = now

	return &Runner{
		action:   a,
		manifest: manifest,
		gate:     gate,
		auditor:  svc.Auditor,
		history:  history,
		observer: svc.Observer,
		logger:   svc.Logger.With().Str("component", "action").Str("action", manifest.Name).Logger(),
		now:      now,
	}
}

// Manifest implements tool.Tool.
func (r *Runner) Manifest() tool.Manifest {
	return r.manifest
}

// Action returns the wrapped action.
func (r *Runner) Action() Action {
	return r.action
}

// Budget implements tool.Budgeted: the manifest timeout plus the approval
// wait.
func (r *Runner) Budget() time.Duration {
	return r.manifest.Timeout() + r.gate.Timeout()
}

// AuditsItself implements tool.SelfAuditing.
func (r *Runner) AuditsItself() bool {
	return r.auditor != nil
}

// History returns the runner's execution history store.
func (r *Runner) History() HistoryStore {
	return r.history
}

// run tracks one Execute for auditing.
type run struct {
	state       State
	assessment  Assessment
	assessed    bool
	executed    bool
	dryRun      bool
	approvalID  string
	executionID string
	reason      string
}

// Execute implements tool.Tool. It never returns an error: every outcome is
// a Result.
func (r *Runner) Execute(ctx context.Context, params map[string]any, execCtx *tool.ExecutionContext) (tool.Result, error) {
	if execCtx == nil {
		execCtx = &tool.ExecutionContext{}
	}
	if params == nil {
		params = map[string]any{}
	}

	tracked := &run{state: StateValidating}
	result := r.guardedExecute(ctx, params, execCtx, tracked)
	result = result.WithMeta("state", string(tracked.state))
	r.record(ctx, params, execCtx, result, tracked)
	return result, nil
}

// guardedExecute converts a panic outside the action body, e.g. in cost
// estimation, into a failed result so the call is still audited.
func (r *Runner) guardedExecute(ctx context.Context, params map[string]any, execCtx *tool.ExecutionContext, tracked *run) (result tool.Result) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		r.logger.Error().Interface("panic", rec).Str("state", string(tracked.state)).Msg("Action pipeline panicked")
		stage := "execution failed"
		if !tracked.assessed {
			stage = "cost estimation failed"
		}
		tracked.state = StateFailed
		tracked.reason = stage
		result = tool.Fail(tool.CategoryExecution, "%s: panic: %v", stage, rec).
			WithMeta("error_type", "panic")
	}()
	return r.execute(ctx, params, execCtx, tracked)
}

func (r *Runner) execute(ctx context.Context, params map[string]any, execCtx *tool.ExecutionContext, tracked *run) tool.Result {
	if err := tool.ValidateParams(r.manifest, params); err != nil {
		tracked.state = StateFailed
		tracked.reason = "invalid parameters"
		return tool.Fail(tool.CategoryValidation, "invalid parameters: %v", err)
	}

	assessment, err := Assess(ctx, r.action, params)
	if err != nil {
		tracked.state = StateFailed
		tracked.reason = "cost estimation failed"
		return tool.FromError(fmt.Errorf("cost estimation failed: %w", err))
	}
	tracked.assessment = assessment
	tracked.assessed = true
	r.transition(tracked, StateCostEstimated)

	if execCtx.MaxCostUSD > 0 && assessment.CostUSD > execCtx.MaxCostUSD {
		tracked.state = StateFailed
		tracked.reason = "cost limit exceeded"
		return r.withAssessment(tool.Fail(tool.CategoryCostExceeded,
			"estimated cost $%.2f exceeds limit $%.2f", assessment.CostUSD, execCtx.MaxCostUSD), assessment)
	}

	if execCtx.DryRun {
		tracked.dryRun = true
		tracked.reason = "dry run"
		r.observe(assessment, OutcomeDryRun)
		return r.withAssessment(tool.OK(map[string]any{
			"action":            r.manifest.Name,
			"description":       assessment.Description,
			"cost_estimate":     assessment.CostUSD,
			"risk_tier":         assessment.Tier.String(),
			"requires_approval": assessment.RequiresApproval,
			"requires_2fa":      assessment.Requires2FA,
		}), assessment).WithMeta("dry_run", true)
	}

	if assessment.RequiresApproval {
		r.transition(tracked, StateAwaitingApproval)
		if r.observer != nil {
			r.observer.ApprovalStarted(r.manifest.Name)
		}

		decision := r.gate.Request(ctx, Approval{
			ActionName:   r.manifest.Name,
			Description:  assessment.Description,
			CostEstimate: assessment.CostUSD,
			RiskTier:     assessment.Tier,
			Details:      maps.Clone(params),
			Requires2FA:  assessment.Requires2FA,
			MissionID:    execCtx.MissionID,
			UserID:       execCtx.UserID,
			RoleID:       execCtx.RoleID,
		})
		tracked.approvalID = decision.ApprovalID

		switch {
		case decision.Approved:
			r.transition(tracked, StateApproved)
			r.observe(assessment, OutcomeApproved)
		case decision.TimedOut:
			r.transition(tracked, StateTimedOut)
			r.observe(assessment, OutcomeTimedOut)
			tracked.reason = "approval timed out"
			return r.withAssessment(tool.Fail(tool.CategoryDeclined,
				"approval for %s timed out after %s", r.manifest.Name, r.gate.Timeout()), assessment).
				WithMeta("approval_id", decision.ApprovalID)
		default:
			r.transition(tracked, StateDeclined)
			r.observe(assessment, OutcomeDeclined)
			tracked.reason = fmt.Sprintf("declined: %s", decision.Answer)
			return r.withAssessment(tool.Fail(tool.CategoryDeclined,
				"approval for %s declined", r.manifest.Name), assessment).
				WithMeta("approval_id", decision.ApprovalID).
				WithMeta("answer", decision.Answer)
		}
	} else {
		r.observe(assessment, OutcomeNotRequired)
	}

	r.transition(tracked, StateExecuting)
	tracked.executed = true

	result, err := r.perform(ctx, params, execCtx)
	if err != nil {
		tracked.state = StateFailed
		tracked.reason = "execution failed"
		result = tool.FromError(err)
	}
	result = r.withAssessment(result, assessment)
	if tracked.approvalID != "" {
		result = result.WithMeta("approval_id", tracked.approvalID)
	}
	if !result.Success {
		tracked.state = StateFailed
		tracked.reason = "execution failed"
		if result.Category == "" {
			result.Category = tool.CategoryExecution
		}
		return result
	}

	executionID := uuid.NewString()
	entry := HistoryEntry{
		ExecutionID: executionID,
		Action:      r.manifest.Name,
		Params:      maps.Clone(params),
		Result:      result,
		CostUSD:     assessment.CostUSD,
		Timestamp:   r.now(),
		MissionID:   execCtx.MissionID,
		UserID:      execCtx.UserID,
		RoleID:      execCtx.RoleID,
	}
	if err := r.history.Save(ctx, entry); err != nil {
		r.logger.Error().Err(err).Str("execution_id", executionID).Msg("Failed to save execution history")
	} else {
		tracked.executionID = executionID
		result = result.WithMeta("execution_id", executionID)
	}

	r.transition(tracked, StateSucceeded)
	tracked.reason = "executed"
	return result
}

// perform runs the action body, converting a panic into an error.
func (r *Runner) perform(ctx context.Context, params map[string]any, execCtx *tool.ExecutionContext) (result tool.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("Action panicked")
			err = fmt.Errorf("action panicked: %v", rec)
		}
	}()
	return r.action.Perform(ctx, params, execCtx)
}

func (r *Runner) withAssessment(result tool.Result, a Assessment) tool.Result {
	return result.
		WithMeta("cost_estimate", a.CostUSD).
		WithMeta("risk_tier", a.Tier.String()).
		WithMeta("requires_approval", a.RequiresApproval).
		WithMeta("requires_2fa", a.Requires2FA)
}

func (r *Runner) transition(tracked *run, next State) {
	r.logger.Debug().
		Str("from", string(tracked.state)).
		Str("to", string(next)).
		Msg("Action state changed")
	tracked.state = next
}

func (r *Runner) observe(a Assessment, outcome string) {
	if r.observer != nil {
		r.observer.ApprovalResolved(r.manifest.Name, a.Tier.String(), outcome)
	}
}

func (r *Runner) record(ctx context.Context, params map[string]any, execCtx *tool.ExecutionContext, result tool.Result, tracked *run) {
	metadata := map[string]any{
		"kind":     audit.KindExecution,
		"params":   maps.Clone(params),
		"success":  result.Success,
		"executed": tracked.executed,
		"dry_run":  tracked.dryRun,
		"state":    string(tracked.state),
	}
	if tracked.assessed {
		metadata["cost_usd"] = tracked.assessment.CostUSD
		metadata["risk_tier"] = tracked.assessment.Tier.String()
	}
	if tracked.approvalID != "" {
		metadata["approval_id"] = tracked.approvalID
	}
	if tracked.executionID != "" {
		metadata["execution_id"] = tracked.executionID
	}
	if result.Error != "" {
		metadata["error"] = result.Error
		metadata["category"] = string(result.Category)
	}

	level := zerolog.InfoLevel
	if !result.Success {
		level = zerolog.WarnLevel
	}
	r.logger.WithLevel(level).
		Str("mission_id", execCtx.MissionID).
		Str("state", string(tracked.state)).
		Bool("success", result.Success).
		Bool("dry_run", tracked.dryRun).
		Str("reason", tracked.reason).
		Msg("Action finished")

	if r.auditor == nil {
		return
	}
	if !tool.AuditClaimFromContext(ctx).Take() {
		r.logger.Warn().
			Str("mission_id", execCtx.MissionID).
			Str("state", string(tracked.state)).
			Str("execution_id", tracked.executionID).
			Msg("Action finished after its caller stopped waiting; caller recorded the outcome")
		return
	}
	err := r.auditor.Record(ctx, audit.Event{
		Timestamp:          r.now(),
		MissionID:          execCtx.MissionID,
		RoleID:             execCtx.RoleID,
		ToolName:           r.manifest.Name,
		Domain:             execCtx.Domain,
		Allowed:            result.Success,
		Reason:             tracked.reason,
		UserID:             execCtx.UserID,
		PermissionsChecked: append([]string{}, r.manifest.RequiredPermissions...),
		Metadata:           metadata,
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to record audit event")
	}
}

// Rollback attempts to reverse a prior successful execution. It returns
// false, without error, when the action cannot be reversed.
func (r *Runner) Rollback(ctx context.Context, executionID string) (bool, error) {
	entry, err := r.history.Get(ctx, executionID)
	if err != nil {
		return false, err
	}
	if entry.Action != r.manifest.Name {
		return false, fmt.Errorf("execution %s belongs to action %s", executionID, entry.Action)
	}
	if entry.RolledBack {
		return false, fmt.Errorf("execution %s already rolled back", executionID)
	}

	ok, reason, err := r.reverse(ctx, entry)
	if ok {
		if markErr := r.history.MarkRolledBack(ctx, executionID); markErr != nil {
			r.logger.Error().Err(markErr).Str("execution_id", executionID).Msg("Failed to mark execution rolled back")
		}
	}

	r.logger.Info().
		Str("execution_id", executionID).
		Bool("rolled_back", ok).
		Str("reason", reason).
		Msg("Rollback attempted")

	if r.auditor != nil {
		metadata := map[string]any{
			"kind":         audit.KindRollback,
			"execution_id": executionID,
			"rolled_back":  ok,
		}
		if err != nil {
			metadata["error"] = err.Error()
		}
		if recErr := r.auditor.Record(ctx, audit.Event{
			Timestamp: r.now(),
			MissionID: entry.MissionID,
			RoleID:    entry.RoleID,
			ToolName:  r.manifest.Name,
			Allowed:   ok,
			Reason:    reason,
			UserID:    entry.UserID,
			Metadata:  metadata,
		}); recErr != nil {
			r.logger.Error().Err(recErr).Msg("Failed to record audit event")
		}
	}

	return ok, err
}

func (r *Runner) reverse(ctx context.Context, entry HistoryEntry) (ok bool, reason string, err error) {
	reverser, supported := r.action.(Reverser)
	if !supported {
		return false, "action is irreversible", nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			ok, reason, err = false, "rollback panicked", fmt.Errorf("rollback panicked: %v", rec)
		}
	}()

	ok, err = reverser.Reverse(ctx, entry)
	switch {
	case err != nil:
		return false, "rollback failed", err
	case !ok:
		return false, "rollback not possible", nil
	default:
		return true, "rolled back", nil
	}
}
