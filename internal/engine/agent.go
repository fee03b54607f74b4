package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

// DefaultMaxContinuations bounds how often RunUntilSettled resumes after a
// plan decision.
const DefaultMaxContinuations = 5

// PlanApprover decides a pending plan, usually by asking the user.
type PlanApprover interface {
	Decide(ctx context.Context, p plans.Plan) (plans.Status, error)
}

// PlanApproverFunc adapts a function to PlanApprover.
type PlanApproverFunc func(ctx context.Context, p plans.Plan) (plans.Status, error)

func (f PlanApproverFunc) Decide(ctx context.Context, p plans.Plan) (plans.Status, error) {
	return f(ctx, p)
}

// Agent keeps a conversation across runs of one Orchestrator.
type Agent struct {
	orch             *Orchestrator
	plans            plans.Registry
	maxContinuations int
	logger           *slog.Logger

	mu      sync.Mutex
	history []ChatMessage
	cancel  context.CancelFunc
}

// Run appends userMessage to the conversation and runs the loop once.
func (a *Agent) Run(ctx context.Context, userMessage string) AgentResult {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.cancel = cancel
	a.history = append(a.history, ChatMessage{Role: RoleUser, Content: userMessage})
	history := a.history
	a.mu.Unlock()

	res := a.orch.Run(ctx, history)

	a.mu.Lock()
	a.history = res.History
	a.cancel = nil
	a.mu.Unlock()
	return res
}

// RunUntilSettled runs userMessage, then keeps going while the run left
// plans pending: each pending plan is put to approver, the decision is
// recorded, and the loop is resumed with a directive describing it.
func (a *Agent) RunUntilSettled(ctx context.Context, userMessage string, approver PlanApprover) AgentResult {
	res := a.Run(ctx, userMessage)
	for round := 0; round < a.maxContinuations; round++ {
		if res.StopReason != StopCompleted || a.plans == nil || approver == nil {
			return res
		}
		active, err := a.plans.ActivePlans(ctx)
		if err != nil {
			a.logger.Error("failed to list plans", "error", err)
			return res
		}
		pending := plans.Pending(active)
		if len(pending) == 0 {
			return res
		}

		directives := make([]string, 0, len(pending))
		for _, p := range pending {
			directive, err := a.settle(ctx, approver, p)
			if err != nil {
				res.Err = fmt.Errorf("plan %s: %w", p.ID, err)
				return res
			}
			directives = append(directives, directive)
		}
		res = a.Run(ctx, strings.Join(directives, "\n"))
	}
	return res
}

func (a *Agent) settle(ctx context.Context, approver PlanApprover, p plans.Plan) (string, error) {
	decision, err := approver.Decide(ctx, p)
	if err != nil {
		return "", err
	}
	current, err := a.plans.Get(ctx, p.ID)
	if err != nil {
		return "", err
	}
	if current.Status == plans.StatusPending {
		if err := a.plans.SetStatus(ctx, p.ID, decision); err != nil {
			return "", err
		}
		current.Status = decision
	}

	a.logger.Info("plan decided", "plan", p.ID, "title", p.Title, "status", current.Status)
	if current.Unlocks() {
		if current.Status == plans.StatusApproved {
			if err := a.plans.SetStatus(ctx, p.ID, plans.StatusExecuting); err != nil {
				a.logger.Warn("could not mark plan executing", "plan", p.ID, "error", err)
			}
		}
		return fmt.Sprintf("The plan %q (id %s) was approved by the user. Implement it now, following its steps.", p.Title, p.ID), nil
	}
	return fmt.Sprintf("The plan %q (id %s) was rejected by the user. Do not implement it; ask what should change or propose a different plan.", p.Title, p.ID), nil
}

// History returns a copy of the conversation.
func (a *Agent) History() []ChatMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ChatMessage, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Agent) Pause() error                   { return a.orch.controller.Pause() }
func (a *Agent) Resume() error                  { return a.orch.controller.Resume() }
func (a *Agent) SetStepMode(enabled bool) error { return a.orch.controller.SetStepMode(enabled) }
func (a *Agent) Step() error                    { return a.orch.controller.Step() }
func (a *Agent) State() ExecutionState          { return a.orch.controller.State() }
func (a *Agent) IsWaitingForStep() bool         { return a.orch.controller.IsWaitingForStep() }
func (a *Agent) RollbackCount() int             { return a.orch.controller.RollbackCount() }

// Abort stops the session, optionally rolling back recorded file changes,
// and cancels the in-flight model stream.
func (a *Agent) Abort(ctx context.Context, rollback bool) (RollbackReport, error) {
	report, err := a.orch.controller.Abort(ctx, rollback)
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()
	return report, err
}

// ModifiedFiles lists the distinct files changed in this session.
func (a *Agent) ModifiedFiles() []string { return a.orch.gate.ModifiedFiles() }

