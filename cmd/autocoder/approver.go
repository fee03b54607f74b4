package main

import (
	"context"
	"time"

	"github.com/tidwall/sjson"

	"github.com/ChamsBouzaiene/autocoder/internal/engine/protocol"
	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

const planPollInterval = 2 * time.Second

// approver blocks until a pending plan is decided. Decisions may come from
// the console, the control stream or another process sharing the plan store.
type approver struct {
	reg      plans.Registry
	notifier plans.Notifier
	auto     bool
	announce func(plans.Plan)
	poll     time.Duration
}

func (a *approver) Decide(ctx context.Context, p plans.Plan) (plans.Status, error) {
	if a.auto {
		return plans.StatusApproved, nil
	}
	if a.announce != nil {
		a.announce(p)
	}
	poll := a.poll
	if poll <= 0 {
		poll = planPollInterval
	}
	decided, err := plans.AwaitDecision(ctx, a.reg, p.ID, a.notifier, poll)
	if err != nil {
		return "", err
	}
	return decided.Status, nil
}

// announceJSON emits a plan_pending line on the event stream.
func announceJSON(out *protocol.Writer, sessionID string) func(plans.Plan) {
	return func(p plans.Plan) {
		line := []byte(`{"type":"plan_pending"}`)
		line, _ = sjson.SetBytes(line, "session_id", sessionID)
		line, _ = sjson.SetBytes(line, "time", time.Now().UTC().Format(time.RFC3339Nano))
		line, _ = sjson.SetBytes(line, "plan.id", p.ID)
		line, _ = sjson.SetBytes(line, "plan.title", p.Title)
		line, _ = sjson.SetBytes(line, "plan.summary", p.Summary)
		line, _ = sjson.SetBytes(line, "plan.steps", p.Steps)
		line, _ = sjson.SetBytes(line, "plan.files", p.Files)
		out.WriteRaw(line)
	}
}
