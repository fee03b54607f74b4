package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ChamsBouzaiene/autocoder/internal/engine/protocol"
	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

var errUnknownInput = errors.New("unknown input (s, c, p, r, q, y [id], n [id], status)")

// parseConsoleLine maps a typed shortcut onto a protocol command. Plan
// decisions typed without an id carry an empty PlanID.
func parseConsoleLine(line string) (protocol.Command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return nil, nil
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	switch fields[0] {
	case "s", "step":
		if arg == "on" {
			return protocol.StepModeCommand{Enabled: true}, nil
		}
		return protocol.StepCommand{}, nil
	case "c", "continue":
		return protocol.StepModeCommand{Enabled: false}, nil
	case "p", "pause":
		return protocol.PauseCommand{}, nil
	case "r", "resume":
		return protocol.ResumeCommand{}, nil
	case "q", "abort":
		return protocol.AbortCommand{Rollback: arg != "keep"}, nil
	case "y", "approve":
		return protocol.PlanDecisionCommand{PlanID: arg, Approved: true}, nil
	case "n", "reject":
		return protocol.PlanDecisionCommand{PlanID: arg, Approved: false}, nil
	case "status", "?":
		return protocol.StatusCommand{}, nil
	}
	return nil, errUnknownInput
}

// latestPending returns the newest plan still waiting for a decision.
func latestPending(ctx context.Context, reg plans.Registry) (plans.Plan, error) {
	active, err := reg.ActivePlans(ctx)
	if err != nil {
		return plans.Plan{}, err
	}
	pending := plans.Pending(active)
	if len(pending) == 0 {
		return plans.Plan{}, errors.New("no plan is waiting for a decision")
	}
	return pending[len(pending)-1], nil
}

// runConsole reads shortcuts from r and applies them through srv until r
// ends or ctx is done.
func runConsole(ctx context.Context, r io.Reader, srv *protocol.Server, reg plans.Registry, term *terminal) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		cmd, err := parseConsoleLine(scanner.Text())
		if err != nil {
			term.printf("%v", err)
			continue
		}
		if cmd == nil {
			continue
		}
		if d, ok := cmd.(protocol.PlanDecisionCommand); ok && d.PlanID == "" {
			p, err := latestPending(ctx, reg)
			if err != nil {
				term.printf("%v", err)
				continue
			}
			d.PlanID = p.ID
			cmd = d
		}
		if err := srv.Apply(ctx, cmd); err != nil {
			term.printf("%s: %v", cmd.GetType(), err)
			continue
		}
		if _, ok := cmd.(protocol.StatusCommand); ok {
			c := srv.Controls
			term.printf("state: %s, waiting for step: %t, rollback actions: %d", c.State(), c.IsWaitingForStep(), c.RollbackCount())
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		term.printf("console: %v", fmt.Errorf("read input: %w", err))
	}
}
