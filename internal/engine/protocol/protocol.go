// Package protocol is the newline-delimited JSON control channel of a run:
// commands come in on one stream, engine events go out on another.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// CommandType enumerates the commands a controlling process can send.
type CommandType string

const (
	CommandPause        CommandType = "pause"
	CommandResume       CommandType = "resume"
	CommandStep         CommandType = "step"
	CommandStepMode     CommandType = "step_mode"
	CommandAbort        CommandType = "abort"
	CommandPlanDecision CommandType = "plan_decision"
	CommandStatus       CommandType = "status"
)

// Command is implemented by all protocol commands.
type Command interface {
	GetType() CommandType
}

// PauseCommand suspends the run at its next suspension point.
type PauseCommand struct{}

func (PauseCommand) GetType() CommandType { return CommandPause }

// ResumeCommand releases a paused run.
type ResumeCommand struct{}

func (ResumeCommand) GetType() CommandType { return CommandResume }

// StepCommand lets the tool call waiting in step mode proceed.
type StepCommand struct{}

func (StepCommand) GetType() CommandType { return CommandStep }

// StepModeCommand toggles single-step execution.
type StepModeCommand struct {
	Enabled bool
}

func (StepModeCommand) GetType() CommandType { return CommandStepMode }

// AbortCommand stops the run, optionally rolling back file changes.
type AbortCommand struct {
	Rollback bool
}

func (AbortCommand) GetType() CommandType { return CommandAbort }

// PlanDecisionCommand approves or rejects a pending plan.
type PlanDecisionCommand struct {
	PlanID   string
	Approved bool
}

func (PlanDecisionCommand) GetType() CommandType { return CommandPlanDecision }

// StatusCommand asks for the current execution state.
type StatusCommand struct{}

func (StatusCommand) GetType() CommandType { return CommandStatus }

// DecodeCommand converts one JSON line into a typed command.
func DecodeCommand(line []byte) (Command, error) {
	if !gjson.ValidBytes(line) {
		return nil, errors.New("decode command: invalid JSON")
	}
	doc := gjson.ParseBytes(line)
	typ := doc.Get("type")
	if !typ.Exists() {
		return nil, errors.New("decode command: missing type")
	}

	switch CommandType(strings.ToLower(typ.String())) {
	case CommandPause:
		return PauseCommand{}, nil
	case CommandResume:
		return ResumeCommand{}, nil
	case CommandStep:
		return StepCommand{}, nil
	case CommandStepMode:
		enabled := doc.Get("enabled")
		if !enabled.Exists() {
			return nil, errors.New("step_mode requires enabled")
		}
		return StepModeCommand{Enabled: enabled.Bool()}, nil
	case CommandAbort:
		return AbortCommand{Rollback: doc.Get("rollback").Bool()}, nil
	case CommandPlanDecision:
		id := doc.Get("plan_id").String()
		if id == "" {
			return nil, errors.New("plan_decision requires plan_id")
		}
		approved := doc.Get("approved")
		if !approved.Exists() {
			return nil, errors.New("plan_decision requires approved")
		}
		return PlanDecisionCommand{PlanID: id, Approved: approved.Bool()}, nil
	case CommandStatus:
		return StatusCommand{}, nil
	default:
		return nil, fmt.Errorf("unknown command type: %s", typ.String())
	}
}
