package engine

import (
	"log/slog"
)

// LogHandler writes engine events to a structured logger.
type LogHandler struct{ L *slog.Logger }

// NewLogHandler returns a LogHandler on l, or on the default logger.
func NewLogHandler(l *slog.Logger) LogHandler {
	if l == nil {
		l = slog.Default()
	}
	return LogHandler{L: l.With("component", "engine")}
}

func (h LogHandler) HandleEvent(e Event) {
	switch e.Kind {
	case EventIterationStart:
		h.L.Debug("iteration start", "iteration", e.Iteration)
	case EventContent:
		// streamed text goes to the renderer, not the log
	case EventToolCallStart:
		h.L.Debug("tool call", "iteration", e.Iteration, "tool", e.ToolCall.Name, "call_id", e.ToolCall.ID)
	case EventToolCallComplete:
		attrs := []any{"iteration", e.Iteration, "tool", e.ToolCall.Name, "call_id", e.ToolCall.ID, "duration", e.Duration}
		if e.Result.Success {
			h.L.Info("tool done", append(attrs, "output", preview(e.Result.Output, 100))...)
		} else {
			h.L.Warn("tool failed", append(attrs, "error", preview(e.Result.Error, 200))...)
		}
	case EventModelSwitch:
		h.L.Warn("model switched", "from", e.ModelSwitch.From, "to", e.ModelSwitch.To, "reason", e.ModelSwitch.Reason)
	case EventUsage:
		h.L.Debug("usage", "iteration", e.Iteration, "prompt", e.Usage.Prompt, "completion", e.Usage.Completion, "total", e.Usage.Total)
	case EventComplete:
		h.L.Info("run complete", "stop_reason", e.Outcome.StopReason, "iterations", e.Outcome.Iterations,
			"tool_calls", len(e.Outcome.ToolCalls), "tokens", e.Outcome.Usage.Total)
	case EventError:
		h.L.Error("run failed", "iteration", e.Iteration, "error", e.Err)
	case EventPaused, EventResumed:
		h.L.Info(string(e.Kind))
	case EventStepMode:
		h.L.Info("step mode", "enabled", e.StepMode)
	case EventWaitingForStep:
		h.L.Info("waiting for step", "tool", e.ToolCall.Name, "args", e.ToolCall.Args)
	case EventAborted:
		h.L.Warn("aborted", "detail", e.Message)
	case EventRollback:
		a := e.Rollback.Action
		if e.Rollback.Err != nil {
			h.L.Error("rollback action failed", "type", a.Type, "path", a.Path, "error", e.Rollback.Err)
		} else {
			h.L.Info("rollback action", "type", a.Type, "description", a.Description, "restored", e.Rollback.Restored)
		}
	case EventRollbackComplete:
		h.L.Info("rollback complete", "restored", e.Report.Restored, "skipped", e.Report.Skipped, "failed", e.Report.Failed)
	case EventWarning:
		h.L.Warn(e.Message, "iteration", e.Iteration)
	}
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
