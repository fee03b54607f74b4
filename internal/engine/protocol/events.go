package protocol

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

// EncodeEvent renders an engine event as one JSON object.
func EncodeEvent(sessionID string, e engine.Event) ([]byte, error) {
	buf := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err != nil {
			return
		}
		buf, err = sjson.SetBytes(buf, path, v)
	}

	set("type", string(e.Kind))
	if sessionID != "" {
		set("session_id", sessionID)
	}
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	set("time", ts.UTC().Format(time.RFC3339Nano))
	if e.Iteration > 0 {
		set("iteration", e.Iteration)
	}

	switch {
	case e.Kind == engine.EventContent:
		set("content", e.Content)
	case (e.Kind == engine.EventToolCallStart || e.Kind == engine.EventWaitingForStep) && e.ToolCall != nil:
		set("tool.id", e.ToolCall.ID)
		set("tool.name", e.ToolCall.Name)
		if e.Kind == engine.EventWaitingForStep {
			set("tool.args", e.ToolCall.Args)
		}
	case e.Kind == engine.EventToolCallComplete && e.ToolCall != nil && e.Result != nil:
		set("tool.id", e.ToolCall.ID)
		set("tool.name", e.ToolCall.Name)
		set("result.success", e.Result.Success)
		set("result.title", e.Result.Title)
		if e.Result.Success {
			set("result.output", e.Result.Output)
		} else {
			set("result.error", e.Result.Error)
		}
		set("duration_ms", e.Duration.Milliseconds())
	case e.Kind == engine.EventModelSwitch && e.ModelSwitch != nil:
		set("from", e.ModelSwitch.From)
		set("to", e.ModelSwitch.To)
		set("reason", e.ModelSwitch.Reason)
	case e.Kind == engine.EventUsage && e.Usage != nil:
		set("usage.prompt", e.Usage.Prompt)
		set("usage.completion", e.Usage.Completion)
		set("usage.total", e.Usage.Total)
	case e.Kind == engine.EventComplete || e.Kind == engine.EventError:
		if e.Outcome != nil {
			set("stop_reason", string(e.Outcome.StopReason))
			set("success", e.Outcome.Success)
			set("iterations", e.Outcome.Iterations)
			set("tool_calls", len(e.Outcome.ToolCalls))
			set("final_response", e.Outcome.FinalResponse)
		}
		if e.Err != nil {
			set("error", e.Err.Error())
		}
	case e.Kind == engine.EventStepMode:
		set("enabled", e.StepMode)
	case e.Kind == engine.EventRollback && e.Rollback != nil:
		set("action.type", string(e.Rollback.Action.Type))
		set("action.path", e.Rollback.Action.Path)
		set("action.description", e.Rollback.Action.Description)
		set("restored", e.Rollback.Restored)
		if e.Rollback.Err != nil {
			set("error", e.Rollback.Err.Error())
		}
	case e.Kind == engine.EventRollbackComplete && e.Report != nil:
		set("restored", e.Report.Restored)
		set("skipped", e.Report.Skipped)
		set("failed", e.Report.Failed)
	case e.Kind == engine.EventAborted || e.Kind == engine.EventWarning:
		set("message", e.Message)
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Writer is an engine.EventHandler that writes one JSON event per line.
type Writer struct {
	mu        sync.Mutex
	w         io.Writer
	sessionID string
	// SkipContent drops streamed text deltas.
	SkipContent bool
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer, sessionID string) *Writer {
	return &Writer{w: w, sessionID: sessionID}
}

func (w *Writer) HandleEvent(e engine.Event) {
	if w.SkipContent && e.Kind == engine.EventContent {
		return
	}
	line, err := EncodeEvent(w.sessionID, e)
	if err != nil {
		slog.Warn("failed to encode event", "kind", e.Kind, "error", err)
		return
	}
	w.writeLine(line)
}

// WriteRaw emits a pre-built JSON line, used for command replies.
func (w *Writer) WriteRaw(line []byte) {
	w.writeLine(line)
}

func (w *Writer) writeLine(line []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(append(line, '\n')); err != nil {
		slog.Warn("failed to write event", "error", err)
	}
}
