package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

// terminal renders engine events for a person watching the run.
type terminal struct {
	mu      sync.Mutex
	w       io.Writer
	midLine bool
}

func newTerminal(w io.Writer) *terminal {
	return &terminal{w: w}
}

func (t *terminal) HandleEvent(e engine.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Kind {
	case engine.EventContent:
		fmt.Fprint(t.w, e.Content)
		t.midLine = e.Content != "" && !strings.HasSuffix(e.Content, "\n")
	case engine.EventToolCallStart:
		t.linef("-> %s %s", e.ToolCall.Name, argsPreview(e.ToolCall.Args, 80))
	case engine.EventToolCallComplete:
		if e.Result.Success {
			t.linef("   ok %s (%s)", e.Result.Title, e.Duration.Round(time.Millisecond))
		} else {
			t.linef("   failed %s: %s", e.ToolCall.Name, firstLine(e.Result.Error))
		}
	case engine.EventWaitingForStep:
		t.linef("[step] next: %s %s", e.ToolCall.Name, argsPreview(e.ToolCall.Args, 120))
		t.linef("       s=run it  c=continue  q=abort")
	case engine.EventStepMode:
		t.linef("[step mode %s]", onOff(e.StepMode))
	case engine.EventPaused:
		t.linef("[paused] r=resume q=abort")
	case engine.EventResumed:
		t.linef("[resumed]")
	case engine.EventModelSwitch:
		t.linef("! switched model %s -> %s: %s", e.ModelSwitch.From, e.ModelSwitch.To, e.ModelSwitch.Reason)
	case engine.EventWarning:
		t.linef("! %s", e.Message)
	case engine.EventAborted:
		t.linef("[aborted] %s", e.Message)
	case engine.EventRollback:
		a := e.Rollback.Action
		switch {
		case e.Rollback.Err != nil:
			t.linef("   rollback failed %s: %v", a.Path, e.Rollback.Err)
		case e.Rollback.Restored:
			t.linef("   restored %s", a.Path)
		default:
			t.linef("   skipped %s (%s)", a.Description, a.Type)
		}
	case engine.EventRollbackComplete:
		t.linef("rollback: %d restored, %d skipped, %d failed", e.Report.Restored, e.Report.Skipped, e.Report.Failed)
	}
}

// announcePlan shows a plan that needs a decision.
func (t *terminal) announcePlan(p plans.Plan) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.linef("")
	t.linef("Plan %s: %s", p.ID, p.Title)
	if p.Summary != "" {
		t.linef("  %s", p.Summary)
	}
	for i, s := range p.Steps {
		t.linef("  %d. %s", i+1, s)
	}
	t.linef("  files: %s", strings.Join(p.Files, ", "))
	t.linef("Approve with y, reject with n (or run `autocoder plans approve %s` elsewhere).", p.ID)
}

func (t *terminal) summary(res engine.AgentResult, modified []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.linef("")
	t.linef("stop: %s after %d iterations, %d tool calls, %d tokens", res.StopReason, res.Iterations, len(res.ToolCalls), res.Usage.Total)
	if len(modified) > 0 {
		t.linef("modified: %s", strings.Join(modified, ", "))
	}
	if res.Err != nil {
		t.linef("error: %v", res.Err)
	}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.linef(format, args...)
}

// linef writes one line, first ending any streamed text. t.mu must be held.
func (t *terminal) linef(format string, args ...any) {
	if t.midLine {
		fmt.Fprintln(t.w)
		t.midLine = false
	}
	fmt.Fprintf(t.w, format+"\n", args...)
}

func argsPreview(args map[string]any, n int) string {
	if len(args) == 0 {
		return ""
	}
	b, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	s := string(b)
	if len(s) > n {
		s = s[:n] + "..."
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
