package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

// DefaultPlanThreshold is how many distinct files may be mutated before a
// plan must be approved.
const DefaultPlanThreshold = 2

// PlanSource lists the plans of the current session.
type PlanSource interface {
	ActivePlans(ctx context.Context) ([]plans.Plan, error)
}

// PlanGate refuses file mutations once too many distinct files were touched
// without an approved plan. After the first refusal the gate is tripped and
// every further mutation is refused, already-touched files included, until a
// plan is approved. Once a plan is approved it stays open for the rest of
// the session.
//
// Paths are compared as given; "a.go" and "./a.go" count as two files.
type PlanGate struct {
	mu        sync.Mutex
	threshold int
	source    PlanSource
	modified  map[string]struct{}
	tripped   bool
	unlocked  bool
}

// NewPlanGate returns a gate. A nil source means no plan can ever unlock it;
// a threshold below zero disables the gate.
func NewPlanGate(source PlanSource, threshold int) *PlanGate {
	return &PlanGate{
		threshold: threshold,
		source:    source,
		modified:  make(map[string]struct{}),
	}
}

// Check returns a failing result when call must not run yet. The second
// return value is false when the call may proceed.
func (g *PlanGate) Check(ctx context.Context, call ToolCall) (ToolResult, bool) {
	if g == nil || g.threshold < 0 || !mutatesFiles(call.Name) {
		return ToolResult{}, false
	}
	path := targetPath(call.Args)

	g.mu.Lock()
	if g.unlocked {
		g.mu.Unlock()
		return ToolResult{}, false
	}
	count := len(g.modified)
	if _, seen := g.modified[path]; !seen && path != "" {
		count++
	}
	tripped := g.tripped
	g.mu.Unlock()

	if !tripped && count <= g.threshold {
		return ToolResult{}, false
	}

	var sourceErr error
	if g.source != nil {
		active, err := g.source.ActivePlans(ctx)
		if err == nil && plans.AnyUnlocks(active) {
			g.mu.Lock()
			g.unlocked = true
			g.mu.Unlock()
			return ToolResult{}, false
		}
		sourceErr = err
	}
	g.mu.Lock()
	g.tripped = true
	g.mu.Unlock()
	return g.refusal(call, path, sourceErr), true
}

func (g *PlanGate) refusal(call ToolCall, path string, sourceErr error) ToolResult {
	files := g.ModifiedFiles()
	var b strings.Builder
	fmt.Fprintf(&b, "PLAN APPROVAL REQUIRED: %d files have already been modified (%s); the limit without an approved plan is %d, so %s is refused.\n",
		len(files), strings.Join(files, ", "), g.threshold, describePath(path))
	b.WriteString("Call the create_plan tool with a title, a short summary, the ordered steps and every file you intend to change, ")
	b.WriteString("then stop and wait for the user to approve it. Do not retry this edit until the plan is approved.")
	if sourceErr != nil {
		fmt.Fprintf(&b, "\n(plan registry unavailable: %v)", sourceErr)
	}
	return ToolResult{
		Success:  false,
		Title:    call.Name + " blocked",
		Error:    b.String(),
		Metadata: map[string]any{"plan_required": true, "modified_files": files},
	}
}

func describePath(path string) string {
	if path == "" {
		return "this change"
	}
	return path
}

// MarkModified records a successfully mutated path.
func (g *PlanGate) MarkModified(path string) {
	if g == nil || path == "" {
		return
	}
	g.mu.Lock()
	g.modified[path] = struct{}{}
	g.mu.Unlock()
}

// ModifiedFiles returns the distinct mutated paths, sorted.
func (g *PlanGate) ModifiedFiles() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.modified))
	for p := range g.modified {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Unlocked reports whether an approved plan has opened the gate.
func (g *PlanGate) Unlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked
}
