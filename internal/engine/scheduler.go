package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelBatchSize bounds concurrent parallel-safe tool executions.
const DefaultParallelBatchSize = 3

// ScheduledResult pairs a call with its outcome.
type ScheduledResult struct {
	Call     ToolCall
	Result   ToolResult
	Duration time.Duration
}

// Scheduler runs one turn's tool calls. Parallel-safe calls run in batches,
// everything else runs one at a time, and results come back in call order.
type Scheduler struct {
	registry   ToolRegistry
	controller *Controller
	gate       *PlanGate
	events     EventHandler
	batchSize  int
	logger     *slog.Logger
}

// NewScheduler wires a scheduler. gate may be nil.
func NewScheduler(registry ToolRegistry, controller *Controller, gate *PlanGate, events EventHandler, batchSize int) *Scheduler {
	if batchSize <= 0 {
		batchSize = DefaultParallelBatchSize
	}
	return &Scheduler{
		registry:   registry,
		controller: controller,
		gate:       gate,
		events:     orNop(events),
		batchSize:  batchSize,
		logger:     slog.Default().With("component", "scheduler"),
	}
}

func partition(calls []ToolCall) (parallel, sequential []ToolCall) {
	for _, c := range calls {
		if isParallelSafe(c) {
			parallel = append(parallel, c)
		} else {
			sequential = append(sequential, c)
		}
	}
	return parallel, sequential
}

// Execute runs calls and returns one result per call in the original order.
func (s *Scheduler) Execute(ctx context.Context, iteration int, calls []ToolCall) []ScheduledResult {
	parallel, sequential := partition(calls)
	if dup := conflictingPaths(parallel); len(dup) > 0 {
		s.logger.Debug("parallel tool calls share paths", "paths", dup)
	}

	var mu sync.Mutex
	byID := make(map[string]ScheduledResult, len(calls))
	store := func(r ScheduledResult) {
		mu.Lock()
		byID[r.Call.ID] = r
		mu.Unlock()
	}

	for start := 0; start < len(parallel); start += s.batchSize {
		end := min(start+s.batchSize, len(parallel))
		var g errgroup.Group
		for _, call := range parallel[start:end] {
			g.Go(func() error {
				store(s.run(ctx, iteration, call))
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, call := range sequential {
		store(s.run(ctx, iteration, call))
	}

	out := make([]ScheduledResult, len(calls))
	for i, call := range calls {
		r, ok := byID[call.ID]
		if !ok {
			r = ScheduledResult{Call: call, Result: Failed(call.Name, "result not found for tool call "+call.ID)}
		}
		out[i] = r
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, iteration int, call ToolCall) ScheduledResult {
	start := time.Now()
	res := s.execute(ctx, call)
	r := ScheduledResult{Call: call, Result: res, Duration: time.Since(start)}
	s.events.HandleEvent(Event{
		Kind:      EventToolCallComplete,
		Iteration: iteration,
		ToolCall:  &r.Call,
		Result:    &r.Result,
		Duration:  r.Duration,
	})
	return r
}

func (s *Scheduler) execute(ctx context.Context, call ToolCall) ToolResult {
	if call.DecodeError != nil {
		return ToolResult{
			Title:    call.Name,
			Error:    call.DecodeError.Hint(),
			Metadata: map[string]any{"decode_error": string(call.DecodeError.Kind), "bytes": call.DecodeError.Length},
		}
	}

	if err := s.controller.WaitIfPaused(ctx); err != nil {
		return abortedResult(call, err)
	}

	tool, ok := s.registry.Get(call.Name)
	if !ok {
		return Failed(call.Name, fmt.Sprintf("unknown tool %q. Available tools: %s", call.Name, strings.Join(s.registry.Names(), ", ")))
	}

	if blocked, refused := s.gate.Check(ctx, call); refused {
		return blocked
	}

	if err := s.controller.WaitForStep(ctx, call); err != nil {
		return abortedResult(call, err)
	}

	if err := tool.ValidateArgs(call.Args); err != nil {
		return ToolResult{Title: call.Name, Error: err.Error(), Metadata: map[string]any{"received": call.Args}}
	}

	original, err := s.controller.Capture(call)
	if err != nil {
		return ToolResult{
			Title:    call.Name,
			Error:    fmt.Sprintf("refused: the file could not be snapshotted for rollback (%v). Nothing was changed.", err),
			Metadata: map[string]any{"capture_failed": true},
		}
	}
	res, err := s.invoke(ctx, tool, call)
	if err != nil {
		raw, _ := json.Marshal(call.Args)
		res = ToolResult{Title: call.Name, Error: err.Error(), Output: res.Output, Metadata: map[string]any{"received": string(raw)}}
	}
	if res.Title == "" {
		res.Title = call.Name
	}
	if !res.Success {
		return res
	}

	if effect, ok := effectOf(call.Name); ok {
		path := targetPath(call.Args)
		s.controller.RecordAction(RollbackAction{
			Type:        effect,
			ToolCallID:  call.ID,
			Tool:        call.Name,
			Description: describeAction(effect, call),
			Path:        path,
			Original:    original,
		})
		if mutatesFiles(call.Name) {
			s.gate.MarkModified(path)
		}
	}
	if s.controller.State() == StateAborted {
		res.Metadata = withMeta(res.Metadata, "completed_after_abort", true)
	}
	return res
}

func (s *Scheduler) invoke(ctx context.Context, tool Tool, call ToolCall) (res ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool panicked", "tool", call.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()
	return tool.Fn(ctx, call.Args)
}

func abortedResult(call ToolCall, err error) ToolResult {
	msg := "execution aborted before the tool ran"
	if !errors.Is(err, ErrAborted) {
		msg = fmt.Sprintf("tool did not run: %v", err)
	}
	return ToolResult{Title: call.Name, Error: msg, Metadata: map[string]any{"aborted": true}}
}

func describeAction(t ActionType, call ToolCall) string {
	if t == ActionBashCommand {
		cmd, _ := call.Args["command"].(string)
		if cmd == "" {
			cmd, _ = call.Args["cmd"].(string)
		}
		return fmt.Sprintf("%s: %s (not reversible)", call.Name, cmd)
	}
	return fmt.Sprintf("%s %s", call.Name, targetPath(call.Args))
}

// conflictingPaths returns paths named by more than one parallel call.
func conflictingPaths(calls []ToolCall) []string {
	seen := make(map[string]int)
	var dup []string
	for _, c := range calls {
		p := targetPath(c.Args)
		if p == "" {
			continue
		}
		seen[p]++
		if seen[p] == 2 {
			dup = append(dup, p)
		}
	}
	return dup
}

func withMeta(m map[string]any, k string, v any) map[string]any {
	if m == nil {
		m = make(map[string]any)
	}
	m[k] = v
	return m
}
