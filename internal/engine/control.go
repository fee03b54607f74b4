package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/autocoder/internal/snapshot"
)

// ExecutionState is the controller's single authoritative state.
type ExecutionState string

const (
	StateRunning   ExecutionState = "running"
	StatePaused    ExecutionState = "paused"
	StateStepping  ExecutionState = "stepping"
	StateAborted   ExecutionState = "aborted"
	StateCompleted ExecutionState = "completed"
)

// Terminal reports whether no further transition is possible.
func (s ExecutionState) Terminal() bool {
	return s == StateAborted || s == StateCompleted
}

var allowedTransitions = map[ExecutionState]map[ExecutionState]bool{
	StateRunning:  {StatePaused: true, StateStepping: true, StateAborted: true, StateCompleted: true},
	StatePaused:   {StateRunning: true, StateAborted: true},
	StateStepping: {StateRunning: true, StateAborted: true, StateCompleted: true},
}

// Snapshotter captures and restores file pre-images.
type Snapshotter interface {
	Capture(path string) (snapshot.FileState, error)
	Restore(st snapshot.FileState) error
}

// PendingStep is the tool call blocked waiting for Step.
type PendingStep struct {
	ToolCallID string
	Name       string
	Args       map[string]any
}

type stepWaiter struct {
	step     PendingStep
	released bool
}

// RollbackStep reports the replay of one ledger action.
type RollbackStep struct {
	Action   RollbackAction
	Restored bool
	Err      error
}

// RollbackReport summarizes a rollback.
type RollbackReport struct {
	Steps    []RollbackStep
	Restored int
	Skipped  int
	Failed   int
}

// Err joins every per-action failure.
func (r RollbackReport) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// Controller owns the pause/step/abort state machine and the rollback
// ledger of one session.
type Controller struct {
	mu          sync.Mutex
	cond        *sync.Cond
	state       ExecutionState
	stepMode    bool
	stepGranted bool
	// stepQueue holds the calls blocked on Step, oldest first. Step
	// releases the head.
	stepQueue   []*stepWaiter
	ledger      Ledger
	rollingBack bool

	snapshots Snapshotter
	events    EventHandler
	logger    *slog.Logger
}

// NewController returns a controller in the running state. snapshots may be
// nil, in which case nothing can be rolled back.
func NewController(snapshots Snapshotter, events EventHandler) *Controller {
	c := &Controller{
		state:     StateRunning,
		snapshots: snapshots,
		events:    orNop(events),
		logger:    slog.Default().With("component", "controller"),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// State returns the current execution state.
func (c *Controller) State() ExecutionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) transitionLocked(to ExecutionState) error {
	if !allowedTransitions[c.state][to] {
		return &TransitionError{From: c.state, To: to}
	}
	c.state = to
	c.cond.Broadcast()
	return nil
}

// Pause suspends the loop at its next suspension point.
func (c *Controller) Pause() error {
	c.mu.Lock()
	err := c.transitionLocked(StatePaused)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.events.HandleEvent(Event{Kind: EventPaused})
	return nil
}

// Resume releases a paused loop.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused {
		err := &TransitionError{From: c.state, To: StateRunning}
		c.mu.Unlock()
		return err
	}
	_ = c.transitionLocked(StateRunning)
	c.mu.Unlock()
	c.events.HandleEvent(Event{Kind: EventResumed})
	return nil
}

// SetStepMode switches between auto-run and single-step execution.
func (c *Controller) SetStepMode(enabled bool) error {
	c.mu.Lock()
	switch {
	case enabled && c.state == StateStepping, !enabled && c.state == StateRunning:
		c.mu.Unlock()
		return nil
	case enabled:
		if err := c.transitionLocked(StateStepping); err != nil {
			c.mu.Unlock()
			return err
		}
	default:
		if c.state != StateStepping {
			err := &TransitionError{From: c.state, To: StateRunning}
			c.mu.Unlock()
			return err
		}
		_ = c.transitionLocked(StateRunning)
	}
	c.stepMode = enabled
	c.stepGranted = false
	if !enabled {
		c.stepQueue = nil
	}
	c.mu.Unlock()
	c.events.HandleEvent(Event{Kind: EventStepMode, StepMode: enabled})
	return nil
}

// Step lets the oldest waiting tool call proceed. A step granted before
// any call is waiting is kept for the next one.
func (c *Controller) Step() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStepping {
		return fmt.Errorf("step: not in step mode (state %s)", c.state)
	}
	if len(c.stepQueue) > 0 {
		c.stepQueue[0].released = true
		c.stepQueue = c.stepQueue[1:]
	} else {
		c.stepGranted = true
	}
	c.cond.Broadcast()
	return nil
}

// IsWaitingForStep reports whether any tool call is blocked on Step.
func (c *Controller) IsWaitingForStep() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stepQueue) > 0
}

// Pending returns the call the next Step will release.
func (c *Controller) Pending() (PendingStep, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stepQueue) == 0 {
		return PendingStep{}, false
	}
	return c.stepQueue[0].step, true
}

// PendingCount returns how many calls are blocked on Step.
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stepQueue)
}

func (c *Controller) dequeueLocked(w *stepWaiter) {
	for i, q := range c.stepQueue {
		if q == w {
			c.stepQueue = append(c.stepQueue[:i:i], c.stepQueue[i+1:]...)
			return
		}
	}
}

// waitLocked blocks until blocked returns false, the context ends, or the
// controller is aborted. c.mu must be held.
func (c *Controller) waitLocked(ctx context.Context, blocked func() bool) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()
	for {
		if c.state == StateAborted {
			return ErrAborted
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !blocked() {
			return nil
		}
		c.cond.Wait()
	}
}

// WaitIfPaused blocks while the controller is paused. It returns ErrAborted
// once the controller is aborted.
func (c *Controller) WaitIfPaused(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitLocked(ctx, func() bool { return c.state == StatePaused })
}

// WaitForStep blocks the given call until a Step releases it, step mode is
// switched off, or the controller is aborted. Concurrent callers queue up
// and are released in arrival order. Outside step mode it returns
// immediately.
func (c *Controller) WaitForStep(ctx context.Context, call ToolCall) error {
	c.mu.Lock()
	if c.state == StateAborted {
		c.mu.Unlock()
		return ErrAborted
	}
	if c.state != StateStepping {
		c.mu.Unlock()
		return nil
	}
	if c.stepGranted {
		c.stepGranted = false
		c.mu.Unlock()
		return nil
	}
	w := &stepWaiter{step: PendingStep{ToolCallID: call.ID, Name: call.Name, Args: call.Args}}
	c.stepQueue = append(c.stepQueue, w)
	c.mu.Unlock()

	c.events.HandleEvent(Event{Kind: EventWaitingForStep, ToolCall: &call})

	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.waitLocked(ctx, func() bool { return c.state == StateStepping && !w.released })
	c.dequeueLocked(w)
	return err
}

// Capture takes the pre-image of the file a reversible call will touch.
// It returns nil, nil when there is nothing to capture. An error means the
// call must not run: its effect could not be undone.
func (c *Controller) Capture(call ToolCall) (*snapshot.FileState, error) {
	if c.snapshots == nil || !mutatesFiles(call.Name) {
		return nil, nil
	}
	path := targetPath(call.Args)
	if path == "" {
		return nil, nil
	}
	st, err := c.snapshots.Capture(path)
	if err != nil {
		c.logger.Warn("pre-image capture failed", "tool", call.Name, "path", path, "error", err)
		return nil, fmt.Errorf("capture %s: %w", path, err)
	}
	return &st, nil
}

// RecordAction appends a completed effect to the ledger. An action recorded
// after an abort with rollback is undone straight away.
func (c *Controller) RecordAction(a RollbackAction) {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	c.mu.Lock()
	late := c.state == StateAborted && c.rollingBack
	if !late {
		c.ledger.Push(a)
	}
	c.mu.Unlock()

	if late {
		step := c.replay(a)
		c.events.HandleEvent(Event{Kind: EventRollback, Rollback: &step})
	}
}

// RollbackCount returns the number of actions in the ledger.
func (c *Controller) RollbackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Len()
}

// Abort moves to the aborted state and wakes every waiter. With rollback
// set, the ledger is replayed newest first. Replay is best effort: a
// failed action is reported and the rest still run. Aborting an already
// aborted session only performs the optional rollback.
func (c *Controller) Abort(_ context.Context, rollback bool) (RollbackReport, error) {
	c.mu.Lock()
	already := c.state == StateAborted
	if !already {
		if err := c.transitionLocked(StateAborted); err != nil {
			c.mu.Unlock()
			return RollbackReport{}, err
		}
	}
	c.stepQueue = nil
	var actions []RollbackAction
	if rollback {
		c.rollingBack = true
		actions = c.ledger.Drain()
	}
	c.mu.Unlock()

	if !already {
		c.events.HandleEvent(Event{Kind: EventAborted, Message: fmt.Sprintf("aborted (rollback=%t)", rollback)})
	}

	var report RollbackReport
	if !rollback {
		return report, nil
	}
	for _, a := range actions {
		step := c.replay(a)
		report.Steps = append(report.Steps, step)
		switch {
		case step.Err != nil:
			report.Failed++
		case step.Restored:
			report.Restored++
		default:
			report.Skipped++
		}
		c.events.HandleEvent(Event{Kind: EventRollback, Rollback: &step})
	}
	c.events.HandleEvent(Event{Kind: EventRollbackComplete, Report: &report})
	return report, nil
}

func (c *Controller) replay(a RollbackAction) RollbackStep {
	step := RollbackStep{Action: a}
	if !a.Reversible() || c.snapshots == nil {
		return step
	}
	if err := c.snapshots.Restore(*a.Original); err != nil {
		step.Err = fmt.Errorf("rollback %s %s: %w", a.Type, a.Path, err)
		c.logger.Error("rollback action failed", "type", a.Type, "path", a.Path, "error", err)
		return step
	}
	step.Restored = true
	return step
}

// Complete marks the run as finished.
func (c *Controller) Complete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(StateCompleted)
}

// BeginRun readies the controller for another run in the same session. A
// completed controller starts over in running, keeping its ledger; an
// aborted one stays aborted.
func (c *Controller) BeginRun() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateAborted:
		return ErrAborted
	case StateCompleted:
		c.state = StateRunning
		if c.stepMode {
			c.state = StateStepping
		}
		c.stepGranted = false
	}
	return nil
}

// Reset returns the controller to running and clears the ledger.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateRunning
	c.stepMode = false
	c.stepGranted = false
	c.stepQueue = nil
	c.rollingBack = false
	c.ledger.Reset()
	c.cond.Broadcast()
}
