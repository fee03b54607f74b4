package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Orchestrator runs the model/tool iteration loop for one session.
type Orchestrator struct {
	client     ModelClient
	tools      ToolRegistry
	controller *Controller
	gate       *PlanGate
	scheduler  *Scheduler
	events     EventHandler
	cfg        LoopConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrchestrator wires the loop. controller and gate may be nil; a
// controller without snapshots and a gate without a plan source are used.
func NewOrchestrator(client ModelClient, tools ToolRegistry, controller *Controller, gate *PlanGate, events EventHandler, cfg LoopConfig) *Orchestrator {
	cfg = cfg.withDefaults()
	events = orNop(events)
	if controller == nil {
		controller = NewController(nil, events)
	}
	if gate == nil {
		gate = NewPlanGate(nil, cfg.planThreshold())
	}
	return &Orchestrator{
		client:     client,
		tools:      tools,
		controller: controller,
		gate:       gate,
		scheduler:  NewScheduler(tools, controller, gate, events, cfg.ParallelBatchSize),
		events:     events,
		cfg:        cfg,
		logger:     slog.Default().With("component", "loop"),
		now:        time.Now,
	}
}

// Controller exposes pause, step and abort.
func (o *Orchestrator) Controller() *Controller { return o.controller }

// Run iterates until the model answers without tool calls or a stop
// condition fires. It always returns a complete AgentResult.
func (o *Orchestrator) Run(ctx context.Context, messages []ChatMessage) AgentResult {
	history := make([]ChatMessage, len(messages), len(messages)+16)
	copy(history, messages)

	res := AgentResult{}
	finish := func(reason StopReason, err error) AgentResult {
		res.StopReason = reason
		res.Err = err
		res.Success = reason == StopCompleted
		res.History = history
		if err != nil {
			o.logger.Error("run stopped", "reason", reason, "iterations", res.Iterations, "error", err)
			o.events.HandleEvent(Event{Kind: EventError, Iteration: res.Iterations, Err: err, Outcome: &res})
		} else {
			o.logger.Info("run finished", "reason", reason, "iterations", res.Iterations, "tool_calls", len(res.ToolCalls))
			o.events.HandleEvent(Event{Kind: EventComplete, Iteration: res.Iterations, Outcome: &res})
		}
		return res
	}

	if err := o.controller.BeginRun(); err != nil {
		return finish(StopAborted, nil)
	}

	consecutiveFailures := 0
	warnedSoftCap := false

	for iter := 1; iter <= o.cfg.MaxIterations; iter++ {
		if o.controller.State() == StateAborted {
			return finish(StopAborted, nil)
		}
		if err := o.controller.WaitIfPaused(ctx); err != nil {
			return finish(o.interruptReason(err))
		}

		res.Iterations = iter
		o.events.HandleEvent(Event{Kind: EventIterationStart, Iteration: iter})

		dec := NewDecoder(iterationEvents{next: o.events, iteration: iter}, WithClock(o.now))
		req := ChatRequest{
			Model:           o.cfg.Model,
			Messages:        history,
			Tools:           o.tools.Schemas(o.cfg.Mode),
			MaxOutputTokens: o.cfg.MaxOutputTokens,
			Temperature:     o.cfg.Temperature,
		}
		err := o.client.ChatStream(ctx, req, dec.Feed)
		res.Usage.Add(dec.Usage())
		if err != nil {
			if o.controller.State() == StateAborted || errors.Is(err, context.Canceled) {
				return finish(StopAborted, nil)
			}
			return finish(StopError, &RunError{Err: WrapProviderError(err, 0, ""), Iteration: iter, Operation: "model_stream"})
		}
		if !dec.Done() {
			o.logger.Warn("model stream ended without done", "iteration", iter)
		}
		calls := dec.Finalize()

		if len(calls) == 0 {
			res.FinalResponse = dec.Content()
			history = append(history, ChatMessage{Role: RoleAssistant, Content: res.FinalResponse})
			if err := o.controller.WaitIfPaused(ctx); err != nil {
				return finish(o.interruptReason(err))
			}
			if err := o.controller.Complete(); err != nil {
				o.logger.Warn("could not mark run completed", "error", err)
			}
			return finish(StopCompleted, nil)
		}

		history = append(history, ChatMessage{Role: RoleAssistant, Content: dec.Content(), ToolCalls: calls})

		results := o.scheduler.Execute(ctx, iter, calls)
		allFailed := true
		for _, r := range results {
			history = append(history, ChatMessage{
				Role:       RoleTool,
				ToolCallID: r.Call.ID,
				ToolName:   r.Call.Name,
				Content:    r.Result.Feedback(),
			})
			res.ToolCalls = append(res.ToolCalls, ToolCallRecord{Iteration: iter, Call: r.Call, Result: r.Result, Duration: r.Duration})
			if r.Result.Success {
				allFailed = false
			}
		}

		if !warnedSoftCap && len(res.ToolCalls) >= o.cfg.SoftToolCallCap {
			warnedSoftCap = true
			o.events.HandleEvent(Event{Kind: EventWarning, Iteration: iter,
				Message: fmt.Sprintf("run has made %d tool calls; the task may need a different approach", len(res.ToolCalls))})
		}

		if o.controller.State() == StateAborted {
			return finish(StopAborted, nil)
		}

		if allFailed {
			consecutiveFailures++
			o.logger.Warn("every tool call failed", "iteration", iter, "consecutive", consecutiveFailures)
			if consecutiveFailures >= o.cfg.MaxConsecutiveErrors {
				return finish(StopConsecutiveErrors, nil)
			}
		} else {
			consecutiveFailures = 0
		}
	}

	return finish(StopMaxIterations, nil)
}

func (o *Orchestrator) interruptReason(err error) (StopReason, error) {
	if errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
		return StopAborted, nil
	}
	return StopError, err
}

// iterationEvents stamps decoder events with the iteration number.
type iterationEvents struct {
	next      EventHandler
	iteration int
}

func (h iterationEvents) HandleEvent(e Event) {
	e.Iteration = h.iteration
	h.next.HandleEvent(e)
}
