package engine

import (
	"errors"
	"log/slog"

	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

// AgentBuilder helps construct an Agent with a fluent API.
type AgentBuilder struct {
	config           LoopConfig
	client           ModelClient
	tools            ToolRegistry
	events           Handlers
	plans            plans.Registry
	snapshots        Snapshotter
	systemPrompt     string
	maxContinuations int
}

// NewAgentBuilder creates a new agent builder with default configuration.
func NewAgentBuilder() *AgentBuilder {
	return &AgentBuilder{
		config:           DefaultLoopConfig(),
		maxContinuations: DefaultMaxContinuations,
	}
}

// WithModel sets the model name.
func (b *AgentBuilder) WithModel(model string) *AgentBuilder {
	b.config.Model = model
	return b
}

// WithModelClient sets the streaming model client.
func (b *AgentBuilder) WithModelClient(client ModelClient) *AgentBuilder {
	b.client = client
	return b
}

// WithTools sets the tool registry.
func (b *AgentBuilder) WithTools(reg ToolRegistry) *AgentBuilder {
	b.tools = reg
	return b
}

// WithConfig replaces the loop configuration, keeping the model if cfg has none.
func (b *AgentBuilder) WithConfig(cfg LoopConfig) *AgentBuilder {
	if cfg.Model == "" {
		cfg.Model = b.config.Model
	}
	b.config = cfg
	return b
}

// WithPlans sets the plan registry consulted by the approval gate.
func (b *AgentBuilder) WithPlans(reg plans.Registry) *AgentBuilder {
	b.plans = reg
	return b
}

// WithSnapshots enables pre-image capture and rollback.
func (b *AgentBuilder) WithSnapshots(s Snapshotter) *AgentBuilder {
	b.snapshots = s
	return b
}

// WithEventHandler adds an event handler. It may be called more than once.
func (b *AgentBuilder) WithEventHandler(h EventHandler) *AgentBuilder {
	b.events = append(b.events, h)
	return b
}

// WithSystemPrompt sets the system message that opens the conversation.
func (b *AgentBuilder) WithSystemPrompt(prompt string) *AgentBuilder {
	b.systemPrompt = prompt
	return b
}

// Build validates the configuration and returns the agent.
func (b *AgentBuilder) Build() (*Agent, error) {
	if b.client == nil {
		return nil, errors.New("model client is required")
	}
	if len(b.tools) == 0 {
		return nil, errors.New("tool registry is required")
	}

	var events EventHandler
	if len(b.events) > 0 {
		events = b.events
	}
	controller := NewController(b.snapshots, events)
	var source PlanSource
	if b.plans != nil {
		source = b.plans
	}
	gate := NewPlanGate(source, b.config.planThreshold())

	a := &Agent{
		orch:             NewOrchestrator(b.client, b.tools, controller, gate, events, b.config),
		plans:            b.plans,
		maxContinuations: b.maxContinuations,
		logger:           slog.Default().With("component", "agent"),
	}
	if b.systemPrompt != "" {
		a.history = []ChatMessage{{Role: RoleSystem, Content: b.systemPrompt}}
	}

	slog.Info("agent configured",
		"model", b.config.Model,
		"tools", len(b.tools),
		"max_iterations", a.orch.cfg.MaxIterations,
		"plan_threshold", b.config.planThreshold(),
		"rollback", b.snapshots != nil)
	return a, nil
}
