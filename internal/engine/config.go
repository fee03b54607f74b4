package engine

// Defaults for LoopConfig.
const (
	DefaultMaxIterations        = 25
	DefaultMaxConsecutiveErrors = 3
	DefaultMaxOutputTokens      = 8192
	DefaultSoftToolCallCap      = 40
)

// LoopConfig holds the knobs of one Orchestrator.
type LoopConfig struct {
	Model           string
	MaxOutputTokens int
	Temperature     float32
	Mode            ChatMode

	MaxIterations        int
	MaxConsecutiveErrors int
	ParallelBatchSize    int
	// PlanThreshold is the number of distinct files that may be mutated
	// before an approved plan is required. Nil means DefaultPlanThreshold,
	// negative disables the gate.
	PlanThreshold *int
	// SoftToolCallCap emits a warning once a run made this many tool calls.
	SoftToolCallCap int
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxOutputTokens:      DefaultMaxOutputTokens,
		Mode:                 ChatModeAgent,
		MaxIterations:        DefaultMaxIterations,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		ParallelBatchSize:    DefaultParallelBatchSize,
		PlanThreshold:        Threshold(DefaultPlanThreshold),
		SoftToolCallCap:      DefaultSoftToolCallCap,
	}
}

// Threshold returns a PlanThreshold value. Threshold(0) gates every mutation.
func Threshold(n int) *int { return &n }

// planThreshold resolves PlanThreshold, treating nil as the default.
func (c LoopConfig) planThreshold() int {
	if c.PlanThreshold == nil {
		return DefaultPlanThreshold
	}
	return *c.PlanThreshold
}

// withDefaults fills zero values. A nil PlanThreshold becomes the default; an
// explicit zero is kept and means every mutation needs a plan.
func (c LoopConfig) withDefaults() LoopConfig {
	d := DefaultLoopConfig()
	if c.PlanThreshold == nil {
		c.PlanThreshold = d.PlanThreshold
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = d.MaxOutputTokens
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = d.MaxConsecutiveErrors
	}
	if c.ParallelBatchSize <= 0 {
		c.ParallelBatchSize = d.ParallelBatchSize
	}
	if c.SoftToolCallCap <= 0 {
		c.SoftToolCallCap = d.SoftToolCallCap
	}
	return c
}
