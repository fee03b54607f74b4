package engine

import "time"

// EventKind discriminates Event.
type EventKind string

const (
	EventIterationStart   EventKind = "iteration_start"
	EventContent          EventKind = "content"
	EventToolCallStart    EventKind = "tool_call_start"
	EventToolCallComplete EventKind = "tool_call_complete"
	EventModelSwitch      EventKind = "model_switch"
	EventUsage            EventKind = "usage"
	EventComplete         EventKind = "complete"
	EventError            EventKind = "error"
	EventPaused           EventKind = "paused"
	EventResumed          EventKind = "resumed"
	EventStepMode         EventKind = "step_mode"
	EventWaitingForStep   EventKind = "waiting_for_step"
	EventAborted          EventKind = "aborted"
	EventRollback         EventKind = "rollback"
	EventRollbackComplete EventKind = "rollback_complete"
	EventWarning          EventKind = "warning"
)

// Event is the single notification type emitted by the engine. Which
// fields are set depends on Kind.
type Event struct {
	Kind      EventKind
	Time      time.Time
	Iteration int

	Content     string          // content
	ToolCall    *ToolCall       // tool_call_start, tool_call_complete, waiting_for_step
	Result      *ToolResult     // tool_call_complete
	Duration    time.Duration   // tool_call_complete
	ModelSwitch *ModelSwitch    // model_switch
	Usage       *Usage          // usage
	Outcome     *AgentResult    // complete, error
	Err         error           // error
	StepMode    bool            // step_mode
	Rollback    *RollbackStep   // rollback
	Report      *RollbackReport // rollback_complete
	Message     string          // warning, aborted
}

// EventHandler receives engine events. Handlers are called synchronously
// from the goroutine that produced the event, which may be a parallel tool
// worker, so implementations must be safe for concurrent use.
type EventHandler interface {
	HandleEvent(Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(Event)

func (f EventHandlerFunc) HandleEvent(e Event) { f(e) }

// Handlers fans an event out to several handlers in order.
type Handlers []EventHandler

func (hs Handlers) HandleEvent(e Event) {
	for _, h := range hs {
		if h != nil {
			h.HandleEvent(e)
		}
	}
}

// ChannelHandler forwards events to a channel. Events are dropped when the
// channel is full so a slow consumer never stalls the loop.
type ChannelHandler struct{ Ch chan<- Event }

func (h ChannelHandler) HandleEvent(e Event) {
	select {
	case h.Ch <- e:
	default:
	}
}

type stampingHandler struct {
	next EventHandler
	now  func() time.Time
}

func (h stampingHandler) HandleEvent(e Event) {
	if e.Time.IsZero() {
		e.Time = h.now()
	}
	h.next.HandleEvent(e)
}

// nopHandler swallows everything.
type nopHandler struct{}

func (nopHandler) HandleEvent(Event) {}

func orNop(h EventHandler) EventHandler {
	if h == nil {
		return nopHandler{}
	}
	return stampingHandler{next: h, now: time.Now}
}
