package engine

import (
	"context"
	"errors"
	"sync"
)

// turn is one scripted model response.
type turn struct {
	chunks []Chunk
	err    error
	// block waits for ctx cancellation after the chunks were sent.
	block bool
}

// scriptedClient replays turns in order. Once the script runs out it answers
// with plain text so a run can finish.
type scriptedClient struct {
	mu       sync.Mutex
	turns    []turn
	requests []ChatRequest
}

func (c *scriptedClient) ChatStream(ctx context.Context, req ChatRequest, onChunk func(Chunk) error) error {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	var t turn
	if len(c.turns) > 0 {
		t = c.turns[0]
		c.turns = c.turns[1:]
	} else {
		t = turn{chunks: textTurn("done")}
	}
	c.mu.Unlock()

	for _, ch := range t.chunks {
		if err := onChunk(ch); err != nil {
			return err
		}
	}
	if t.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return t.err
}

func (c *scriptedClient) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func textTurn(text string) []Chunk {
	return []Chunk{ContentChunk(text), DoneChunk()}
}

type callSpec struct {
	id, name, args string
}

func toolTurn(calls ...callSpec) []Chunk {
	out := make([]Chunk, 0, len(calls)+1)
	for i, c := range calls {
		out = append(out, ToolCallChunk(ToolCallDelta{Index: Idx(i), ID: c.id, Name: c.name, Arguments: c.args}))
	}
	return append(out, DoneChunk())
}

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) count(k EventKind) int {
	n := 0
	for _, got := range r.kinds() {
		if got == k {
			n++
		}
	}
	return n
}

func okTool(name string, fn func(args map[string]any) string) Tool {
	return Tool{
		Name: name,
		Fn: func(_ context.Context, args map[string]any) (ToolResult, error) {
			out := "ok"
			if fn != nil {
				out = fn(args)
			}
			return Succeeded(name, out), nil
		},
	}
}

func failingTool(name string) Tool {
	return Tool{
		Name: name,
		Fn: func(context.Context, map[string]any) (ToolResult, error) {
			return ToolResult{}, errors.New(name + " failed")
		},
	}
}
