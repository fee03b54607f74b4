package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ErrDecoderClosed is returned when chunks arrive after done.
var ErrDecoderClosed = errors.New("stream decoder: chunk after done")

// PartialToolCall is a tool call still being assembled from deltas.
type PartialToolCall struct {
	Index int
	ID    string
	// IDReal is false while ID is a synthesized placeholder.
	IDReal   bool
	Name     string
	Args     strings.Builder
	Complete bool

	started bool
}

// StreamAccumulator holds everything collected during one streaming call.
type StreamAccumulator struct {
	Content     strings.Builder
	ToolCalls   map[int]*PartialToolCall
	ModelSwitch *ModelSwitch
	Usage       Usage
}

// Decoder turns the ordered chunks of one model turn into text plus
// finalized tool calls. A Decoder is used for exactly one turn.
type Decoder struct {
	acc       StreamAccumulator
	byID      map[string]int
	events    EventHandler
	now       func() time.Time
	done      bool
	finalized []ToolCall
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithClock overrides the clock used for synthesized call ids.
func WithClock(now func() time.Time) DecoderOption {
	return func(d *Decoder) { d.now = now }
}

// NewDecoder returns a decoder reporting to events, which may be nil.
func NewDecoder(events EventHandler, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		acc:    StreamAccumulator{ToolCalls: make(map[int]*PartialToolCall)},
		byID:   make(map[string]int),
		events: events,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed consumes one chunk. It returns a *StreamError for error chunks.
func (d *Decoder) Feed(c Chunk) error {
	if d.done {
		return ErrDecoderClosed
	}
	switch c.Kind {
	case ChunkContent:
		d.acc.Content.WriteString(c.Content)
		d.emit(Event{Kind: EventContent, Content: c.Content})
	case ChunkToolCall:
		d.mergeToolCall(c.ToolCall)
	case ChunkModelSwitched:
		sw := c.ModelSwitch
		d.acc.ModelSwitch = &sw
		d.emit(Event{Kind: EventModelSwitch, ModelSwitch: &sw})
	case ChunkUsage:
		d.acc.Usage.Add(c.Usage)
		u := c.Usage
		d.emit(Event{Kind: EventUsage, Usage: &u})
	case ChunkDone:
		d.Finalize()
	case ChunkError:
		err := c.Err
		if err == nil {
			err = errors.New("unknown stream error")
		}
		return &StreamError{Err: err}
	default:
		return fmt.Errorf("stream decoder: unknown chunk kind %s", c.Kind)
	}
	return nil
}

func (d *Decoder) mergeToolCall(delta ToolCallDelta) {
	idx := d.resolveIndex(delta)
	p, ok := d.acc.ToolCalls[idx]
	if !ok {
		p = &PartialToolCall{Index: idx}
		if delta.ID != "" {
			p.ID, p.IDReal = delta.ID, true
		} else {
			p.ID = fmt.Sprintf("tool_%d_%d", idx, d.now().UnixMilli())
		}
		d.acc.ToolCalls[idx] = p
	} else if delta.ID != "" && !p.IDReal {
		p.ID, p.IDReal = delta.ID, true
	}
	if p.IDReal {
		d.byID[p.ID] = idx
	}

	if delta.Name != "" {
		p.Name = delta.Name
	}
	p.Args.WriteString(delta.Arguments)

	if p.IDReal && !p.started {
		p.started = true
		d.emit(Event{Kind: EventToolCallStart, ToolCall: &ToolCall{ID: p.ID, Name: p.Name}})
	}
}

func (d *Decoder) resolveIndex(delta ToolCallDelta) int {
	if delta.Index != nil {
		return *delta.Index
	}
	if delta.ID != "" {
		if idx, ok := d.byID[delta.ID]; ok {
			return idx
		}
	}
	return 0
}

// Finalize converts every incomplete partial call into a ToolCall, ordered by
// index. It never fails: unparseable arguments are reported on the call's
// DecodeError. Calling it again returns the same calls.
func (d *Decoder) Finalize() []ToolCall {
	if d.done {
		return d.finalized
	}
	d.done = true

	indices := make([]int, 0, len(d.acc.ToolCalls))
	for idx := range d.acc.ToolCalls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	calls := make([]ToolCall, 0, len(indices))
	for _, idx := range indices {
		p := d.acc.ToolCalls[idx]
		if p.Complete {
			continue
		}
		p.Complete = true
		call := ToolCall{ID: p.ID, Name: p.Name}
		call.Args, call.DecodeError = parseArguments(p.Args.String())
		if call.Args == nil {
			call.Args = map[string]any{}
		}
		if !p.started {
			p.started = true
			d.emit(Event{Kind: EventToolCallStart, ToolCall: &ToolCall{ID: p.ID, Name: p.Name}})
		}
		calls = append(calls, call)
	}
	d.finalized = calls
	return calls
}

// Done reports whether the turn has been finalized.
func (d *Decoder) Done() bool { return d.done }

// Content returns the accumulated assistant text.
func (d *Decoder) Content() string { return d.acc.Content.String() }

// Usage returns the accumulated token usage.
func (d *Decoder) Usage() Usage { return d.acc.Usage }

// ModelSwitch returns the last model switch seen, if any.
func (d *Decoder) ModelSwitch() *ModelSwitch { return d.acc.ModelSwitch }

func (d *Decoder) emit(e Event) {
	if d.events != nil {
		d.events.HandleEvent(e)
	}
}

// DecodeErrorKind distinguishes why tool arguments could not be decoded.
type DecodeErrorKind string

const (
	DecodeEmpty     DecodeErrorKind = "empty_arguments"
	DecodeTruncated DecodeErrorKind = "truncated"
	DecodeMalformed DecodeErrorKind = "malformed"
)

const decodeTailPreview = 120

// DecodeError describes tool arguments that did not parse.
type DecodeError struct {
	Kind       DecodeErrorKind
	Length     int
	Tail       string
	ParseError string
}

func (e *DecodeError) Error() string {
	if e.Kind == DecodeEmpty {
		return "tool call arguments are empty"
	}
	return fmt.Sprintf("tool call arguments are %s (%d bytes): %s", e.Kind, e.Length, e.ParseError)
}

// Hint is the corrective instruction fed back to the model.
func (e *DecodeError) Hint() string {
	switch e.Kind {
	case DecodeEmpty:
		return "The tool call had no arguments. Call the tool again with all required arguments."
	case DecodeTruncated:
		return fmt.Sprintf("The tool call arguments were cut off after %d bytes, most likely by the output token limit. "+
			"Retry with smaller arguments, for example split a large file write into several edits. Last bytes received: %q",
			e.Length, e.Tail)
	default:
		return fmt.Sprintf("The tool call arguments are not valid JSON (%s). Fix the JSON syntax and call the tool again.", e.ParseError)
	}
}

func parseArguments(buf string) (map[string]any, *DecodeError) {
	if strings.TrimSpace(buf) == "" {
		return nil, &DecodeError{Kind: DecodeEmpty}
	}
	var args map[string]any
	err := json.Unmarshal([]byte(buf), &args)
	if err == nil && args != nil {
		return args, nil
	}
	if err == nil {
		err = errors.New("arguments are not a JSON object")
	}
	return nil, &DecodeError{
		Kind:       classifyArguments(buf),
		Length:     len(buf),
		Tail:       tail(buf, decodeTailPreview),
		ParseError: err.Error(),
	}
}

// classifyArguments reports truncated when the buffer ends inside a string or
// with unclosed brackets, and malformed otherwise.
func classifyArguments(buf string) DecodeErrorKind {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth < 0 {
				return DecodeMalformed
			}
		}
	}
	if inString || depth > 0 {
		return DecodeTruncated
	}
	return DecodeMalformed
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
