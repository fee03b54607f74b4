package engine

import "fmt"

// ChunkKind tags a streamed Chunk.
type ChunkKind int

const (
	ChunkContent ChunkKind = iota + 1
	ChunkToolCall
	ChunkModelSwitched
	ChunkUsage
	ChunkDone
	ChunkError
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkContent:
		return "content"
	case ChunkToolCall:
		return "tool_call"
	case ChunkModelSwitched:
		return "model_switched"
	case ChunkUsage:
		return "usage"
	case ChunkDone:
		return "done"
	case ChunkError:
		return "error"
	default:
		return fmt.Sprintf("chunk(%d)", int(k))
	}
}

// Chunk is one unit of incrementally streamed model output. Only the field
// matching Kind is meaningful.
type Chunk struct {
	Kind        ChunkKind
	Content     string
	ToolCall    ToolCallDelta
	ModelSwitch ModelSwitch
	Usage       Usage
	Err         error
}

// ToolCallDelta is a fragment of a tool call. Any field may be missing and
// fragments of one call may arrive across several chunks.
type ToolCallDelta struct {
	Index     *int
	ID        string
	Name      string
	Arguments string
}

// ModelSwitch reports that the provider moved to another model mid-run.
type ModelSwitch struct {
	From   string
	To     string
	Reason string
}

func ContentChunk(text string) Chunk { return Chunk{Kind: ChunkContent, Content: text} }

func ToolCallChunk(d ToolCallDelta) Chunk { return Chunk{Kind: ChunkToolCall, ToolCall: d} }

func ModelSwitchedChunk(s ModelSwitch) Chunk { return Chunk{Kind: ChunkModelSwitched, ModelSwitch: s} }

func UsageChunk(u Usage) Chunk { return Chunk{Kind: ChunkUsage, Usage: u} }

func DoneChunk() Chunk { return Chunk{Kind: ChunkDone} }

func ErrorChunk(err error) Chunk { return Chunk{Kind: ChunkError, Err: err} }

// Idx is a helper for building deltas with an explicit index.
func Idx(i int) *int { return &i }
