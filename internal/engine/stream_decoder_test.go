package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time { return time.UnixMilli(1700000000000) }

func feedAll(t *testing.T, d *Decoder, chunks ...Chunk) {
	t.Helper()
	for _, c := range chunks {
		require.NoError(t, d.Feed(c))
	}
}

func TestDecoderAssemblesFragmentedCall(t *testing.T) {
	rec := &recorder{}
	d := NewDecoder(rec)
	feedAll(t, d,
		ContentChunk("Let me look. "),
		ToolCallChunk(ToolCallDelta{Index: Idx(0), ID: "t1", Name: "read", Arguments: `{"pa`}),
		ToolCallChunk(ToolCallDelta{Index: Idx(0), Arguments: `th":"a.ts"}`}),
		UsageChunk(Usage{Prompt: 10, Completion: 5, Total: 15}),
		DoneChunk(),
	)

	calls := d.Finalize()
	require.Len(t, calls, 1)
	assert.Equal(t, "t1", calls[0].ID)
	assert.Equal(t, "read", calls[0].Name)
	assert.Equal(t, map[string]any{"path": "a.ts"}, calls[0].Args)
	assert.Nil(t, calls[0].DecodeError)
	assert.Equal(t, "Let me look. ", d.Content())
	assert.Equal(t, 15, d.Usage().Total)
	assert.True(t, d.Done())
	assert.Equal(t, 1, rec.count(EventToolCallStart))
}

func TestDecoderIsDeterministic(t *testing.T) {
	chunks := []Chunk{
		ToolCallChunk(ToolCallDelta{Index: Idx(1), ID: "b", Name: "grep", Arguments: `{"pattern":"x"}`}),
		ToolCallChunk(ToolCallDelta{Index: Idx(0), Name: "read_file", Arguments: `{"path":"a"}`}),
		ToolCallChunk(ToolCallDelta{Index: Idx(2), ID: "c", Name: "think", Arguments: `{"thought":`}),
		DoneChunk(),
	}
	run := func() []ToolCall {
		d := NewDecoder(nil, WithClock(fixedClock))
		feedAll(t, d, chunks...)
		return d.Finalize()
	}
	first := run()
	assert.Equal(t, first, run())
	require.Len(t, first, 3)
	assert.Equal(t, "tool_0_1700000000000", first[0].ID)
	assert.Equal(t, []string{"read_file", "grep", "think"}, []string{first[0].Name, first[1].Name, first[2].Name})
}

func TestDecoderResolvesIndexByID(t *testing.T) {
	d := NewDecoder(nil)
	feedAll(t, d,
		ToolCallChunk(ToolCallDelta{Index: Idx(0), ID: "a", Name: "read_file", Arguments: `{"path":"x"}`}),
		ToolCallChunk(ToolCallDelta{Index: Idx(1), ID: "b", Name: "grep", Arguments: `{"pat`}),
		ToolCallChunk(ToolCallDelta{ID: "b", Arguments: `tern":"y"}`}),
	)
	calls := d.Finalize()
	require.Len(t, calls, 2)
	assert.Equal(t, map[string]any{"pattern": "y"}, calls[1].Args)
}

func TestDecoderDefaultsMissingIndexToZero(t *testing.T) {
	d := NewDecoder(nil)
	feedAll(t, d,
		ToolCallChunk(ToolCallDelta{Name: "read_file", Arguments: `{"path":`}),
		ToolCallChunk(ToolCallDelta{Arguments: `"z"}`}),
	)
	calls := d.Finalize()
	require.Len(t, calls, 1)
	assert.Equal(t, "z", calls[0].Args["path"])
}

func TestDecoderRealIDReplacesSynthesized(t *testing.T) {
	rec := &recorder{}
	d := NewDecoder(rec, WithClock(fixedClock))
	feedAll(t, d, ToolCallChunk(ToolCallDelta{Index: Idx(0), Name: "read_file", Arguments: `{"path":`}))
	assert.Zero(t, rec.count(EventToolCallStart), "no start event before a real id")

	feedAll(t, d,
		ToolCallChunk(ToolCallDelta{Index: Idx(0), ID: "call_9", Arguments: `"a"}`}),
		ToolCallChunk(ToolCallDelta{Index: Idx(0), ID: "call_9"}),
	)
	calls := d.Finalize()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_9", calls[0].ID)
	assert.Equal(t, 1, rec.count(EventToolCallStart))
}

func TestDecoderStartsCallWithoutRealIDAtFinalize(t *testing.T) {
	rec := &recorder{}
	d := NewDecoder(rec, WithClock(fixedClock))
	feedAll(t, d, ToolCallChunk(ToolCallDelta{Index: Idx(3), Name: "think", Arguments: `{}`}))
	calls := d.Finalize()
	require.Len(t, calls, 1)
	assert.Equal(t, "tool_3_1700000000000", calls[0].ID)
	assert.Equal(t, 1, rec.count(EventToolCallStart))
}

func TestDecoderClassifiesBadArguments(t *testing.T) {
	tests := []struct {
		name string
		args string
		want DecodeErrorKind
	}{
		{name: "empty", args: "", want: DecodeEmpty},
		{name: "whitespace", args: "  \n", want: DecodeEmpty},
		{name: "unclosed object", args: `{"path":"a.go","content":"pack`, want: DecodeTruncated},
		{name: "unclosed nested", args: `{"steps":["a","b"`, want: DecodeTruncated},
		{name: "escaped quote inside string", args: `{"content":"say \"hi`, want: DecodeTruncated},
		{name: "brace inside string", args: `{"content":"}}}"`, want: DecodeTruncated},
		{name: "trailing comma", args: `{"path":"a",}`, want: DecodeMalformed},
		{name: "extra closer", args: `{"path":"a"}}`, want: DecodeMalformed},
		{name: "not an object", args: `["a"]`, want: DecodeMalformed},
		{name: "null", args: `null`, want: DecodeMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(nil)
			feedAll(t, d, ToolCallChunk(ToolCallDelta{Index: Idx(0), ID: "x", Name: "write_file", Arguments: tt.args}))
			calls := d.Finalize()
			require.Len(t, calls, 1)
			require.NotNil(t, calls[0].DecodeError)
			assert.Equal(t, tt.want, calls[0].DecodeError.Kind)
			assert.NotNil(t, calls[0].Args)
			assert.NotEmpty(t, calls[0].DecodeError.Hint())
		})
	}
}

func TestDecodeErrorHintMentionsTail(t *testing.T) {
	_, derr := parseArguments(`{"content":"abcdef`)
	require.NotNil(t, derr)
	assert.Equal(t, DecodeTruncated, derr.Kind)
	assert.Contains(t, derr.Hint(), "cut off")
	assert.Contains(t, derr.Hint(), "abcdef")
}

func TestDecoderFinalizeIsIdempotent(t *testing.T) {
	d := NewDecoder(nil)
	feedAll(t, d, ToolCallChunk(ToolCallDelta{Index: Idx(0), ID: "a", Name: "think", Arguments: `{}`}), DoneChunk())
	first := d.Finalize()
	assert.Equal(t, first, d.Finalize())
	assert.ErrorIs(t, d.Feed(ContentChunk("late")), ErrDecoderClosed)
}

func TestDecoderSurfacesStreamErrors(t *testing.T) {
	d := NewDecoder(nil)
	boom := errors.New("connection reset")
	err := d.Feed(ErrorChunk(boom))
	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, boom)
}

func TestDecoderRecordsModelSwitch(t *testing.T) {
	rec := &recorder{}
	d := NewDecoder(rec)
	feedAll(t, d, ModelSwitchedChunk(ModelSwitch{From: "a", To: "b", Reason: "rate limited"}), DoneChunk())
	require.NotNil(t, d.ModelSwitch())
	assert.Equal(t, "b", d.ModelSwitch().To)
	assert.Equal(t, 1, rec.count(EventModelSwitch))
}
