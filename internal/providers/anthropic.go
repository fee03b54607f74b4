package providers

import (
	"context"
	"errors"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

const (
	anthropicDefaultMaxTokens   = 4096
	anthropicDefaultTemperature = float32(0.1)
)

// AnthropicClient streams messages from the Anthropic API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a client.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{client: anthropic.NewClient(apiKey), model: model}
}

// ChatStream implements engine.ModelClient. The SDK reports the stream
// through callbacks; the first error returned by onChunk cancels it.
func (c *AnthropicClient) ChatStream(ctx context.Context, req engine.ChatRequest, onChunk func(engine.Chunk) error) error {
	tools, err := anthropicTools(req.Tools)
	if err != nil {
		return err
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := anthropicDefaultMaxTokens
	if req.MaxOutputTokens > 0 {
		maxTokens = req.MaxOutputTokens
	}
	temperature := anthropicDefaultTemperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	system, messages := anthropicMessages(req.Messages)
	sreq := anthropic.MessagesStreamRequest{
		MessagesRequest: anthropic.MessagesRequest{
			Model:       anthropic.Model(model),
			Messages:    messages,
			MaxTokens:   maxTokens,
			Temperature: &temperature,
		},
	}
	if len(system) > 0 {
		sreq.MultiSystem = system
	}
	if len(tools) > 0 {
		sreq.Tools = tools
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var callbackErr error
	emit := func(ch engine.Chunk) {
		if callbackErr != nil {
			return
		}
		if err := onChunk(ch); err != nil {
			callbackErr = err
			cancel()
		}
	}

	sreq.OnError = func(resp anthropic.ErrorResponse) {
		msg := "unknown error"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		emit(engine.ErrorChunk(fmt.Errorf("anthropic stream: %s", msg)))
	}
	sreq.OnContentBlockStart = func(data anthropic.MessagesEventContentBlockStartData) {
		if ch, ok := anthropicBlockStart(data); ok {
			emit(ch)
		}
	}
	sreq.OnContentBlockDelta = func(data anthropic.MessagesEventContentBlockDeltaData) {
		if ch, ok := anthropicBlockDelta(data); ok {
			emit(ch)
		}
	}

	resp, err := c.client.CreateMessagesStream(ctx, sreq)
	if callbackErr != nil {
		return callbackErr
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return wrapError(err)
	}

	if u := resp.Usage; u.InputTokens > 0 || u.OutputTokens > 0 {
		emit(engine.UsageChunk(engine.Usage{
			Prompt:     u.InputTokens,
			Completion: u.OutputTokens,
			Total:      u.InputTokens + u.OutputTokens,
		}))
	}
	emit(engine.DoneChunk())
	return callbackErr
}

// anthropicBlockStart announces a tool_use block with its id and name. Its
// input arrives later as partial JSON deltas.
func anthropicBlockStart(data anthropic.MessagesEventContentBlockStartData) (engine.Chunk, bool) {
	block := data.ContentBlock
	if block.Type != "tool_use" || block.MessageContentToolUse == nil {
		return engine.Chunk{}, false
	}
	return engine.ToolCallChunk(engine.ToolCallDelta{
		Index: engine.Idx(data.Index),
		ID:    block.MessageContentToolUse.ID,
		Name:  block.MessageContentToolUse.Name,
	}), true
}

func anthropicBlockDelta(data anthropic.MessagesEventContentBlockDeltaData) (engine.Chunk, bool) {
	switch data.Delta.Type {
	case "text_delta":
		if data.Delta.Text != nil && *data.Delta.Text != "" {
			return engine.ContentChunk(*data.Delta.Text), true
		}
	case "input_json_delta":
		if data.Delta.PartialJson != nil && *data.Delta.PartialJson != "" {
			return engine.ToolCallChunk(engine.ToolCallDelta{
				Index:     engine.Idx(data.Index),
				Arguments: *data.Delta.PartialJson,
			}), true
		}
	}
	return engine.Chunk{}, false
}
