package providers

import (
	"context"
	"errors"
	"io"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

// OpenAIClient streams chat completions from OpenAI or any compatible API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client. baseURL is optional.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config), model: model}
}

// ChatStream implements engine.ModelClient.
func (c *OpenAIClient) ChatStream(ctx context.Context, req engine.ChatRequest, onChunk func(engine.Chunk) error) error {
	tools, err := openAITools(req.Tools)
	if err != nil {
		return err
	}
	model := req.Model
	if model == "" {
		model = c.model
	}

	creq := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      openAIMessages(req.Messages),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if len(tools) > 0 {
		creq.Tools = tools
		creq.ToolChoice = "auto"
	}
	if req.MaxOutputTokens > 0 {
		creq.MaxTokens = req.MaxOutputTokens
	}
	if req.Temperature > 0 {
		t := req.Temperature
		creq.Temperature = &t
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return wrapError(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return onChunk(engine.DoneChunk())
		}
		if err != nil {
			return wrapError(err)
		}
		for _, ch := range openAIChunks(resp) {
			if err := onChunk(ch); err != nil {
				return err
			}
		}
	}
}

// openAIChunks converts one stream response into chunks. Tool call deltas
// keep the provider's index so fragments of one call are merged downstream.
func openAIChunks(resp openai.ChatCompletionStreamResponse) []engine.Chunk {
	var out []engine.Chunk
	if len(resp.Choices) > 0 {
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			out = append(out, engine.ContentChunk(delta.Content))
		}
		for _, tc := range delta.ToolCalls {
			d := engine.ToolCallDelta{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
			if tc.Index != nil {
				d.Index = engine.Idx(*tc.Index)
			}
			out = append(out, engine.ToolCallChunk(d))
		}
	}
	if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		out = append(out, engine.UsageChunk(engine.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		}))
	}
	return out
}
