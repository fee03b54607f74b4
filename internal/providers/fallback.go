package providers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

// FallbackClient retries a turn on a second model when the primary fails
// before producing any content or tool call. The switch is reported as a
// model_switched chunk ahead of the fallback's own chunks.
type FallbackClient struct {
	Primary       engine.ModelClient
	PrimaryModel  string
	Fallback      engine.ModelClient
	FallbackModel string
}

// ChatStream implements engine.ModelClient.
func (c *FallbackClient) ChatStream(ctx context.Context, req engine.ChatRequest, onChunk func(engine.Chunk) error) error {
	produced := false
	var primaryErr error
	err := c.Primary.ChatStream(ctx, req, func(ch engine.Chunk) error {
		switch ch.Kind {
		case engine.ChunkError:
			if !produced {
				primaryErr = ch.Err
				return errSwitch
			}
		case engine.ChunkContent, engine.ChunkToolCall:
			produced = true
		}
		return onChunk(ch)
	})
	if errors.Is(err, errSwitch) {
		err = primaryErr
		if err == nil {
			err = errors.New("primary stream failed")
		}
	}
	if err == nil || produced || c.Fallback == nil || ctx.Err() != nil || !canFallBack(err) {
		return err
	}

	slog.Warn("primary model failed, switching to fallback",
		"from", c.PrimaryModel, "to", c.FallbackModel, "error", err)
	if cbErr := onChunk(engine.ModelSwitchedChunk(engine.ModelSwitch{
		From:   c.PrimaryModel,
		To:     c.FallbackModel,
		Reason: err.Error(),
	})); cbErr != nil {
		return cbErr
	}
	req.Model = c.FallbackModel
	return c.Fallback.ChatStream(ctx, req, onChunk)
}

var errSwitch = errors.New("switch to fallback model")

// canFallBack reports whether another model could succeed where the primary
// failed. Errors raised by the consumer are never retried.
func canFallBack(err error) bool {
	if errors.Is(err, engine.ErrDecoderClosed) {
		return false
	}
	var pe *engine.ProviderError
	if errors.As(err, &pe) {
		return !pe.IsAuth
	}
	return true
}
