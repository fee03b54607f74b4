// Package providers adapts model endpoints to engine.ModelClient: each
// streaming response is turned into engine Chunks.
package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	anthropic "github.com/liushuangls/go-anthropic/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

// openAIMessages converts the conversation. Tool messages are only kept when
// they follow an assistant message that requested tools, which the API
// requires.
func openAIMessages(messages []engine.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	var system []string
	inToolRun := false

	for _, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			system = append(system, msg.Content)
			inToolRun = false
		case engine.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
			inToolRun = false
		case engine.RoleAssistant:
			content := msg.Content
			if content == "" {
				// an empty string is serialized as null, which the API rejects
				content = " "
			}
			var calls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				calls = append(calls, openai.ToolCall{
					ID:       tc.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: tc.Name, Arguments: string(args)},
				})
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content, ToolCalls: calls})
			inToolRun = len(calls) > 0
		case engine.RoleTool:
			if !inToolRun {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, ToolCallID: msg.ToolCallID, Content: content})
		}
	}

	if len(system) > 0 {
		out = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: strings.Join(system, "\n\n"),
		}}, out...)
	}
	return out
}

func openAITools(schemas []engine.ToolSchema) ([]openai.Tool, error) {
	tools := make([]openai.Tool, 0, len(schemas))
	for _, ts := range schemas {
		params, err := parseSchema(ts)
		if err != nil {
			return nil, err
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  params,
			},
		})
	}
	return tools, nil
}

// anthropicMessages converts the conversation. Consecutive tool results are
// folded into one user message, as the API expects all results of a turn
// together.
func anthropicMessages(messages []engine.ChatMessage) ([]anthropic.MessageSystemPart, []anthropic.Message) {
	var system []anthropic.MessageSystemPart
	var out []anthropic.Message
	inToolRun := false

	for _, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			system = append(system, anthropic.MessageSystemPart{Type: "text", Text: msg.Content})
			inToolRun = false
		case engine.RoleUser:
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
			inToolRun = false
		case engine.RoleAssistant:
			var content []anthropic.MessageContent
			if strings.TrimSpace(msg.Content) != "" {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, args))
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
			inToolRun = len(msg.ToolCalls) > 0
		case engine.RoleTool:
			if !inToolRun {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			isError := strings.HasPrefix(content, "ERROR: ")
			block := anthropic.NewToolResultMessageContent(msg.ToolCallID, content, isError)
			if n := len(out); n > 0 && out[n-1].Role == anthropic.RoleUser && isToolResults(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{block}})
		}
	}
	return system, out
}

func isToolResults(m anthropic.Message) bool {
	for _, c := range m.Content {
		if c.Type != anthropic.MessagesContentTypeToolResult {
			return false
		}
	}
	return len(m.Content) > 0
}

func anthropicTools(schemas []engine.ToolSchema) ([]anthropic.ToolDefinition, error) {
	defs := make([]anthropic.ToolDefinition, 0, len(schemas))
	for _, ts := range schemas {
		params, err := parseSchema(ts)
		if err != nil {
			return nil, err
		}
		defs = append(defs, anthropic.ToolDefinition{
			Name:        ts.Name,
			Description: ts.Description,
			InputSchema: params,
		})
	}
	return defs, nil
}

func parseSchema(ts engine.ToolSchema) (map[string]any, error) {
	if ts.JSONSchema == "" {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(ts.JSONSchema), &schema); err != nil {
		return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
	}
	return schema, nil
}

// wrapError classifies an SDK error into an *engine.ProviderError.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	status, retryAfter := errorMetadata(err)
	return engine.WrapProviderError(err, status, retryAfter)
}

// errorMetadata extracts the HTTP status and Retry-After hint from an SDK
// error, falling back to scanning the message.
func errorMetadata(err error) (int, string) {
	var status int
	var oaAPI *openai.APIError
	var oaReq *openai.RequestError
	var anReq *anthropic.RequestError
	switch {
	case errors.As(err, &oaAPI):
		status = oaAPI.HTTPStatusCode
	case errors.As(err, &oaReq):
		status = oaReq.HTTPStatusCode
	case errors.As(err, &anReq):
		status = anReq.StatusCode
	}

	msg := err.Error()
	if status == 0 {
		for _, code := range []int{
			http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusUnauthorized,
			http.StatusForbidden, http.StatusBadRequest, http.StatusPaymentRequired,
		} {
			if strings.Contains(msg, fmt.Sprint(code)) {
				status = code
				break
			}
		}
	}

	var retryAfter string
	lower := strings.ToLower(msg)
	for _, marker := range []string{"retry-after", "retry after"} {
		if idx := strings.Index(lower, marker); idx != -1 {
			if parts := strings.Fields(strings.TrimLeft(msg[idx+len(marker):], ": ")); len(parts) > 0 {
				retryAfter = parts[0]
			}
			break
		}
	}
	return status, retryAfter
}
