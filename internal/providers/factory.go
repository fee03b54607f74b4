package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

// Config selects and authenticates a model endpoint.
type Config struct {
	Provider      string
	Model         string
	FallbackModel string
	APIKey        string
	BaseURL       string
}

type preset struct {
	keyEnv       string
	modelEnv     string
	defaultModel string
	baseURL      string
	// localKey is used when no key is configured; empty means a key is required.
	localKey  string
	anthropic bool
}

// Everything but anthropic speaks the OpenAI chat completions API.
var presets = map[string]preset{
	"openai":    {keyEnv: "OPENAI_API_KEY", modelEnv: "OPENAI_MODEL", defaultModel: "gpt-4o-mini"},
	"anthropic": {keyEnv: "ANTHROPIC_API_KEY", modelEnv: "ANTHROPIC_MODEL", defaultModel: "claude-3-5-sonnet-latest", anthropic: true},
	"kimi":      {keyEnv: "KIMI_API_KEY", modelEnv: "KIMI_MODEL", defaultModel: "kimi-k2-250711", baseURL: "https://ark.ap-southeast.bytepluses.com/api/v3"},
	"gemini":    {keyEnv: "GEMINI_API_KEY", modelEnv: "GEMINI_MODEL", defaultModel: "gemini-1.5-flash", baseURL: "https://generativelanguage.googleapis.com/v1beta/openai"},
	"lmstudio":  {keyEnv: "LMSTUDIO_API_KEY", modelEnv: "LMSTUDIO_MODEL", defaultModel: "local-model", baseURL: "http://localhost:1234/v1", localKey: "lm-studio"},
	"ollama":    {keyEnv: "OLLAMA_API_KEY", modelEnv: "OLLAMA_MODEL", defaultModel: "llama3.1", baseURL: "http://localhost:11434/v1", localKey: "ollama"},
	"glm":       {keyEnv: "GLM_API_KEY", modelEnv: "GLM_MODEL", defaultModel: "glm-4-plus", baseURL: "https://open.bigmodel.cn/api/paas/v4"},
	"deepseek":  {keyEnv: "DEEPSEEK_API_KEY", modelEnv: "DEEPSEEK_MODEL", defaultModel: "deepseek-chat", baseURL: "https://api.deepseek.com/v1"},
	"groq":      {keyEnv: "GROQ_API_KEY", modelEnv: "GROQ_MODEL", defaultModel: "llama-3.1-70b-versatile", baseURL: "https://api.groq.com/openai/v1"},
}

// Names lists the supported providers.
func Names() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the client described by cfg and returns it with the resolved
// model name. Missing keys and models fall back to the provider's
// environment variables, then to its defaults. With FallbackModel set the
// client is wrapped in a FallbackClient on the same endpoint.
func New(cfg Config) (engine.ModelClient, string, error) {
	name := strings.ToLower(cfg.Provider)
	if name == "" {
		name = "openai"
	}
	p, ok := presets[name]
	if !ok {
		return nil, "", fmt.Errorf("unknown provider %q (supported: %s)", cfg.Provider, strings.Join(Names(), ", "))
	}

	key := firstNonEmpty(cfg.APIKey, os.Getenv(p.keyEnv), p.localKey)
	if key == "" {
		return nil, "", fmt.Errorf("%s: api key not set (config api_key or %s)", name, p.keyEnv)
	}
	model := firstNonEmpty(cfg.Model, os.Getenv(p.modelEnv), p.defaultModel)
	baseURL := firstNonEmpty(cfg.BaseURL, p.baseURL)

	build := func(model string) engine.ModelClient {
		if p.anthropic {
			return NewAnthropicClient(key, model)
		}
		return NewOpenAIClient(key, model, baseURL)
	}

	client := build(model)
	if cfg.FallbackModel != "" && cfg.FallbackModel != model {
		client = &FallbackClient{
			Primary:       client,
			PrimaryModel:  model,
			Fallback:      build(cfg.FallbackModel),
			FallbackModel: cfg.FallbackModel,
		}
	}
	return client, model, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
