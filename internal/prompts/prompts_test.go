package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLatest(t *testing.T) {
	r := NewRegistry()
	r.Register(&Prompt{ID: "p", Version: "1.0.0", Content: "one"})
	r.Register(&Prompt{ID: "p", Version: "2.0.0", Content: "two", Deprecated: true})
	r.Register(nil)

	p, err := r.Latest("p")
	require.NoError(t, err)
	assert.Equal(t, "one", p.Content)

	r.Register(&Prompt{ID: "q", Version: "1.0.0", Deprecated: true, Content: "old"})
	p, err = r.Latest("q")
	require.NoError(t, err)
	assert.Equal(t, "old", p.Content)

	_, err = r.Latest("missing")
	assert.Error(t, err)
	_, err = r.Lookup("p", "3.0.0")
	assert.Error(t, err)
	p, err = r.Lookup("p", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, "two", p.Content)
}

func TestBuilder(t *testing.T) {
	base := &Prompt{ID: "p", Version: V1, Content: "root={{repo_root}}"}

	out, err := NewBuilder(base).Set("repo_root", "/src").Section("  ").Section("extra").Build()
	require.NoError(t, err)
	assert.Equal(t, "root=/src\n\nextra", out)

	_, err = NewBuilder(base).Build()
	assert.ErrorContains(t, err, "{{repo_root}}")
}

func TestAgentSystemPrompt(t *testing.T) {
	out, err := AgentSystemPrompt("/work/app", "go", 2, "Use tabs.")
	require.NoError(t, err)
	assert.Contains(t, out, "Repository root: /work/app")
	assert.Contains(t, out, "without an approved plan: 2.")
	assert.NotContains(t, out, "{{")
	assert.Contains(t, out, "[PROJECT RULES]\nUse tabs.")

	out, err = AgentSystemPrompt("/work/app", "go", -1, "")
	require.NoError(t, err)
	assert.Contains(t, out, "without an approved plan: unlimited.")
	assert.NotContains(t, out, "PROJECT RULES")
}
