package prompts

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{[a-z_]+\}\}`)

// Builder renders a prompt with extra sections and variable values.
type Builder struct {
	sections []string
	vars     map[string]string
}

// NewBuilder starts from the content of base.
func NewBuilder(base *Prompt) *Builder {
	return &Builder{sections: []string{base.Content}, vars: map[string]string{}}
}

// Section appends text as its own paragraph. Blank text is skipped.
func (b *Builder) Section(text string) *Builder {
	if strings.TrimSpace(text) != "" {
		b.sections = append(b.sections, text)
	}
	return b
}

// Set gives {{key}} a value.
func (b *Builder) Set(key, value string) *Builder {
	b.vars[key] = value
	return b
}

// Build fails if any placeholder is left unfilled.
func (b *Builder) Build() (string, error) {
	out := strings.Join(b.sections, "\n\n")
	for k, v := range b.vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	if missing := placeholder.FindString(out); missing != "" {
		return "", fmt.Errorf("prompt variable %s not set", missing)
	}
	return out, nil
}
