// Package prompts holds the versioned system prompts given to the model.
package prompts

// Version identifies one revision of a prompt. Versions compare as strings.
type Version string

// V1 is the first revision.
const V1 Version = "1.0.0"

// Prompt is a template with {{name}} placeholders filled by a Builder.
type Prompt struct {
	ID          string
	Version     Version
	Content     string
	Description string
	Deprecated  bool
}
