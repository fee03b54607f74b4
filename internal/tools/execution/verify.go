package execution

import (
	"context"
	"fmt"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

const verifyLines = 120

type commandFor func(ProjectType) (string, []string)

// verify runs the project's build or test command, chosen from the detected
// toolchain.
func verify(ctx context.Context, runner Runner, repoRoot, title string, pick commandFor) (engine.ToolResult, error) {
	typ := DetectProject(repoRoot)
	if typ == ProjectUnknown {
		return engine.Failed(title, "could not detect the project type (no go.mod, package.json, pyproject.toml, requirements.txt or Cargo.toml)"), nil
	}
	name, args := pick(typ)
	if name == "" {
		return engine.Succeeded(title, fmt.Sprintf("%s projects have no %s step", typ, title)), nil
	}

	res, err := execute(ctx, runner, repoRoot, name, args, 0, verifyLines)
	if err != nil {
		return res, err
	}
	if title == "run_tests" {
		res.Metadata = map[string]any{"passed": res.Success, "project": string(typ)}
	}
	return res, nil
}

// NewRunTestsTool runs the repository's test suite.
func NewRunTestsTool(runner Runner, repoRoot string) engine.Tool {
	return engine.Tool{
		Name:        "run_tests",
		Description: "Runs the repository's test suite with the command matching its toolchain (go test, npm test, pytest, cargo test).",
		SchemaJSON:  `{"type":"object","properties":{}}`,
		Fn: func(ctx context.Context, _ map[string]any) (engine.ToolResult, error) {
			return verify(ctx, runner, repoRoot, "run_tests", TestCommand)
		},
		Metadata: engine.ToolMetadata{Category: "execution", Tags: []string{"verification"}},
	}
}

// NewRunBuildTool builds the repository.
func NewRunBuildTool(runner Runner, repoRoot string) engine.Tool {
	return engine.Tool{
		Name:        "run_build",
		Description: "Builds the repository with the command matching its toolchain (go build, npm run build, cargo build).",
		SchemaJSON:  `{"type":"object","properties":{}}`,
		Fn: func(ctx context.Context, _ map[string]any) (engine.ToolResult, error) {
			return verify(ctx, runner, repoRoot, "run_build", BuildCommand)
		},
		Metadata: engine.ToolMetadata{Category: "execution", Tags: []string{"verification"}},
	}
}
