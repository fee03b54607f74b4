package execution

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType identifies the toolchain of a repository.
type ProjectType string

const (
	ProjectGo      ProjectType = "go"
	ProjectNode    ProjectType = "node"
	ProjectPython  ProjectType = "python"
	ProjectRust    ProjectType = "rust"
	ProjectUnknown ProjectType = "unknown"
)

var manifests = []struct {
	file string
	typ  ProjectType
}{
	{"go.mod", ProjectGo},
	{"package.json", ProjectNode},
	{"pyproject.toml", ProjectPython},
	{"requirements.txt", ProjectPython},
	{"Cargo.toml", ProjectRust},
}

var extensionTypes = map[string]ProjectType{
	".go": ProjectGo,
	".ts": ProjectNode, ".tsx": ProjectNode, ".js": ProjectNode, ".jsx": ProjectNode,
	".py": ProjectPython,
	".rs": ProjectRust,
}

// DetectProject looks for a manifest in repoRoot and falls back to the
// dominant source extension when at least three files agree.
func DetectProject(repoRoot string) ProjectType {
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(repoRoot, m.file)); err == nil {
			return m.typ
		}
	}

	entries, err := os.ReadDir(repoRoot)
	if err != nil {
		return ProjectUnknown
	}
	counts := make(map[ProjectType]int)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if t, ok := extensionTypes[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			counts[t]++
		}
	}
	best, bestN := ProjectUnknown, 2
	for _, t := range []ProjectType{ProjectGo, ProjectNode, ProjectPython, ProjectRust} {
		if counts[t] > bestN {
			best, bestN = t, counts[t]
		}
	}
	return best
}

// BuildCommand returns the build invocation, or an empty name when the
// toolchain has no build step.
func BuildCommand(t ProjectType) (string, []string) {
	switch t {
	case ProjectGo:
		return "go", []string{"build", "./..."}
	case ProjectNode:
		return "npm", []string{"run", "build"}
	case ProjectRust:
		return "cargo", []string{"build"}
	}
	return "", nil
}

// TestCommand returns the test invocation for t.
func TestCommand(t ProjectType) (string, []string) {
	switch t {
	case ProjectGo:
		return "go", []string{"test", "./..."}
	case ProjectNode:
		return "npm", []string{"test"}
	case ProjectPython:
		return "pytest", nil
	case ProjectRust:
		return "cargo", []string{"test"}
	}
	return "", nil
}
