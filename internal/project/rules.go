// Package project reads per-repository agent customisation.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// Dir is the per-repository directory for autocoder files.
	Dir = ".autocoder"
	// RulesFile is the name of the custom rules file inside Dir.
	RulesFile = "rules"
)

// RulesPath returns the location of the repository's rules file.
func RulesPath(repoRoot string) string {
	return filepath.Join(repoRoot, Dir, RulesFile)
}

// LoadRules reads custom agent rules for the repository. A missing file
// yields an empty string and no error.
func LoadRules(repoRoot string) (string, error) {
	data, err := os.ReadFile(RulesPath(repoRoot))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read rules file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
