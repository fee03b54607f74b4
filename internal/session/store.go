package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Load for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Store handles persistence of runs.
type Store struct {
	basePath string
}

// NewStore creates a store rooted at dir, typically config.SessionsDir().
func NewStore(dir string) *Store {
	return &Store{basePath: dir}
}

// RepoHash generates a consistent hash for a repository path.
// This is used to scope runs to a specific project.
func (s *Store) RepoHash(repoPath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(repoPath)))
	return hex.EncodeToString(hash[:])[:12]
}

// Save persists a run, assigning an id on first save.
func (s *Store) Save(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.RepoHash == "" {
		run.RepoHash = s.RepoHash(run.RepoPath)
	}
	run.UpdatedAt = time.Now().UTC()

	dir := filepath.Join(s.basePath, run.RepoHash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	// Atomic replace.
	final := filepath.Join(dir, run.ID+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("write run file: %w", err)
	}
	return nil
}

// Load retrieves a specific run.
func (s *Store) Load(id, repoPath string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(s.basePath, s.RepoHash(repoPath), id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

// List returns all runs for a given repository, newest first.
func (s *Store) List(repoPath string) ([]RunMeta, error) {
	dir := filepath.Join(s.basePath, s.RepoHash(repoPath))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []RunMeta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list run directory: %w", err)
	}

	runs := make([]RunMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		runs = append(runs, RunMeta{
			ID:         run.ID,
			Title:      run.Title,
			StopReason: run.Outcome.StopReason,
			CreatedAt:  run.CreatedAt,
			UpdatedAt:  run.UpdatedAt,
			Summary:    run.Summary,
		})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].UpdatedAt.After(runs[j].UpdatedAt)
	})
	return runs, nil
}
