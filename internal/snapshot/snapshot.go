// Package snapshot captures file pre-images so mutations can be undone.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"
)

// DefaultMaxBytes bounds the size of a single captured file.
const DefaultMaxBytes = 10 * 1024 * 1024

// ErrTooLarge is returned when a file exceeds the capture limit.
var ErrTooLarge = errors.New("file too large to snapshot")

// FS is the subset of file system operations a Service needs.
type FS interface {
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Remove(name string) error
}

// FileState is the content of a file at capture time, or its absence.
type FileState struct {
	Path    string // as given by the caller
	AbsPath string
	Exists  bool
	Content []byte
	Mode    fs.FileMode
}

type osFS struct{}

func (osFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (osFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (osFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (osFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (osFS) Remove(name string) error {
	return os.Remove(name)
}

// Size returns a human readable size of the captured content.
func (s FileState) Size() string {
	return units.HumanSize(float64(len(s.Content)))
}

// Service captures and restores files below a root directory.
type Service struct {
	fs       FS
	root     string
	maxBytes int64
}

// New returns a Service rooted at root.
func New(fsys FS, root string) *Service {
	return &Service{fs: fsys, root: filepath.Clean(root), maxBytes: DefaultMaxBytes}
}

// NewOS returns a Service over the real file system.
func NewOS(root string) *Service {
	return New(osFS{}, root)
}

// WithMaxBytes sets the per-file capture limit.
func (s *Service) WithMaxBytes(n int64) *Service {
	s.maxBytes = n
	return s
}

func (s *Service) resolve(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, path)
	}
	abs = filepath.Clean(abs)
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside repository root", path)
	}
	return abs, nil
}

// Capture records the current content of path, or that it does not exist.
func (s *Service) Capture(path string) (FileState, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return FileState{}, err
	}
	st := FileState{Path: path, AbsPath: abs}

	info, err := s.fs.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return FileState{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return FileState{}, fmt.Errorf("%s is a directory", path)
	}
	if s.maxBytes > 0 && info.Size() > s.maxBytes {
		return FileState{}, fmt.Errorf("%w: %s is %s (limit %s)", ErrTooLarge, path,
			units.HumanSize(float64(info.Size())), units.HumanSize(float64(s.maxBytes)))
	}

	content, err := s.fs.ReadFile(abs)
	if err != nil {
		return FileState{}, fmt.Errorf("read %s: %w", path, err)
	}
	st.Exists = true
	st.Content = content
	st.Mode = info.Mode().Perm()
	slog.Debug("captured file state", "path", path, "size", st.Size())
	return st, nil
}

// Restore puts the file back to the captured state: content is rewritten
// when it existed, and the file is removed when it did not.
func (s *Service) Restore(st FileState) error {
	abs := st.AbsPath
	if abs == "" {
		var err error
		if abs, err = s.resolve(st.Path); err != nil {
			return err
		}
	}

	if !st.Exists {
		err := s.fs.Remove(abs)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", st.Path, err)
		}
		return nil
	}

	if err := s.fs.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", st.Path, err)
	}
	mode := st.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := s.fs.WriteFile(abs, st.Content, mode); err != nil {
		return fmt.Errorf("write %s: %w", st.Path, err)
	}
	return nil
}
