package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

// MockFileSystem is a mock implementation of the FileSystem interface.
type MockFileSystem struct {
	StatFunc      func(name string) (os.FileInfo, error)
	ReadFileFunc  func(name string) ([]byte, error)
	WriteFileFunc func(name string, data []byte, perm os.FileMode) error
	MkdirAllFunc  func(path string, perm os.FileMode) error
	RemoveFunc    func(name string) error
	ReadDirFunc   func(name string) ([]os.DirEntry, error)
	WalkDirFunc   func(root string, fn fs.WalkDirFunc) error
}

func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	if m.StatFunc != nil {
		return m.StatFunc(name)
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(name)
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(name, data, perm)
	}
	return nil
}

func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if m.MkdirAllFunc != nil {
		return m.MkdirAllFunc(path, perm)
	}
	return nil
}

func (m *MockFileSystem) Remove(name string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(name)
	}
	return nil
}

func (m *MockFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	if m.ReadDirFunc != nil {
		return m.ReadDirFunc(name)
	}
	return nil, nil
}

func (m *MockFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	if m.WalkDirFunc != nil {
		return m.WalkDirFunc(root, fn)
	}
	return nil
}

type mockFileInfo struct {
	name  string
	isDir bool
}

func (m mockFileInfo) Name() string       { return m.name }
func (m mockFileInfo) Size() int64        { return 0 }
func (m mockFileInfo) Mode() os.FileMode  { return 0 }
func (m mockFileInfo) ModTime() time.Time { return time.Now() }
func (m mockFileInfo) IsDir() bool        { return m.isDir }
func (m mockFileInfo) Sys() any           { return nil }

type mockDirEntry struct {
	name  string
	isDir bool
}

func (m mockDirEntry) Name() string               { return m.name }
func (m mockDirEntry) IsDir() bool                { return m.isDir }
func (m mockDirEntry) Type() os.FileMode          { return 0 }
func (m mockDirEntry) Info() (os.FileInfo, error) { return mockFileInfo(m), nil }

func decode[T any](t *testing.T, res engine.ToolResult) T {
	t.Helper()
	require.True(t, res.Success, res.Error)
	var v T
	require.NoError(t, json.Unmarshal([]byte(res.Output), &v))
	return v
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "relative", path: "a/b.go", want: "/repo/a/b.go"},
		{name: "root", path: "", want: "/repo"},
		{name: "dot segments", path: "a/../b.go", want: "/repo/b.go"},
		{name: "absolute inside", path: "/repo/c.go", want: "/repo/c.go"},
		{name: "traversal", path: "../secret.txt", wantErr: true},
		{name: "sibling prefix", path: "/repository/x", wantErr: true},
		{name: "absolute outside", path: "/etc/passwd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve("/repo", tt.path)
			if tt.wantErr {
				assert.ErrorContains(t, err, "outside repository root")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		mockContent string
		mockErr     error
		wantSuccess bool
		wantType    string
	}{
		{name: "small file", path: "test.txt", mockContent: "hello world", wantSuccess: true, wantType: "full"},
		{name: "missing file", path: "missing.txt", mockErr: os.ErrNotExist},
		{name: "path traversal", path: "../secret.txt"},
		{name: "large go file", path: "big.go", mockContent: "package big\n" + strings.Repeat("// x\n", 450) + "func Big() {}\n", wantSuccess: true, wantType: "outline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockFileSystem{
				ReadFileFunc: func(name string) ([]byte, error) {
					if tt.mockErr != nil {
						return nil, tt.mockErr
					}
					return []byte(tt.mockContent), nil
				},
			}
			res, err := readFile(mock, "/repo", tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			if !tt.wantSuccess {
				return
			}
			out := decode[readResult](t, res)
			assert.Equal(t, tt.wantType, out.ContentType)
			if tt.wantType == "outline" {
				assert.Contains(t, out.Content, "package big")
				assert.Contains(t, out.Content, "func Big() {}")
				assert.NotContains(t, out.Content, "// x")
			}
		})
	}
}

func TestReadFileWarnsOnMediumFiles(t *testing.T) {
	mock := &MockFileSystem{ReadFileFunc: func(string) ([]byte, error) {
		return []byte(strings.Repeat("line\n", 250)), nil
	}}
	res, err := readFile(mock, "/repo", "notes.txt")
	require.NoError(t, err)
	out := decode[readResult](t, res)
	assert.Equal(t, "full", out.ContentType)
	assert.True(t, strings.HasPrefix(out.Content, "WARNING:"))
	assert.Equal(t, 251, out.LineCount)
}

func TestReadSpan(t *testing.T) {
	var content strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&content, "line %d\n", i)
	}
	mock := &MockFileSystem{ReadFileFunc: func(string) ([]byte, error) {
		return []byte(strings.TrimSuffix(content.String(), "\n")), nil
	}}

	res, err := readSpan(mock, "/repo", "a.txt", 4, 2)
	require.NoError(t, err)
	out := decode[spanResult](t, res)
	assert.Equal(t, 2, out.Start)
	assert.Equal(t, 4, out.End)
	assert.Contains(t, out.Source, "line 3")
	assert.NotContains(t, out.Source, "line 5")

	res, err = readSpan(mock, "/repo", "a.txt", 8, 99)
	require.NoError(t, err)
	assert.Equal(t, 10, decode[spanResult](t, res).End)

	res, err = readSpan(mock, "/repo", "a.txt", 50, 60)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"a.go", "sub/b.go", "sub/deep/c.go", "node_modules/x.js", ".git/HEAD", "gen/out.txt"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.Dir(p)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, p), []byte("x"), 0o644))
	}
	fsys := NewOSFileSystem()

	t.Run("flat", func(t *testing.T) {
		res, err := listFiles(fsys, root, listOptions{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a.go", "gen", "sub"}, decode[listResult](t, res).Files)
	})

	t.Run("recursive with default ignores", func(t *testing.T) {
		res, err := listFiles(fsys, root, listOptions{Recursive: true, MaxDepth: -1})
		require.NoError(t, err)
		files := decode[listResult](t, res).Files
		assert.Contains(t, files, "sub/deep/c.go")
		for _, f := range files {
			assert.NotContains(t, f, "node_modules")
			assert.NotContains(t, f, ".git")
		}
	})

	t.Run("depth and custom ignores", func(t *testing.T) {
		res, err := listFiles(fsys, root, listOptions{Recursive: true, MaxDepth: 0, Ignore: []string{"gen", ".git", "node_modules"}})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a.go", "sub"}, decode[listResult](t, res).Files)
	})

	t.Run("limit", func(t *testing.T) {
		res, err := listFiles(fsys, root, listOptions{Recursive: true, MaxDepth: -1, Limit: 2})
		require.NoError(t, err)
		out := decode[listResult](t, res)
		assert.Len(t, out.Files, 2)
		assert.True(t, out.Truncated)
	})

	t.Run("outside root", func(t *testing.T) {
		res, err := listFiles(fsys, root, listOptions{Path: "../"})
		require.NoError(t, err)
		assert.False(t, res.Success)
	})
}

func TestListFilesUsesReadDir(t *testing.T) {
	mock := &MockFileSystem{ReadDirFunc: func(name string) ([]os.DirEntry, error) {
		assert.Equal(t, "/repo/pkg", name)
		return []os.DirEntry{mockDirEntry{name: "a.go"}, mockDirEntry{name: "node_modules", isDir: true}}, nil
	}}
	res, err := listFiles(mock, "/repo", listOptions{Path: "pkg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/a.go"}, decode[listResult](t, res).Files)
}

func TestWriteFile(t *testing.T) {
	var wrote string
	var madeDir string
	mock := &MockFileSystem{
		MkdirAllFunc: func(path string, _ os.FileMode) error { madeDir = path; return nil },
		WriteFileFunc: func(name string, data []byte, _ os.FileMode) error {
			wrote = name + ":" + string(data)
			return nil
		},
	}
	res, err := writeFile(mock, "/repo", "dir/new.go", "package dir")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "/repo/dir", madeDir)
	assert.Equal(t, "/repo/dir/new.go:package dir", wrote)

	mock.WriteFileFunc = func(string, []byte, os.FileMode) error { return os.ErrPermission }
	_, err = writeFile(mock, "/repo", "x.go", "")
	assert.ErrorIs(t, err, os.ErrPermission)

	res, err = writeFile(mock, "/repo", "../x.go", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestDeleteFile(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		stat        func(string) (os.FileInfo, error)
		wantSuccess bool
		wantRemoved bool
	}{
		{
			name:        "existing file",
			path:        "a.go",
			stat:        func(string) (os.FileInfo, error) { return mockFileInfo{name: "a.go"}, nil },
			wantSuccess: true,
			wantRemoved: true,
		},
		{
			name:        "already gone",
			path:        "gone.go",
			stat:        func(string) (os.FileInfo, error) { return nil, os.ErrNotExist },
			wantSuccess: true,
		},
		{
			name: "directory",
			path: "dir",
			stat: func(string) (os.FileInfo, error) { return mockFileInfo{name: "dir", isDir: true}, nil },
		},
		{name: "empty path", path: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removed := false
			mock := &MockFileSystem{
				StatFunc:   tt.stat,
				RemoveFunc: func(string) error { removed = true; return nil },
			}
			res, err := deleteFile(mock, "/repo", tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantRemoved, removed)
		})
	}
}

func TestToolsDecodeArgs(t *testing.T) {
	root := t.TempDir()
	fsys := NewOSFileSystem()
	ctx := context.Background()

	res, err := NewWriteFileTool(fsys, root).Fn(ctx, map[string]any{"path": "x/y.txt", "content": "one\ntwo\nthree"})
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = NewReadSpanTool(fsys, root).Fn(ctx, map[string]any{"path": "x/y.txt", "start": float64(2), "end": float64(2)})
	require.NoError(t, err)
	assert.Contains(t, decode[spanResult](t, res).Source, "two")

	tool := NewReadFileTool(fsys, root)
	assert.True(t, tool.PlanMode)
	require.NoError(t, tool.ValidateArgs(map[string]any{"path": "x/y.txt"}))
	assert.Error(t, tool.ValidateArgs(map[string]any{}))
}
