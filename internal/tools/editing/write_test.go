package editing

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
	"github.com/ChamsBouzaiene/autocoder/internal/tools/filesystem"
)

var osfs = filesystem.NewOSFileSystem()

func decodeWrite(t *testing.T, res engine.ToolResult) writeResult {
	t.Helper()
	require.True(t, res.Success, res.Error)
	var out writeResult
	require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
	return out
}

func TestWriteCreate(t *testing.T) {
	dir := t.TempDir()
	res, err := write(osfs, dir, "new/dir/test.txt", "Hello World")
	require.NoError(t, err)
	assert.Equal(t, writeCreated, decodeWrite(t, res).Status)

	got, err := os.ReadFile(filepath.Join(dir, "new/dir/test.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello World", string(got))
}

func TestWriteOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.txt"), []byte("Initial"), 0o644))

	res, err := write(osfs, dir, "test.txt", "Overwritten\nagain")
	require.NoError(t, err)
	out := decodeWrite(t, res)
	assert.Equal(t, writeOverwritten, out.Status)
	assert.Equal(t, 2, out.Lines)
}

func TestWriteSkipsIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.txt"), []byte("Same"), 0o644))

	res, err := write(osfs, dir, "test.txt", "Same")
	require.NoError(t, err)
	assert.Equal(t, writeSkipped, decodeWrite(t, res).Status)
}

func TestWriteRejects(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "pkg.go"), 0o755))

	for _, path := range []string{"image.png", "../escape.txt", "pkg.go"} {
		res, err := write(osfs, dir, path, "x")
		require.NoError(t, err)
		assert.False(t, res.Success, path)
	}
	_, err := os.Stat(filepath.Join(dir, "image.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
