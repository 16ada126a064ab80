package assets

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndOpen(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, "")

	url, err := fs.Put("s1", "ship", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/assets/s1/ship.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "s1", "ship.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	r, err := fs.Open("s1", "ship")
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(got))
}

func TestOpenAcceptsExtension(t *testing.T) {
	fs := NewFileStore(t.TempDir(), "")
	_, err := fs.Put("s1", "rock", []byte("x"))
	require.NoError(t, err)

	r, err := fs.Open("s1", "rock.png")
	require.NoError(t, err)
	r.Close()
}

func TestBaseURLPrefix(t *testing.T) {
	fs := NewFileStore(t.TempDir(), "http://localhost:8080/")
	url, err := fs.Put("s1", "ship", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/assets/s1/ship.png", url)
}

func TestRejectsTraversalNames(t *testing.T) {
	fs := NewFileStore(t.TempDir(), "")
	for _, name := range []string{"", "../escape", "a/b", "a\\b", ".."} {
		_, err := fs.Put("s1", name, []byte("x"))
		assert.Error(t, err, "name %q should be rejected", name)
	}
}

func TestOpenRejectsTraversalSessionIDs(t *testing.T) {
	fs := NewFileStore(t.TempDir(), "")
	for _, id := range []string{"", "..", "../s1", "a/b"} {
		_, err := fs.Open(id, "ship")
		assert.Error(t, err, "session id %q should be rejected", id)
	}
}
