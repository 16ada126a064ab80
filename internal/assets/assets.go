// Package assets stores generated images and hands back stable URLs for the
// placeholder substitution pass.
package assets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gamesmith/internal/logging"
)

// Store saves generated asset bytes and resolves them to URLs the assembled
// document can reference.
type Store interface {
	// Put saves an asset under a session and returns its serving URL.
	Put(sessionID, name string, data []byte) (string, error)
	// Open returns a reader for a stored asset.
	Open(sessionID, name string) (io.ReadCloser, error)
}

// FileStore keeps assets on disk at <root>/<session>/<name>.png and serves
// them at <base>/assets/<session>/<name>.png. An empty base yields relative
// URLs, which is what the preview iframe wants when the API serves both.
type FileStore struct {
	root string
	base string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir, baseURL string) *FileStore {
	return &FileStore{root: dir, base: strings.TrimSuffix(baseURL, "/")}
}

// Put saves an asset under a session and returns its serving URL.
func (f *FileStore) Put(sessionID, name string, data []byte) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(f.root, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create asset directory: %w", err)
	}
	path := filepath.Join(dir, clean+".png")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write asset %s: %w", clean, err)
	}
	logging.ImagesDebug("Stored asset %s for session %s (%d bytes)", clean, sessionID, len(data))
	return fmt.Sprintf("%s/assets/%s/%s.png", f.base, sessionID, clean), nil
}

// Open returns a reader for a stored asset. The session id is taken from
// the request path, so it gets the same escape check as the name.
func (f *FileStore) Open(sessionID, name string) (io.ReadCloser, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, "/\\") || strings.Contains(sessionID, "..") {
		return nil, fmt.Errorf("invalid session id %q", sessionID)
	}
	clean, err := cleanName(strings.TrimSuffix(name, ".png"))
	if err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(f.root, sessionID, clean+".png"))
}

// cleanName rejects names that could escape the session directory.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("asset name is empty")
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", fmt.Errorf("asset name %q contains path separators", name)
	}
	return name, nil
}
