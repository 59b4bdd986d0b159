package filestore

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store creates uniquely named temporary files inside a restricted-access
// directory and guarantees best-effort deletion exactly once per handle.
// Uploaded content must never outlive the request that carried it.
type Store struct {
	dir string
	log zerolog.Logger
}

// New creates a store rooted at dir, creating it with owner-only
// permissions. An empty dir falls back to a service-owned subdirectory of
// the system temp location.
func New(dir string, log zerolog.Logger) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "lecturelens")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir, log: log}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

// Handle references one temporary file.
type Handle struct {
	path string

	mu        sync.Mutex
	file      *os.File
	destroyed bool
}

// Path returns the location of the temporary file.
func (h *Handle) Path() string {
	return h.path
}

// Create opens a new temporary file with a randomized name and owner-only
// permissions. The random name avoids collisions between concurrent
// requests and keeps the path unguessable.
func (s *Store) Create() (*Handle, error) {
	path := filepath.Join(s.dir, uuid.NewString()+".upload")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	return &Handle{path: path, file: f}, nil
}

// Write streams the uploaded bytes into the file and closes it.
func (h *Handle) Write(r io.Reader) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return 0, errors.New("filestore: handle already closed")
	}
	n, err := io.Copy(h.file, r)
	closeErr := h.file.Close()
	h.file = nil
	if err != nil {
		return n, err
	}
	return n, closeErr
}

// Destroy deletes the file behind the handle. It is idempotent: a second
// call, a nil handle, or an already-missing path are all no-ops. Deletion
// failures are logged, never returned, so privacy cleanup cannot mask a
// more specific error already on its way to the caller.
func (s *Store) Destroy(h *Handle) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.destroyed {
		return
	}
	h.destroyed = true

	if h.file != nil {
		_ = h.file.Close()
		h.file = nil
	}
	if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Error().Err(err).Str("path", h.path).Msg("Failed to delete temp file")
	}
}
