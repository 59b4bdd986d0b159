package filestore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "uploads"), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestStore_CreateUsesRestrictedPermissions(t *testing.T) {
	s := newTestStore(t)

	dirInfo, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	h, err := s.Create()
	require.NoError(t, err)
	defer s.Destroy(h)

	info, err := os.Stat(h.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_CreateGivesUniquePaths(t *testing.T) {
	s := newTestStore(t)

	h1, err := s.Create()
	require.NoError(t, err)
	h2, err := s.Create()
	require.NoError(t, err)
	defer s.Destroy(h1)
	defer s.Destroy(h2)

	assert.NotEqual(t, h1.Path(), h2.Path())
}

func TestHandle_WritePersistsContent(t *testing.T) {
	s := newTestStore(t)

	h, err := s.Create()
	require.NoError(t, err)
	defer s.Destroy(h)

	content := []byte("uploaded audio bytes")
	n, err := h.Write(bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)

	got, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestStore_DestroyRemovesFile(t *testing.T) {
	s := newTestStore(t)

	h, err := s.Create()
	require.NoError(t, err)
	_, err = h.Write(bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	s.Destroy(h)

	_, err = os.Stat(h.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestStore_DestroyIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	h, err := s.Create()
	require.NoError(t, err)

	s.Destroy(h)
	s.Destroy(h) // second destroy is a no-op
	s.Destroy(nil)

	// Destroying a handle whose path vanished out from under us is also fine.
	h2, err := s.Create()
	require.NoError(t, err)
	require.NoError(t, os.Remove(h2.Path()))
	s.Destroy(h2)
}
