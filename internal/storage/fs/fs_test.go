package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumd-dev/forumd/internal/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, filepath.Join(dir, "credentials.txt"))
	require.NoError(t, err)
	return s
}

func TestCredentialsRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	// Missing file is an empty registry.
	users, err := s.LoadUsers()
	require.NoError(t, err)
	assert.Empty(t, users)

	require.NoError(t, s.SaveUser(domain.User{Name: "alice", Credential: "pw1"}))
	require.NoError(t, s.SaveUser(domain.User{Name: "bob", Credential: "$2a$10$hash"}))

	users, err = s.LoadUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, domain.User{Name: "alice", Credential: "pw1"}, users[0])
	assert.Equal(t, domain.User{Name: "bob", Credential: "$2a$10$hash"}, users[1])
}

func TestLoadUsersMalformedLine(t *testing.T) {
	dir := t.TempDir()
	credPath := filepath.Join(dir, "credentials.txt")
	require.NoError(t, os.WriteFile(credPath, []byte("justonename\n"), 0644))

	s, err := New(dir, credPath)
	require.NoError(t, err)

	_, err = s.LoadUsers()
	assert.Error(t, err)
}

func TestSaveThreadFormat(t *testing.T) {
	s := newTestStorage(t)

	thread := &domain.Thread{
		Title: "general",
		Owner: "alice",
		Messages: []domain.Message{
			{Index: 1, Author: "alice", Text: "hello"},
			{Index: 2, Author: "bob", Text: "hi: there"},
		},
	}
	require.NoError(t, s.SaveThread(thread))

	raw, err := os.ReadFile(filepath.Join(s.rootPath, "general"))
	require.NoError(t, err)
	assert.Equal(t, "alice\n1 alice: hello\n2 bob: hi: there\n", string(raw))

	require.NoError(t, s.DeleteThread("general"))
	_, err = os.Stat(filepath.Join(s.rootPath, "general"))
	assert.True(t, os.IsNotExist(err))

	// Deleting an already-deleted thread is not an error.
	assert.NoError(t, s.DeleteThread("general"))
}

func TestAttachmentRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	att := &domain.Attachment{
		Thread: "general",
		Name:   "report.txt",
		Size:   4,
		Data:   []byte("data"),
	}
	require.NoError(t, s.SaveAttachment(att))

	raw, err := os.ReadFile(filepath.Join(s.rootPath, "general-report.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), raw)

	require.NoError(t, s.DeleteAttachment("general", "report.txt"))
	_, err = os.Stat(filepath.Join(s.rootPath, "general-report.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestSafeNameStaysInRoot(t *testing.T) {
	s := newTestStorage(t)

	thread := &domain.Thread{Title: "../escape", Owner: "alice"}
	require.NoError(t, s.SaveThread(thread))

	// The file lands inside the root, not beside it.
	entries, err := os.ReadDir(s.rootPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "escape", entries[0].Name())
}
