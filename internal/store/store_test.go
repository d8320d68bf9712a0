package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMainServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.conf")
	require.NoError(t, os.WriteFile(path, []byte(
		"S;hub.example.org;0.0.0.0:6667;none;/var/lib/fedircd/users.db\n"+
			"A;hunter2;alice\n",
	), 0o600))

	fs := NewFileStore()
	cfg, admins, err := fs.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "hub.example.org", cfg.ServerName)
	assert.False(t, cfg.Secondary)
	assert.Equal(t, "none", cfg.MainServerOrNone)
	require.Len(t, admins, 1)
	assert.Equal(t, "alice", admins[0].Nickname)
}

func TestLoadConfigSecondaryServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaf.conf")
	require.NoError(t, os.WriteFile(path, []byte(
		"S;leaf.example.org;0.0.0.0:6667;hub.example.org;hub.example.org:6667\n",
	), 0o600))

	fs := NewFileStore()
	cfg, _, err := fs.LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Secondary)
	assert.Equal(t, "hub.example.org", cfg.MainName)
	assert.Equal(t, "hub.example.org:6667", cfg.MainAddress)
}

func TestLoadConfigRejectsUnknownTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	require.NoError(t, os.WriteFile(path, []byte("X;nonsense\n"), 0o600))

	fs := NewFileStore()
	_, _, err := fs.LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveUsersThenLoadUsersRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	fs := NewFileStore()

	want := []PersistedUser{
		{Nickname: "alice", Address: "1.2.3.4", Username: "alice", RealName: "Alice A", Server: "hub.example.org", Password: "hash1"},
		{Nickname: "bob", Address: "5.6.7.8", Username: "bob", RealName: "Bob B", Server: "hub.example.org", Password: "hash2"},
	}

	require.NoError(t, fs.SaveUsers(path, want))

	got, err := fs.LoadUsers(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadUsersMissingFileReturnsEmpty(t *testing.T) {
	fs := NewFileStore()
	got, err := fs.LoadUsers(filepath.Join(t.TempDir(), "missing.db"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
