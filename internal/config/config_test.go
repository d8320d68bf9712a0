package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fedircd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMainServerAppliesDefaults(t *testing.T) {
	path := writeTemp(t, `
server_name = "hub.example.org"
address = "0.0.0.0:6667"
role = "main"
users_file_path = "/var/lib/fedircd/users.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.IdleTimeoutSeconds)
	assert.Equal(t, 10, cfg.MaxChannelsPerUser)
	assert.Equal(t, 4096, cfg.FileTransferChunkSize)
}

func TestLoadSecondaryRequiresMainAddress(t *testing.T) {
	path := writeTemp(t, `
server_name = "leaf.example.org"
address = "0.0.0.0:6667"
role = "secondary"
main_server_name = "hub.example.org"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingAddress(t *testing.T) {
	path := writeTemp(t, `
server_name = "hub.example.org"
role = "main"
users_file_path = "/var/lib/fedircd/users.db"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadLinksAndAmbientSections(t *testing.T) {
	path := writeTemp(t, `
server_name = "hub.example.org"
address = "0.0.0.0:6667"
role = "main"
users_file_path = "/var/lib/fedircd/users.db"

[[links]]
name = "leaf.example.org"
address = "leaf.example.org:6667"
password = "hunter2"

[log]
level = "debug"
format = "text"

[metrics]
enabled = true
address = "127.0.0.1:9100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Links, 1)
	assert.Equal(t, "leaf.example.org", cfg.Links[0].Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
}
