package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	config := Config{Host: "localhost", Port: 5432, User: "fern", Password: "secret", Name: "fern"}
	assert.Equal(t, "host=localhost port=5432 user=fern password=secret dbname=fern sslmode=disable", config.DSN())

	config.SSLMode = "require"
	assert.Contains(t, config.DSN(), "sslmode=require")
}

func TestGetLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_create_export_runs.up.sql",
		"000001_create_export_runs.down.sql",
		"000003_add_index.up.sql",
		"000002_add_counts.up.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}

	latest, err := getLatestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, latest)
}

func TestGetLatestVersionEmptyFolder(t *testing.T) {
	_, err := getLatestVersion(t.TempDir())
	assert.Error(t, err)
}

func TestSelectBuilderUsesPostgresPlaceholders(t *testing.T) {
	sb := NewSelectBuilder()
	sb.Select("id").From("export_runs").Where(sb.Equal("channel_id", 7))

	query, args := sb.Build()
	assert.Equal(t, "SELECT id FROM export_runs WHERE channel_id = $1", query)
	assert.Equal(t, []any{7}, args)
}
