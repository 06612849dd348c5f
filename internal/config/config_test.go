package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, cfg.PairingWindow)
	assert.Equal(t, 100, cfg.ScanPageSize)
	assert.Equal(t, 200, cfg.ScanDefaultLimit)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "Unknown", cfg.DefaultAuthor)
	assert.Equal(t, "Tamil Novel", cfg.DefaultCategory)
	assert.Equal(t, 5, cfg.TopDefault)
}

func TestLoad_WithConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	configPath := filepath.Join(dir, "config.yaml")

	content := `
app_id: 12345
app_hash: abc
bot_token: "1:xyz"
admin_ids: [11, 22]
pairing_window: 2m
scan_page_size: 500
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 12345, cfg.AppID)
	assert.Equal(t, []int64{11, 22}, cfg.AdminIDs)
	assert.Equal(t, 2*time.Minute, cfg.PairingWindow)
	assert.Equal(t, MaxPageSize, cfg.ScanPageSize)
	assert.NoError(t, cfg.ValidateTransport())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("top_default: 3\n"), 0o644))

	t.Setenv("NOVELBOT_TOP_DEFAULT", "7")
	t.Setenv("NOVELBOT_ADMIN_IDS", "5,6")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.TopDefault)
	assert.Equal(t, []int64{5, 6}, cfg.AdminIDs)
}

func TestValidateTransport_Missing(t *testing.T) {
	cfg := &Config{AppHash: "x"}

	err := cfg.ValidateTransport()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app_id")
	assert.Contains(t, err.Error(), "bot_token")
	assert.NotContains(t, err.Error(), "app_hash")
}

func TestLoad_ZeroSessionDurationsFallBack(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")
	t.Setenv("NOVELBOT_SESSION_TTL", "0s")
	t.Setenv("NOVELBOT_SESSION_SWEEP_INTERVAL", "-5s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, time.Minute, cfg.SessionSweepInterval)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
