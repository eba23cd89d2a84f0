package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:5000", cfg.Server.Address())
	assert.Equal(t, []string{"python3", "-m", "pymobiledevice3", "remote", "tunneld"}, cfg.Tunnel.Command)
	assert.True(t, cfg.Patch.Enabled)
	assert.True(t, cfg.Server.Metrics)
	assert.False(t, cfg.Execute.AllowAll)
	assert.Equal(t, []string{"pymobiledevice3"}, cfg.Execute.AllowedCommands)
	assert.Equal(t, 5*time.Second, cfg.Gateway.TunnelWait.Duration)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
host = "127.0.0.1"
port = 5050

[tunnel]
start_timeout = "90s"
restart_delay = "3s"

[execute]
allowed_commands = ["echo", "printf", "pymobiledevice3", "uname"]
rate_per_second = 0.5
`), 0o644))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MOCKGPS_PORT=6000\nMOCKGPS_DISCOVERY=true\n"), 0o644))
	t.Setenv("MOCKGPS_LOG_LEVEL", "debug")
	t.Cleanup(func() {
		os.Unsetenv("MOCKGPS_PORT")
		os.Unsetenv("MOCKGPS_DISCOVERY")
	})

	cfg, err := Load(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Tunnel.StartTimeout.Duration)
	assert.Equal(t, 3*time.Second, cfg.Tunnel.RestartDelay.Duration)
	assert.Equal(t, 5*time.Second, cfg.Tunnel.StopGrace.Duration)
	assert.Equal(t, []string{"echo", "printf", "pymobiledevice3", "uname"}, cfg.Execute.AllowedCommands)
	assert.Equal(t, 0.5, cfg.Execute.RatePerSecond)
	assert.True(t, cfg.Discovery.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverridesAllowList(t *testing.T) {
	t.Setenv("MOCKGPS_EXECUTE_ALLOWED_COMMANDS", "echo, ls ,,")
	t.Setenv("MOCKGPS_EXECUTE_ALLOW_ALL", "1")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "ls"}, cfg.Execute.AllowedCommands)
	assert.True(t, cfg.Execute.AllowAll)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), "")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[tunnel]\nstart_timeout = \"soon\"\n"), 0o644))
	_, err = Load(path, "")
	assert.Error(t, err)

	t.Setenv("MOCKGPS_PORT", "http")
	_, err = Load("", "")
	assert.Error(t, err)

	t.Setenv("MOCKGPS_PORT", "70000")
	_, err = Load("", "")
	assert.Error(t, err)
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestAddressBracketsIPv6(t *testing.T) {
	assert.Equal(t, "[::]:5000", ServerConfig{Host: "::", Port: 5000}.Address())
}
