package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, argv ...string) docopt.Opts {
	t.Helper()
	if argv == nil {
		argv = []string{}
	}
	arguments, err := docopt.ParseArgs(usage(), argv, "")
	require.NoError(t, err)
	return arguments
}

func restoreLogging(t *testing.T) {
	level, formatter := log.GetLevel(), log.StandardLogger().Formatter
	t.Cleanup(func() {
		log.SetLevel(level)
		log.SetFormatter(formatter)
		log.SetOutput(os.Stderr)
		JSONdisabled = false
	})
}

func TestUsageParses(t *testing.T) {
	arguments := parse(t)
	serve, _ := arguments.Bool("serve")
	assert.False(t, serve)
	env, _ := arguments.String("--env")
	assert.Equal(t, ".env", env)

	arguments = parse(t, "patch", "-v")
	patch, _ := arguments.Bool("patch")
	assert.True(t, patch)
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	cfg, err := loadConfig(parse(t, "serve", "--host=127.0.0.1", "--port=6001", "--env="+env))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6001", cfg.Server.Address())

	_, err = loadConfig(parse(t, "--port=http", "--env="+env))
	assert.Error(t, err)
	_, err = loadConfig(parse(t, "--port=99999", "--env="+env))
	assert.Error(t, err)
}

func TestInitLogging(t *testing.T) {
	restoreLogging(t)
	env := filepath.Join(t.TempDir(), ".env")
	logPath := filepath.Join(t.TempDir(), "agent.log")

	cfg, err := loadConfig(parse(t, "--env="+env))
	require.NoError(t, err)
	cfg.Log.File = logPath
	closer, err := initLogging(cfg.Log, parse(t, "-v", "--nojson"))
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer.Close()
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.True(t, JSONdisabled)

	log.Info("written to the log file")
	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "written to the log file")

	cfg.Log.File = ""
	cfg.Log.Level = "loud"
	_, err = initLogging(cfg.Log, parse(t))
	assert.Error(t, err)
}

func TestPatchCommand(t *testing.T) {
	restoreLogging(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "developer.py")
	require.NoError(t, os.WriteFile(script, []byte("def dvt_simulate_location_set(lat, lon):\n    OSUTILS.wait_return()\n"), 0o644))
	t.Setenv("MOCKGPS_SCRIPT_PATH", script)

	assert.Equal(t, 0, run([]string{"patch", "--env=" + filepath.Join(dir, ".env")}))
	b, err := os.ReadFile(script)
	require.NoError(t, err)
	assert.Contains(t, string(b), "#OSUTILS.wait_return()")

	require.NoError(t, os.WriteFile(script, []byte("print('no anchor')\n"), 0o644))
	assert.Equal(t, 1, run([]string{"patch", "--nojson", "--env=" + filepath.Join(dir, ".env")}))
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, 0, run([]string{"version"}))
	assert.Equal(t, 0, run([]string{"version", "--nojson"}))
}

func TestHelpAndUsageErrors(t *testing.T) {
	assert.Equal(t, 0, run([]string{"-h"}))
	assert.Equal(t, 2, run([]string{"--bogus"}))
	assert.Equal(t, 2, run([]string{"serve", "extra"}))
}
