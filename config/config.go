// Package config loads the agent configuration. Values are applied in this order, later
// ones win: built in defaults, the TOML config file, the .env file and process environment
// (MOCKGPS_*), and finally command line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix of all environment variables read by the agent.
const EnvPrefix = "MOCKGPS_"

// Duration is a time.Duration that reads and writes as "5s", "1m30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Toolkit   ToolkitConfig   `toml:"toolkit"`
	Tunnel    TunnelConfig    `toml:"tunnel"`
	Patch     PatchConfig     `toml:"patch"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Execute   ExecuteConfig   `toml:"execute"`
	Discovery DiscoveryConfig `toml:"discovery"`
}

type ServerConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// Address returns host:port for net.Listen.
func (s ServerConfig) Address() string {
	host := s.Host
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(s.Port)
}

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
	// File additionally receives all log output if set.
	File string `toml:"file"`
}

type ToolkitConfig struct {
	Binary string `toml:"binary"`
	Python string `toml:"python"`
}

type TunnelConfig struct {
	Command      []string `toml:"command"`
	StartTimeout Duration `toml:"start_timeout"`
	StopGrace    Duration `toml:"stop_grace"`
	RestartDelay Duration `toml:"restart_delay"`
}

type PatchConfig struct {
	Enabled bool `toml:"enabled"`
	// ScriptPath skips the pip lookup if set.
	ScriptPath        string `toml:"script_path"`
	VersionConstraint string `toml:"version_constraint"`
	Watch             bool   `toml:"watch"`
}

type GatewayConfig struct {
	CommandTimeout Duration `toml:"command_timeout"`
	// TunnelWait bounds how long a location request waits for a pending tunnel.
	TunnelWait               Duration `toml:"tunnel_wait"`
	MaxConcurrentDeviceCalls int      `toml:"max_concurrent_device_calls"`
}

type ExecuteConfig struct {
	// AllowedCommands lists executables /execute may run, matched exactly against argv[0].
	// Interpreters run arbitrary code and are only allowed when listed explicitly.
	AllowedCommands []string `toml:"allowed_commands"`
	AllowAll        bool     `toml:"allow_all"`
	RatePerSecond   float64  `toml:"rate_per_second"`
	Burst           int      `toml:"burst"`
}

type DiscoveryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Instance string `toml:"instance"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 5000, Metrics: true},
		Log:    LogConfig{Level: "info", JSON: true},
		Toolkit: ToolkitConfig{
			Binary: "pymobiledevice3",
			Python: "python3",
		},
		Tunnel: TunnelConfig{
			Command:      []string{"python3", "-m", "pymobiledevice3", "remote", "tunneld"},
			StartTimeout: Duration{60 * time.Second},
			StopGrace:    Duration{5 * time.Second},
		},
		Patch: PatchConfig{
			Enabled:           true,
			VersionConstraint: ">= 4.14.16",
		},
		Gateway: GatewayConfig{
			CommandTimeout:           Duration{60 * time.Second},
			TunnelWait:               Duration{5 * time.Second},
			MaxConcurrentDeviceCalls: 1,
		},
		Execute: ExecuteConfig{
			AllowedCommands: []string{"pymobiledevice3"},
			RatePerSecond:   2,
			Burst:           4,
		},
		Discovery: DiscoveryConfig{Instance: "mockgps-agent"},
	}
}

// Load builds the configuration from the defaults, the TOML file at path and the
// environment. Both path and envFile are optional. A missing envFile is not an error.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("Load: failed reading config: %w", err)
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("Load: failed parsing %s: %w", path, err)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("Load: failed reading %s: %w", envFile, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	str("HOST", &cfg.Server.Host)
	if v, ok := os.LookupEnv(EnvPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPORT: %w", EnvPrefix, err))
		} else {
			cfg.Server.Port = port
		}
	}
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)
	str("TOOLKIT_BINARY", &cfg.Toolkit.Binary)
	str("PYTHON", &cfg.Toolkit.Python)
	str("SCRIPT_PATH", &cfg.Patch.ScriptPath)
	boolean("PATCH", &cfg.Patch.Enabled)
	boolean("EXECUTE_ALLOW_ALL", &cfg.Execute.AllowAll)
	boolean("DISCOVERY", &cfg.Discovery.Enabled)
	boolean("METRICS", &cfg.Server.Metrics)
	if v, ok := os.LookupEnv(EnvPrefix + "EXECUTE_ALLOWED_COMMANDS"); ok {
		cfg.Execute.AllowedCommands = splitList(v)
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if len(c.Tunnel.Command) == 0 {
		return errors.New("tunnel command must not be empty")
	}
	if c.Toolkit.Binary == "" {
		return errors.New("toolkit binary must not be empty")
	}
	if c.Gateway.MaxConcurrentDeviceCalls < 0 {
		return errors.New("max_concurrent_device_calls must not be negative")
	}
	if c.Execute.RatePerSecond < 0 {
		return errors.New("execute rate_per_second must not be negative")
	}
	return nil
}
