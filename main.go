package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/goccy/go-json"
	"github.com/iosmockgps/mockgps-agent/agent"
	"github.com/iosmockgps/mockgps-agent/config"
	"github.com/iosmockgps/mockgps-agent/patcher"
	"github.com/iosmockgps/mockgps-agent/toolkit"
	log "github.com/sirupsen/logrus"
)

// JSONdisabled enables or disables output in JSON format
var JSONdisabled = false

const version = "local-build"

func usage() string {
	return fmt.Sprintf(`mockgps-agent %s

Usage:
  mockgps-agent [serve] [options]
  mockgps-agent patch [options]
  mockgps-agent version [options]
  mockgps-agent -h | --help

Options:
  -v --verbose         Enable Debug Logging.
  -t --trace           Enable Trace Logging (dump every message).
  --nojson             Disable JSON output.
  -c --config=<file>   TOML config file.
  --env=<file>         File with MOCKGPS_* environment variables [default: .env].
  --host=<host>        Interface to listen on, overrides the config.
  --port=<port>        Port to listen on, overrides the config.
  -h --help            Show this screen.

The commands work as following:
   mockgps-agent [serve]     Patches pymobiledevice3, starts the device tunnel and serves the HTTP API.
   mockgps-agent patch       Only applies the developer script patch and prints the outcome.
   mockgps-agent version     Prints the version.

  `, version)
}

func main() {
	Main()
}

// Main Exports main for testing
func Main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpOnly}
	arguments, err := parser.ParseArgs(usage(), argv, "")
	if err != nil {
		return 2
	}
	if arguments == nil {
		// -h printed the usage
		return 0
	}

	if b, _ := arguments.Bool("version"); b {
		printVersion(arguments)
		return 0
	}

	cfg, err := loadConfig(arguments)
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		return 1
	}
	logFile, err := initLogging(cfg.Log, arguments)
	if err != nil {
		log.WithError(err).Error("failed setting up logging")
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if b, _ := arguments.Bool("patch"); b {
		return runPatch(cfg)
	}

	log.WithFields(log.Fields{"args": argv, "version": version}).Info("starting mockgps-agent")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waitForSignal(cancel)
	if err := agent.Run(ctx, cfg, version); err != nil {
		log.WithError(err).Error("agent failed")
		return 1
	}
	return 0
}

// loadConfig reads the config file and environment and applies command line overrides.
func loadConfig(arguments docopt.Opts) (config.Config, error) {
	path, _ := arguments.String("--config")
	envFile, _ := arguments.String("--env")
	cfg, err := config.Load(path, envFile)
	if err != nil {
		return config.Config{}, err
	}
	if host, _ := arguments.String("--host"); host != "" {
		cfg.Server.Host = host
	}
	if portText, _ := arguments.String("--port"); portText != "" {
		port, err := strconv.Atoi(portText)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid --port %q: %w", portText, err)
		}
		cfg.Server.Port = port
	}
	return cfg, cfg.Validate()
}

// initLogging applies level, format and log file. The returned file, if any, must be closed
// by the caller.
func initLogging(cfg config.LogConfig, arguments docopt.Opts) (io.Closer, error) {
	disableJSON, _ := arguments.Bool("--nojson")
	JSONdisabled = disableJSON || !cfg.JSON
	if JSONdisabled {
		log.SetFormatter(&log.TextFormatter{})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	if trace, _ := arguments.Bool("--trace"); trace {
		log.Info("Set Trace mode")
		log.SetLevel(log.TraceLevel)
	} else if verbose, _ := arguments.Bool("--verbose"); verbose {
		log.Info("Set Debug mode")
		log.SetLevel(log.DebugLevel)
	}

	if cfg.File == "" {
		return nil, nil
	}
	logFile, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	return logFile, nil
}

func runPatch(cfg config.Config) int {
	p, err := patcher.New(toolkit.ExecRunner{}, cfg.Toolkit.Python, cfg.Patch.ScriptPath, cfg.Patch.VersionConstraint)
	if err != nil {
		log.WithError(err).Error("invalid patch configuration")
		return 1
	}
	ctx := context.Background()
	if timeout := cfg.Gateway.CommandTimeout.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	status := p.Ensure(ctx)
	printPatchStatus(status)
	if status.Outcome == patcher.OutcomeFailed {
		return 1
	}
	return 0
}

func printPatchStatus(status patcher.Status) {
	if JSONdisabled {
		fmt.Println(status.String())
		return
	}
	result := map[string]interface{}{
		"outcome": status.Outcome.String(),
		"path":    status.Path,
		"version": status.Version,
	}
	if status.Err != nil {
		result["error"] = status.Err.Error()
	}
	fmt.Println(convertToJSONString(result))
}

func printVersion(arguments docopt.Opts) {
	if disableJSON, _ := arguments.Bool("--nojson"); disableJSON {
		fmt.Println(version)
		return
	}
	fmt.Println(convertToJSONString(map[string]interface{}{"version": version}))
}

func waitForSignal(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.Infof("os signal:%s received, closing..", sig)
		cancel()
	}()
}

func convertToJSONString(data interface{}) string {
	b, err := json.Marshal(data)
	if err != nil {
		fmt.Println(err)
		return ""
	}
	return string(b)
}
