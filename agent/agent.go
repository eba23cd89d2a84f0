// Package agent assembles the mock GPS agent: it patches the toolkit, starts the device
// tunnel, serves the HTTP gateway and optionally announces itself over mDNS.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/iosmockgps/mockgps-agent/config"
	"github.com/iosmockgps/mockgps-agent/discovery"
	"github.com/iosmockgps/mockgps-agent/patcher"
	"github.com/iosmockgps/mockgps-agent/restapi/api"
	"github.com/iosmockgps/mockgps-agent/toolkit"
	"github.com/iosmockgps/mockgps-agent/tunnel"
	log "github.com/sirupsen/logrus"
)

// ShutdownTimeout bounds the graceful HTTP shutdown.
const ShutdownTimeout = 30 * time.Second

// Agent is a running mock GPS agent.
type Agent struct {
	cfg     config.Config
	version string
	runner  toolkit.Runner

	patch      api.PatchState
	supervisor *tunnel.Supervisor
	server     *http.Server
	listener   net.Listener
	advertiser *discovery.Advertiser
	serveErr   chan error
	cancel     context.CancelFunc
}

type staticPatch patcher.Status

func (s staticPatch) Status() patcher.Status {
	return patcher.Status(s)
}

// New creates an agent that runs subprocesses with runner.
func New(cfg config.Config, version string, runner toolkit.Runner) *Agent {
	return &Agent{cfg: cfg, version: version, runner: runner, serveErr: make(chan error, 1)}
}

// Start patches the developer script, launches the tunnel and starts serving. It returns
// once the listener is bound. Failures to patch or to establish the tunnel are logged and
// reported by the gateway, they do not stop the agent.
func (a *Agent) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	patch, err := a.ensurePatch(ctx)
	if err != nil {
		a.cancel()
		return err
	}
	a.patch = patch

	listener, err := net.Listen("tcp", a.cfg.Server.Address())
	if err != nil {
		a.cancel()
		return fmt.Errorf("Start: failed listening on %s: %w", a.cfg.Server.Address(), err)
	}
	a.listener = listener

	a.supervisor = tunnel.NewSupervisor(tunnel.CommandLauncher{Args: a.cfg.Tunnel.Command}, tunnel.Options{
		StartTimeout: a.cfg.Tunnel.StartTimeout.Duration,
		StopGrace:    a.cfg.Tunnel.StopGrace.Duration,
		RestartDelay: a.cfg.Tunnel.RestartDelay.Duration,
	})
	log.WithField("command", a.cfg.Tunnel.Command).Info("starting device tunnel")
	a.supervisor.Start(ctx)

	port := a.Port()
	gateway := api.NewGateway(toolkit.New(a.cfg.Toolkit.Binary, a.runner), a.runner, a.supervisor, a.patch, api.Options{
		Host:                     a.cfg.Server.Host,
		Port:                     port,
		Version:                  a.version,
		Metrics:                  a.cfg.Server.Metrics,
		CommandTimeout:           a.cfg.Gateway.CommandTimeout.Duration,
		TunnelWait:               a.cfg.Gateway.TunnelWait.Duration,
		MaxConcurrentDeviceCalls: a.cfg.Gateway.MaxConcurrentDeviceCalls,
		AllowedCommands:          a.cfg.Execute.AllowedCommands,
		AllowAll:                 a.cfg.Execute.AllowAll,
		ExecuteRate:              a.cfg.Execute.RatePerSecond,
		ExecuteBurst:             a.cfg.Execute.Burst,
	})
	a.server = api.NewHTTPServer(listener.Addr().String(), api.NewRouter(gateway))
	go func() {
		err := a.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			a.serveErr <- err
		}
		close(a.serveErr)
	}()
	if a.cfg.Execute.AllowAll {
		log.Warn("/execute accepts any command")
	}
	log.Info("Server running on: http://" + net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(port)))

	if a.cfg.Discovery.Enabled {
		adv, err := discovery.Advertise(a.cfg.Discovery.Instance, port, discovery.TXTRecords(a.version))
		if err != nil {
			log.WithError(err).Warn("mDNS announcement failed")
		}
		a.advertiser = adv
	}
	return nil
}

func (a *Agent) ensurePatch(ctx context.Context) (api.PatchState, error) {
	if !a.cfg.Patch.Enabled {
		log.Info("developer script patching disabled")
		return staticPatch(patcher.Skipped()), nil
	}
	p, err := patcher.New(a.runner, a.cfg.Toolkit.Python, a.cfg.Patch.ScriptPath, a.cfg.Patch.VersionConstraint)
	if err != nil {
		return nil, err
	}
	pctx := ctx
	if timeout := a.cfg.Gateway.CommandTimeout.Duration; timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	status := p.Ensure(pctx)
	if a.cfg.Patch.Watch && status.Path != "" {
		if err := p.Watch(ctx, status.Path); err != nil {
			log.WithError(err).Warn("not watching developer script")
		}
	}
	return p, nil
}

// Port returns the port the agent listens on. It is only valid after Start.
func (a *Agent) Port() int {
	if a.listener == nil {
		return 0
	}
	if addr, ok := a.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Tunnel returns the tunnel supervisor. It is only valid after Start.
func (a *Agent) Tunnel() *tunnel.Supervisor {
	return a.supervisor
}

// Failed delivers an error if the HTTP server stops on its own.
func (a *Agent) Failed() <-chan error {
	return a.serveErr
}

// Shutdown stops serving, waiting for running requests until ctx ends, withdraws the
// mDNS announcement and stops the tunnel.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.advertiser.Shutdown()
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	if a.supervisor != nil {
		a.supervisor.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	log.Info("agent stopped")
	return err
}

// Run starts an agent and blocks until ctx is done or the server fails, then shuts it down.
func Run(ctx context.Context, cfg config.Config, version string) error {
	a := New(cfg, version, toolkit.ExecRunner{})
	if err := a.Start(ctx); err != nil {
		return err
	}
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-a.Failed():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	return serveErr
}
