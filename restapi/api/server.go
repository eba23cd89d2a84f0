// Package api is the HTTP command gateway. It validates requests, turns them into toolkit
// invocations against the current tunnel address and reports the results as JSON.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iosmockgps/mockgps-agent/patcher"
	"github.com/iosmockgps/mockgps-agent/toolkit"
	"github.com/iosmockgps/mockgps-agent/tunnel"
	log "github.com/sirupsen/logrus"
)

// DeviceController runs the device facing toolkit commands.
type DeviceController interface {
	ListDevices(ctx context.Context) (toolkit.Result, error)
	SetLocation(ctx context.Context, addr toolkit.RSDAddress, lat, lon toolkit.Coordinate) (toolkit.Result, error)
	ClearLocation(ctx context.Context, addr toolkit.RSDAddress) (toolkit.Result, error)
}

// TunnelState gives access to the tunnel address.
type TunnelState interface {
	Await(ctx context.Context) (toolkit.RSDAddress, error)
	Info() tunnel.Info
}

// PatchState reports the outcome of the developer script patch.
type PatchState interface {
	Status() patcher.Status
}

// Options configure the gateway.
type Options struct {
	Host    string
	Port    int
	Version string
	// Metrics exposes GET /metrics.
	Metrics bool

	// CommandTimeout bounds every toolkit or /execute subprocess. Zero means no limit.
	CommandTimeout time.Duration
	// TunnelWait bounds how long a location request waits for a pending tunnel.
	TunnelWait time.Duration
	// MaxConcurrentDeviceCalls limits parallel device commands. Zero means unlimited.
	MaxConcurrentDeviceCalls int

	// AllowedCommands are the executables /execute may start, matched against argv[0].
	AllowedCommands []string
	AllowAll        bool
	// ExecuteRate limits /execute requests per second. Zero disables the limit.
	ExecuteRate  float64
	ExecuteBurst int
}

// Gateway holds the collaborators the handlers need.
type Gateway struct {
	devices DeviceController
	runner  toolkit.Runner
	tunnel  TunnelState
	patch   PatchState
	metrics *Metrics
	opts    Options
}

// NewGateway creates a gateway. runner is used for /execute.
func NewGateway(devices DeviceController, runner toolkit.Runner, tunnel TunnelState, patch PatchState, opts Options) *Gateway {
	return &Gateway{devices: devices, runner: runner, tunnel: tunnel, patch: patch, metrics: newMetrics(tunnel), opts: opts}
}

// NewRouter builds the gin engine serving all gateway endpoints.
func NewRouter(g *Gateway) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(RequestID(), RequestLogger(), g.metrics.Instrument(), gin.CustomRecovery(recoverJSON))
	router.SetHTMLTemplate(statusTemplate)
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	})
	registerRoutes(router, g)
	return router
}

// NewHTTPServer wraps handler in a server with sane timeouts.
func NewHTTPServer(address string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
	}
}

func recoverJSON(c *gin.Context, recovered any) {
	log.WithFields(log.Fields{"panic": recovered, "path": c.Request.URL.Path}).Error("handler panicked")
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// commandContext derives the context for a subprocess started for this request.
func (g *Gateway) commandContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if g.opts.CommandTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), g.opts.CommandTimeout)
}

// awaitTunnel returns the current tunnel address, waiting at most TunnelWait for a
// tunnel that is still starting.
func (g *Gateway) awaitTunnel(c *gin.Context) (toolkit.RSDAddress, error) {
	ctx := c.Request.Context()
	if g.opts.TunnelWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.TunnelWait)
		defer cancel()
	}
	return g.tunnel.Await(ctx)
}
