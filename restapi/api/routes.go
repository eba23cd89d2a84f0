package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Endpoint describes a route on the status page.
type Endpoint struct {
	Method      string
	Path        string
	Description string
}

// Endpoints lists the routes advertised on the status page.
var Endpoints = []Endpoint{
	{"GET", "/devices", "List connected iOS devices"},
	{"POST", "/setlocation", "Set the location of the device, body {\"latitude\": ..., \"longitude\": ...}"},
	{"POST", "/clearlocation", "Clear the simulated location of the device"},
	{"POST", "/execute", "Execute an allowed command, body {\"command\": ..., \"return_output\": true}"},
	{"GET", "/tunnel", "Show the state of the device tunnel"},
	{"GET", "/health", "Health check"},
	{"GET", "/metrics", "Prometheus metrics, if enabled"},
}

func registerRoutes(router *gin.Engine, g *Gateway) {
	router.GET("/", g.Status)
	router.GET("/health", g.Health)
	router.GET("/tunnel", g.Tunnel)
	if g.opts.Metrics {
		router.GET("/metrics", g.metrics.Handler())
	}

	device := router.Group("")
	device.Use(LimitConcurrency(g.opts.MaxConcurrentDeviceCalls))
	device.GET("/devices", g.Devices)
	device.POST("/setlocation", g.SetLocation)
	device.POST("/clearlocation", g.ClearLocation)

	execute := router.Group("")
	if g.opts.ExecuteRate > 0 {
		burst := g.opts.ExecuteBurst
		if burst < 1 {
			burst = 1
		}
		execute.Use(RateLimit(rate.NewLimiter(rate.Limit(g.opts.ExecuteRate), burst)))
	}
	execute.POST("/execute", g.Execute)
}
