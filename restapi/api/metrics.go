package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the prometheus collectors of one gateway. Each gateway has its own registry.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	deviceCount     prometheus.Gauge
}

func newMetrics(tunnel TunnelState) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mockgps_http_requests_total",
			Help: "Served HTTP requests by route and status code",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mockgps_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests, including the toolkit subprocess",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"route"}),
		deviceCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mockgps_device_count",
			Help: "How many iOS devices the last device listing returned",
		}),
	}
	tunnelReady := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mockgps_tunnel_ready",
		Help: "1 if the device tunnel address is available",
	}, func() float64 {
		if tunnel.Info().State == "ready" {
			return 1
		}
		return 0
	})
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.deviceCount,
		tunnelReady,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Instrument counts and times every request by its route pattern.
func (m *Metrics) Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
