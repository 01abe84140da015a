package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry holds the service's Prometheus collectors on a private registry.
type Telemetry struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	imports        *prometheus.CounterVec
	importedLeads  prometheus.Counter
	reportDuration prometheus.Histogram
}

func NewTelemetry() *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadboard",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadboard",
			Name:      "imports_total",
			Help:      "Spreadsheet imports by result.",
		}, []string{"result"}),
		importedLeads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadboard",
			Name:      "imported_leads_total",
			Help:      "Leads stored by successful imports.",
		}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leadboard",
			Name:      "report_duration_seconds",
			Help:      "Time spent evaluating comparisons.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	t.registry.MustRegister(t.requests, t.imports, t.importedLeads, t.reportDuration)
	return t
}

// ObserveImport counts one import attempt.
func (t *Telemetry) ObserveImport(success bool, leads int) {
	result := "failure"
	if success {
		result = "success"
		t.importedLeads.Add(float64(leads))
	}
	t.imports.WithLabelValues(result).Inc()
}

func (t *Telemetry) timeReport() func() {
	start := time.Now()
	return func() {
		t.reportDuration.Observe(time.Since(start).Seconds())
	}
}

// Middleware counts every request under its route pattern.
func (t *Telemetry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		t.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (t *Telemetry) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
}
