// Package metrics owns the prometheus registry of the service: request counters keyed by
// status and endpoint, latency histograms and injected fault counters.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/alisaviation/carbonintensity/internal/models"
)

const requestsTotalName = "requests_total"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

type Registry struct {
	reg              *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	upstreamDuration *prometheus.HistogramVec
	injectedFaults   *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: requestsTotalName,
			Help: "total number of requests",
		}, []string{"status", "endpoint"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency distribution of HTTP handlers",
			Buckets: histogramBuckets,
		}, []string{"route", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Latency distribution of carbon intensity upstream calls",
			Buckets: histogramBuckets,
		}, []string{"status"}),
		injectedFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "injected_faults_total",
			Help: "Number of simulated upstream faults",
		}, []string{"type"}),
	}

	r.reg.MustRegister(
		r.requestsTotal,
		r.requestDuration,
		r.upstreamDuration,
		r.injectedFaults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Increment adds one to the (status, endpoint) request counter, creating it on first use.
func (r *Registry) Increment(status, endpoint string) {
	r.requestsTotal.WithLabelValues(status, endpoint).Inc()
}

func (r *Registry) ObserveRequest(route string, status int, d time.Duration) {
	r.requestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (r *Registry) ObserveUpstream(status int, d time.Duration) {
	r.upstreamDuration.WithLabelValues(strconv.Itoa(status)).Observe(d.Seconds())
}

func (r *Registry) RecordFault(kind models.FaultType) {
	r.injectedFaults.WithLabelValues(string(kind)).Inc()
}

// Count returns the current value of a request counter, 0 if it was never incremented.
// Unlike WithLabelValues it never creates the series.
func (r *Registry) Count(status, endpoint string) float64 {
	families, err := r.reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != requestsTotalName {
			continue
		}
		for _, m := range mf.GetMetric() {
			var gotStatus, gotEndpoint string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "status":
					gotStatus = lp.GetValue()
				case "endpoint":
					gotEndpoint = lp.GetValue()
				}
			}
			if gotStatus == status && gotEndpoint == endpoint {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// Export writes every family of the registry in the Prometheus text exposition format.
func (r *Registry) Export(w io.Writer) error {
	families, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
