// Package metrics provides Prometheus metrics for the tooldock MCP server.
// It tracks tool calls, discovery passes, and per-unit load outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const (
	Namespace = "tooldock"
)

var (
	// RequestsTotal counts total MCP tool calls by tool name and status
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "requests_total",
		Help:      "Total number of MCP tool calls",
	}, []string{"tool", "status"})

	// RequestDuration measures request latency distribution
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "request_duration_seconds",
		Help:      "Request latency distribution by tool",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"tool"})

	// RequestInFlight tracks currently executing requests
	RequestInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "requests_in_flight",
		Help:      "Number of requests currently being processed",
	}, []string{"tool"})

	// PanicsRecovered counts recovered panics in tool handlers and unit code
	PanicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "panics_recovered_total",
		Help:      "Number of panics recovered in tool handlers",
	}, []string{"tool"})

	// DiscoveryPasses counts discovery passes by outcome (ok, partial, empty, failed)
	DiscoveryPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "discovery_passes_total",
		Help:      "Discovery passes by outcome",
	}, []string{"status"})

	// DiscoveryDuration measures how long a full discovery pass takes
	DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "discovery_duration_seconds",
		Help:      "Discovery pass latency distribution",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// DiscoveryErrors counts discovery errors by kind
	DiscoveryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "discovery_errors_total",
		Help:      "Discovery errors by kind",
	}, []string{"kind"})

	// UnitLoadDuration measures unit interpretation latency
	UnitLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "unit_load_duration_seconds",
		Help:      "Unit load latency distribution by outcome",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	// ToolsRegistered tracks the number of tools in the live registry
	ToolsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "tools_registered",
		Help:      "Number of tools in the live registry",
	})

	// RegistryGeneration tracks the generation of the live registry snapshot
	RegistryGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "registry_generation",
		Help:      "Generation of the live registry snapshot",
	})

	// ReloadsCoalesced counts reload requests that joined a pass already in flight
	ReloadsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "reloads_coalesced_total",
		Help:      "Reload requests served by a pass already in flight",
	})
)

// RecordRequest records a completed request with its duration and status
func RecordRequest(tool string, duration float64, success bool) {
	RequestsTotal.WithLabelValues(tool, status(success)).Inc()
	RequestDuration.WithLabelValues(tool).Observe(duration)
}

// RecordUnitLoad records a unit load with its duration and status
func RecordUnitLoad(duration float64, success bool) {
	UnitLoadDuration.WithLabelValues(status(success)).Observe(duration)
}

// RecordDiscovery records a finished discovery pass
func RecordDiscovery(outcome string, duration float64, registered int, generation uint64) {
	DiscoveryPasses.WithLabelValues(outcome).Inc()
	DiscoveryDuration.Observe(duration)
	ToolsRegistered.Set(float64(registered))
	RegistryGeneration.Set(float64(generation))
}

// RecordDiscoveryError records one discovery error by kind
func RecordDiscoveryError(kind string) {
	DiscoveryErrors.WithLabelValues(kind).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
