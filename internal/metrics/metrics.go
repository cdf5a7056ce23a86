// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wordstream_sessions_active",
			Help: "Number of connected sessions",
		},
	)

	SessionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wordstream_sessions_rejected_total",
			Help: "Connections refused because the session registry was full",
		},
	)

	ProducersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wordstream_producers_active",
			Help: "Number of running producers across all pools",
		},
	)

	PoolsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wordstream_pools_active",
			Help: "Number of live producer pools",
		},
	)

	WordsProduced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wordstream_words_produced_total",
			Help: "Words pushed into pool buffers",
		},
	)

	WordsTransferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wordstream_words_transferred_total",
			Help: "Words taken out of pool buffers by clients",
		},
	)

	BufferFullRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wordstream_buffer_full_retries_total",
			Help: "Producer push attempts rejected by a full buffer",
		},
	)

	GovernorAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordstream_governor_adjustments_total",
			Help: "Pool resizes made by the self-adjusting governor",
		},
		[]string{"direction"},
	)

	BufferLevelAverage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wordstream_buffer_level_average_percent",
			Help: "Mean running-average buffer occupancy across pools",
		},
	)

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordstream_commands_total",
			Help: "Client commands dispatched",
		},
		[]string{"command", "result"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wordstream_command_duration_seconds",
			Help:    "Client command handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	HostCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wordstream_host_cpu_percent",
			Help: "Host CPU utilisation sampled by the monitor",
		},
	)

	HostMemoryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wordstream_host_memory_percent",
			Help: "Host memory utilisation sampled by the monitor",
		},
	)

	HostLoad1 = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wordstream_host_load1",
			Help: "Host one minute load average",
		},
	)
)
