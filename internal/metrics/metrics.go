package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK     = "ok"
	ResultFailed = "failed"
	ResultKilled = "killed"
)

var (
	commandTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccm_command_total",
			Help: "Total number of cluster manager invocations",
		},
		[]string{"command", "result"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ccm_command_duration_seconds",
			Help:    "Cluster manager invocation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"command", "result"},
	)

	startupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccm_startup_failures_total",
		Help: "Clusters or nodes whose native protocol port never came up",
	})

	clustersOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ccm_clusters_open",
		Help: "Number of clusters created and not yet closed",
	})
)

// ObserveCommand records one invocation. command is the subcommand without arguments,
// e.g. "create" or "node start".
func ObserveCommand(command, result string, d time.Duration) {
	commandTotal.WithLabelValues(command, result).Inc()
	commandDuration.WithLabelValues(command, result).Observe(d.Seconds())
}

func StartupFailed() { startupFailures.Inc() }

func ClusterOpened() { clustersOpen.Inc() }
func ClusterClosed() { clustersOpen.Dec() }
