// Package metrics exposes the cluster's Prometheus collectors: node
// health state, replication queue depth, replication throughput,
// migration progress, and HLC drift.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every registered metric and the registry they live in.
type Collector struct {
	registry *prometheus.Registry

	NodeState        *prometheus.GaugeVec
	QueueDepth       *prometheus.GaugeVec
	ReplicationOps   *prometheus.CounterVec
	MigrationTasks   *prometheus.GaugeVec
	HLCDriftMS       prometheus.Gauge
}

// New creates a Collector with every metric registered against a fresh
// registry, namespaced "solidb".
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		NodeState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "solidb",
			Subsystem: "registry",
			Name:      "node_state",
			Help:      "Current health state of a peer (0=joining,1=healthy,2=suspect,3=failed,4=removed).",
		}, []string{"node_id"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "solidb",
			Subsystem: "replication",
			Name:      "queue_depth",
			Help:      "Number of unacknowledged ops queued for a peer.",
		}, []string{"peer_node_id"}),
		ReplicationOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solidb",
			Subsystem: "replication",
			Name:      "ops_total",
			Help:      "Replication operations by outcome.",
		}, []string{"outcome"}),
		MigrationTasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "solidb",
			Subsystem: "coordinator",
			Name:      "migration_tasks",
			Help:      "Number of migration tasks currently in a given state.",
		}, []string{"state"}),
		HLCDriftMS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solidb",
			Subsystem: "hlc",
			Name:      "drift_ms",
			Help:      "Difference between this node's HLC physical component and its wall clock, in milliseconds.",
		}),
	}

	registry.MustRegister(c.NodeState, c.QueueDepth, c.ReplicationOps, c.MigrationTasks, c.HLCDriftMS)
	return c
}

// Handler returns the http.Handler to mount at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// NodeStateValue maps a registry.State ordinal to the gauge value
// convention documented on NodeState.
func NodeStateValue(state int) float64 {
	return float64(state)
}
