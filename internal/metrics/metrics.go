package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/netpulse/internal/model"
)

const namespace = "netpulse"

// Metrics holds all collectors.
type Metrics struct {
	snapshotsReceived  *prometheus.CounterVec
	snapshotsMalformed *prometheus.CounterVec
	flushes            *prometheus.CounterVec
	flushesSkipped     *prometheus.CounterVec
	patches            *prometheus.CounterVec
	lookups            *prometheus.CounterVec
	renderMisses       *prometheus.CounterVec
	refilters          *prometheus.CounterVec
	emitted            *prometheus.CounterVec
	emitFailures       *prometheus.CounterVec
	subscribedEntities prometheus.Gauge
	transportStatus    prometheus.Gauge
	reconnects         prometheus.Counter
	pollRefreshes      prometheus.Counter
}

// New creates collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		snapshotsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_received_total",
			Help:      "Telemetry snapshots decoded from inbound events.",
		}, []string{"event"}),
		snapshotsMalformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_malformed_total",
			Help:      "Telemetry entries skipped because required fields were missing or invalid.",
		}, []string{"event"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Batches applied to a view.",
		}, []string{"consumer"}),
		flushesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_skipped_total",
			Help:      "Flushes deferred or dropped.",
		}, []string{"consumer", "reason"}),
		patches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_patches_total",
			Help:      "Rendered rows patched with telemetry.",
		}, []string{"consumer"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_lookups_total",
			Help:      "Surface lookups performed on render cache misses.",
		}, []string{"consumer"}),
		renderMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_misses_total",
			Help:      "Batch entries whose row is not currently rendered.",
		}, []string{"consumer"}),
		refilters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refilters_total",
			Help:      "Re-filter passes triggered by telemetry.",
		}, []string{"consumer"}),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_emitted_total",
			Help:      "Outbound subscription events.",
		}, []string{"event"}),
		emitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_emit_failures_total",
			Help:      "Outbound subscription events that failed to send.",
		}, []string{"event"}),
		subscribedEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribed_entities",
			Help:      "Distinct (scope, entity) pairs currently subscribed.",
		}),
		transportStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transport_status",
			Help:      "0 = disconnected, 1 = connected, 2 = reconnecting.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_reconnects_total",
			Help:      "Successful reconnects after a connection loss.",
		}),
		pollRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_refreshes_total",
			Help:      "Fallback status refreshes while the transport was down.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.snapshotsReceived,
			m.snapshotsMalformed,
			m.flushes,
			m.flushesSkipped,
			m.patches,
			m.lookups,
			m.renderMisses,
			m.refilters,
			m.emitted,
			m.emitFailures,
			m.subscribedEntities,
			m.transportStatus,
			m.reconnects,
			m.pollRefreshes,
		)
	}

	return m
}

func (m *Metrics) SnapshotReceived(event string) {
	if m == nil {
		return
	}
	m.snapshotsReceived.WithLabelValues(event).Inc()
}

func (m *Metrics) SnapshotMalformed(event string) {
	if m == nil {
		return
	}
	m.snapshotsMalformed.WithLabelValues(event).Inc()
}

func (m *Metrics) Flushed(consumer string) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(consumer).Inc()
}

func (m *Metrics) FlushSkipped(consumer, reason string) {
	if m == nil {
		return
	}
	m.flushesSkipped.WithLabelValues(consumer, reason).Inc()
}

// Reconciled records the outcome of one reconcile pass.
func (m *Metrics) Reconciled(consumer string, patched, lookups, misses int, refiltered bool) {
	if m == nil {
		return
	}
	m.patches.WithLabelValues(consumer).Add(float64(patched))
	m.lookups.WithLabelValues(consumer).Add(float64(lookups))
	m.renderMisses.WithLabelValues(consumer).Add(float64(misses))
	if refiltered {
		m.refilters.WithLabelValues(consumer).Inc()
	}
}

func (m *Metrics) Emitted(event string) {
	if m == nil {
		return
	}
	m.emitted.WithLabelValues(event).Inc()
}

func (m *Metrics) EmitFailed(event string) {
	if m == nil {
		return
	}
	m.emitFailures.WithLabelValues(event).Inc()
}

func (m *Metrics) SetSubscribedEntities(n int) {
	if m == nil {
		return
	}
	m.subscribedEntities.Set(float64(n))
}

func (m *Metrics) SetTransportStatus(st model.TransportStatus) {
	if m == nil {
		return
	}
	m.transportStatus.Set(float64(st))
}

func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) PollRefreshed() {
	if m == nil {
		return
	}
	m.pollRefreshes.Inc()
}
