// Package monitoring exposes the synchronizer's prometheus counters,
// grounded on the teacher's monitoring.go (promauto-registered
// counters/gauges/histograms per subsystem) but retargeted from block/chain
// metrics to sync-protocol metrics.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge/histogram the synchronizer updates.
type Metrics struct {
	ChannelsEstablished  prometheus.Counter
	ChannelsRemoved      prometheus.Counter
	MessagesSent         prometheus.Counter
	MessagesBatched      prometheus.Counter
	BatchSendLatency     prometheus.Histogram
	SyncRequestsSent     prometheus.Counter
	SyncResponsesSent    prometheus.Counter
	EphemeralBroadcasts  prometheus.Counter
	EphemeralDropped     prometheus.Counter
	PermissionDenials    prometheus.Counter
	MiddlewareDenials    prometheus.Counter
	ActiveChannels       prometheus.Gauge
	ActivePeers          prometheus.Gauge
	StoragePendingSaves  prometheus.Gauge
	DispatchQueueDepth   prometheus.Gauge
	ErrorCount           prometheus.Counter
}

// NewMetrics constructs a Metrics registered against reg. Pass a fresh
// prometheus.NewRegistry() per instance in tests to avoid duplicate
// collector registration when NewMetrics is called more than once.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChannelsEstablished: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncmesh_channels_established_total",
			Help: "Total number of channels that completed the establish handshake",
		}),
		ChannelsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncmesh_channels_removed_total",
			Help: "Total number of channels removed",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncmesh_messages_sent_total",
			Help: "Total number of physical sends performed by the batcher",
		}),
		MessagesBatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncmesh_messages_batched_total",
			Help: "Total number of logical send-message commands collapsed into batch envelopes",
		}),
		BatchSendLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "syncmesh_batch_flush_duration_seconds",
			Help:    "Time spent flushing one dispatch cycle's send buffers",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10),
		}),
		SyncRequestsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncmesh_sync_requests_sent_total",
			Help: "Total number of sync-request messages emitted",
		}),
		SyncResponsesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncmesh_sync_responses_sent_total",
			Help: "Total number of sync-response messages emitted",
		}),
		EphemeralBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncmesh_ephemeral_broadcasts_total",
			Help: "Total number of ephemeral broadcast/relay messages emitted",
		}),
		EphemeralDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncmesh_ephemeral_dropped_total",
			Help: "Total number of ephemeral updates dropped as stale by sequence dedup",
		}),
		PermissionDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncmesh_permission_denials_total",
			Help: "Total number of mayList/mayReveal/mayReceiveUpdate denials",
		}),
		MiddlewareDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncmesh_middleware_denials_total",
			Help: "Total number of inbound messages dropped by the middleware pipeline",
		}),
		ActiveChannels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "syncmesh_active_channels",
			Help: "Number of channels currently Connected or Established",
		}),
		ActivePeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "syncmesh_active_peers",
			Help: "Number of distinct peers with at least one established channel",
		}),
		StoragePendingSaves: factory.NewGauge(prometheus.GaugeOpts{
			Name: "syncmesh_storage_pending_saves",
			Help: "Number of in-flight storage adapter save operations",
		}),
		DispatchQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "syncmesh_dispatch_queue_depth",
			Help: "Number of messages currently queued for dispatch",
		}),
		ErrorCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncmesh_errors_total",
			Help: "Total number of non-fatal errors logged by the synchronizer",
		}),
	}
}
