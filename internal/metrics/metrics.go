// Package metrics exposes the gateway's Prometheus counters and gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BeaconsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ruuvigw_beacons_decoded_total",
		Help: "Total number of Ruuvi v5 advertisements successfully decoded.",
	}, []string{"address"})

	BeaconsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ruuvigw_beacons_dropped_total",
		Help: "Total number of advertisements dropped before reaching the broker.",
	}, []string{"reason"})

	Publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ruuvigw_publishes_total",
		Help: "Total number of MQTT publishes attempted by the broker client.",
	}, []string{"topic_kind", "status"})

	AttachEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ruuvigw_attach_total",
		Help: "Total number of per-tag attach/detach publishes.",
	}, []string{"kind", "status"})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ruuvigw_broker_reconnects_total",
		Help: "Total number of MQTT session rebuilds (JWT renewal or dead session).",
	})

	WorkerRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ruuvigw_worker_restarts_total",
		Help: "Total number of times the supervisor restarted a worker.",
	}, []string{"worker"})

	BrokerConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ruuvigw_broker_connected",
		Help: "1 when the broker client currently holds a live MQTT session, 0 otherwise.",
	})
)

// Reasons a beacon never reaches a publish.
const (
	DropReasonUnsupportedFormat = "unsupported_format"
	DropReasonDecodeError       = "decode_error"
	DropReasonChannelFull       = "channel_full"
	DropReasonAttachFailed      = "attach_failed"
)

// Publish outcome labels.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Topic kind labels for the publishes counter.
const (
	TopicKindEvents = "events"
	TopicKindState  = "state"
)

// Attach/detach kind labels.
const (
	KindAttach = "attach"
	KindDetach = "detach"
)
