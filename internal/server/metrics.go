// Package server exposes Prometheus instrumentation for the relay's
// connection and event traffic, served on /metrics.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatrelay_connected_clients",
		Help: "Number of currently connected WebSocket clients.",
	})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_events_total",
		Help: "Inbound events processed by the hub, by event name.",
	}, []string{"event"})

	eventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_events_rejected_total",
		Help: "Inbound events silently dropped, by event name.",
	}, []string{"event"})

	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_frames_sent_total",
		Help: "Outbound frames enqueued to client send buffers.",
	})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_uploads_total",
		Help: "Image upload disk writes, by result.",
	}, []string{"result"})
)
