package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Delivery sinks.
const (
	SinkHTTP = "http"
	SinkFile = "file"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentlens_events_received_total",
		Help: "Source events received from the host runtime",
	}, []string{"stream"})

	EventsTransformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentlens_events_transformed_total",
		Help: "Destination events produced, by type",
	}, []string{"type"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentlens_events_dropped_total",
		Help: "Source events that produced no destination event",
	}, []string{"reason"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentlens_deliveries_total",
		Help: "Delivery attempts by sink and outcome",
	}, []string{"sink", "outcome"})

	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentlens_delivery_duration_seconds",
		Help:    "Per-sink delivery latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
	}, []string{"sink"})

	PendingToolCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentlens_pending_tool_calls",
		Help: "Tool invocations awaiting their post event",
	})
)
