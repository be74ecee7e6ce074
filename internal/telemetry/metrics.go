package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts orders accepted by the engine, by side.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_orders_total",
			Help: "Total number of orders processed by the matching engine",
		},
		[]string{"side"},
	)

	// OrdersRejectedTotal counts requests rejected before reaching the book.
	OrdersRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_orders_rejected_total",
			Help: "Total number of order requests rejected at the boundary",
		},
		[]string{"transport"},
	)

	// ResultsTotal counts emitted results by kind (QUEUED, EXECUTED) and side.
	ResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_results_total",
			Help: "Total number of order results emitted",
		},
		[]string{"kind", "side"},
	)

	ExecutedQuantityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_executed_quantity_total",
			Help: "Total executed quantity by taker side",
		},
		[]string{"side"},
	)

	// OrderBookDepth tracks the number of resting orders per side.
	OrderBookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matching_orderbook_depth",
			Help: "Current number of resting orders",
		},
		[]string{"side"},
	)

	OrderProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_order_processing_duration_seconds",
			Help:    "Time spent inside the engine for one order",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)

	SequencerInboundSeq = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matching_sequencer_inbound_seq",
			Help: "Current inbound sequence number",
		},
	)

	SequencerOutboundSeq = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matching_sequencer_outbound_seq",
			Help: "Current outbound sequence number",
		},
	)

	// GRPCRequestsTotal counts gRPC calls by method and status code.
	GRPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "code"},
	)

	// NATSMessagesReceived counts request-reply messages by subject.
	NATSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_nats_messages_received_total",
			Help: "Total number of NATS order requests received",
		},
		[]string{"subject"},
	)
)
