package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Detector service metrics for production monitoring
var (
	// Ingestion metrics
	SamplesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpulse_samples_ingested_total",
			Help: "Total number of telemetry samples ingested",
		},
		[]string{"device_id"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridpulse_ingest_duration_seconds",
			Help:    "Time spent inside a single ingest call",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	HistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridpulse_history_size",
			Help: "Current number of feature records in the sliding history",
		},
	)

	// Detection metrics
	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpulse_findings_total",
			Help: "Total number of anomaly findings emitted",
		},
		[]string{"method", "severity"},
	)

	// Model metrics
	ModelTrained = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridpulse_model_trained",
			Help: "Whether a power model is live (1=trained, 0=untrained)",
		},
	)

	RetrainingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpulse_retrainings_total",
			Help: "Total number of model retraining attempts by status",
		},
		[]string{"status"},
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridpulse_training_duration_seconds",
			Help:    "Model fit duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
	)

	// Broker metrics
	BrokerDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpulse_broker_deliveries_total",
			Help: "Total number of broker deliveries by outcome",
		},
		[]string{"outcome"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridpulse_websocket_connections",
			Help: "Current number of active WebSocket observers",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridpulse_websocket_messages_total",
			Help: "Total number of findings broadcast over WebSocket",
		},
	)
)
