package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_assignments_total",
		Help: "The total number of message assignments by outcome",
	}, []string{"outcome"})

	AssignmentDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radar_assignment_duration_seconds",
		Help:    "Duration of a single message assignment",
		Buckets: prometheus.DefBuckets,
	})

	EffectiveThreshold = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radar_assignment_effective_threshold",
		Help:    "Distribution of effective acceptance thresholds after density adjustment",
		Buckets: []float64{0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
	})

	BatchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_batch_runs_total",
		Help: "The total number of batch clustering runs by status",
	}, []string{"status"})

	BatchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radar_batch_duration_seconds",
		Help:    "Duration in seconds of a batch clustering run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	BatchClustersCreated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radar_batch_clusters_created",
		Help: "Number of clusters created by the last batch run",
	})

	BatchNoiseMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radar_batch_noise_messages",
		Help: "Number of messages left unclustered by the last batch run",
	})

	BatchStrategyUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_batch_strategy_total",
		Help: "Which clustering strategy produced the accepted labeling",
	}, []string{"strategy"})

	MaintenanceRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_maintenance_runs_total",
		Help: "The total number of maintenance task runs by task and status",
	}, []string{"task", "status"})

	ClustersSplit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_clusters_split_total",
		Help: "The total number of oversized clusters split",
	})

	SingletonsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_singletons_deleted_total",
		Help: "The total number of singleton clusters deleted",
	})

	SpikesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_spikes_detected_total",
		Help: "The total number of spikes detected by the trend detector",
	})

	TrendScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_trend_scans_total",
		Help: "The total number of trend detector scans by scope",
	}, []string{"scope"})

	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_embedding_requests_total",
		Help: "Total number of embedding requests",
	}, []string{"provider", "model", "status"})

	EmbeddingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "radar_embedding_latency_seconds",
		Help:    "Latency of embedding requests by provider",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider", "model"})

	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radar_embedding_circuit_breaker_state",
		Help: "Current state of the embedding circuit breaker (0=closed, 1=open)",
	})
)
