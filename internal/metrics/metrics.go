package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NoaaAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_noaa_api_calls_total",
			Help: "Total upstream weather API calls by final status",
		},
		[]string{"station", "endpoint", "status"},
	)

	ObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_observations_ingested_total",
			Help: "Observations successfully persisted (deduplicated)",
		},
		[]string{"station"},
	)

	DuplicateObservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_duplicate_observations_total",
			Help: "Polls that returned an already-stored observation",
		},
		[]string{"station"},
	)

	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_predictions_total",
			Help: "Prediction rows written per model",
		},
		[]string{"model"},
	)

	PredictionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_prediction_failures_total",
			Help: "Failed inference or persist attempts per model",
		},
		[]string{"model"},
	)

	DegradedFeatureWindows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_degraded_feature_windows_total",
			Help: "Feature rows built from a replicated single observation",
		},
		[]string{"station"},
	)

	StationsDeactivated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firewatch_stations_deactivated_total",
			Help: "Stations deactivated after an unserviceable upstream status",
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "firewatch_cycle_duration_seconds",
			Help:    "Wall-clock duration of one full ingestion cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
)
