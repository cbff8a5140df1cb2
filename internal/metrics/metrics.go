package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики пайплайна.
var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fictures_pipeline_runs_total",
			Help: "Total number of pipeline runs by final status.",
		},
		[]string{"status"},
	)
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fictures_pipeline_phase_duration_seconds",
			Help:    "Duration of pipeline phases.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"phase"},
	)
	ImagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fictures_images_total",
			Help: "Generated images by kind and outcome.",
		},
		[]string{"kind", "status"},
	)
	ImageValidationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fictures_image_validation_total",
			Help: "Image dimension validation results by kind.",
		},
		[]string{"kind", "result"},
	)
	MappingErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fictures_mapping_errors_total",
			Help: "Dropped cross-references whose temporary id had no durable id.",
		},
		[]string{"kind"},
	)
	ProgressWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fictures_progress_write_failures_total",
			Help: "Progress events that could not be delivered to the client.",
		},
		[]string{"transport"},
	)
)

// Метрики обращений к генеративным бэкендам.
var (
	AIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fictures_ai_requests_total",
			Help: "Total number of requests to generation backends.",
		},
		[]string{"backend", "model", "status"},
	)
	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fictures_ai_request_duration_seconds",
			Help:    "Histogram of generation backend request durations.",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 60, 120, 240},
		},
		[]string{"backend", "model"},
	)
	AITokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fictures_ai_tokens",
			Help:    "Token counts per generation request.",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10), // 64 ... 32768
		},
		[]string{"backend", "model", "type"},
	)
)
