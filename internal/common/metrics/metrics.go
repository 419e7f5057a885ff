// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP request handling in seconds",
		},
		[]string{"route"},
	)

	PipelineStagesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_completed_total",
			Help: "Total number of pipeline stages completed",
		},
		[]string{"stage"},
	)

	PipelineStagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_failed_total",
			Help: "Total number of pipeline stages failed",
		},
		[]string{"stage", "error_code"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of pipeline stage processing in seconds",
			// Render stages run for minutes, well past the default buckets.
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	PipelineJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_jobs_active",
			Help: "Number of pipeline jobs currently holding a render slot",
		},
	)

	RenderKeyRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "render_key_rotations_total",
			Help: "Total number of render API key rotations after rate limits",
		},
	)
)
