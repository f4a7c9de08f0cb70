package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the capture service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Segment metrics
	SegmentsFinalized *prometheus.CounterVec
	SegmentSamples    prometheus.Counter
	DroppedSamples    prometheus.Counter
	SegmentDuration   prometheus.Histogram
	ActiveSlot        prometheus.Gauge
	StreamErrors      prometheus.Counter

	// Upload metrics
	UploadsInFlight prometheus.Gauge
	UploadRequests  prometheus.Counter
	UploadFailures  *prometheus.CounterVec
	UploadDuration  prometheus.Histogram
	UploadWaits     prometheus.Counter
	TranscriptBytes prometheus.Counter
}

// NewMetrics creates all metrics on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SegmentsFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jamscribe_segments_finalized_total",
			Help: "Total number of finalized segments",
		}, []string{"slot"}),
		SegmentSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "jamscribe_segment_samples_total",
			Help: "Total number of samples written to segment files",
		}),
		DroppedSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "jamscribe_dropped_samples_total",
			Help: "Total number of samples dropped because the sink was busy",
		}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jamscribe_segment_duration_seconds",
			Help:    "Audio duration of finalized segments",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		ActiveSlot: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jamscribe_active_slot",
			Help: "Index of the slot the controller is working on, -1 when idle",
		}),
		StreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "jamscribe_stream_errors_total",
			Help: "Total number of errors reported by the input stream",
		}),

		UploadsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jamscribe_uploads_in_flight",
			Help: "Current number of running uploads",
		}),
		UploadRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "jamscribe_upload_requests_total",
			Help: "Total number of uploads sent to the transcription endpoint",
		}),
		UploadFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jamscribe_upload_failures_total",
			Help: "Total number of failed uploads",
		}, []string{"reason"}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jamscribe_upload_duration_seconds",
			Help:    "Duration of upload requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		UploadWaits: factory.NewCounter(prometheus.CounterOpts{
			Name: "jamscribe_upload_backpressure_waits_total",
			Help: "Total number of hand-offs that waited for the previous upload of the same slot",
		}),
		TranscriptBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "jamscribe_transcript_bytes_total",
			Help: "Total number of bytes appended to the transcript log",
		}),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSegment records a finalized segment
func (m *Metrics) RecordSegment(slot int, samples, dropped uint64, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsFinalized.WithLabelValues(strconv.Itoa(slot)).Inc()
	m.SegmentSamples.Add(float64(samples))
	m.DroppedSamples.Add(float64(dropped))
	m.SegmentDuration.Observe(durationSeconds)
}

// SetActiveSlot sets the recording slot, -1 for none
func (m *Metrics) SetActiveSlot(slot int) {
	if m == nil {
		return
	}
	m.ActiveSlot.Set(float64(slot))
}

// RecordStreamError increments the stream error counter
func (m *Metrics) RecordStreamError() {
	if m == nil {
		return
	}
	m.StreamErrors.Inc()
}

// RecordUploadStarted increments the request counter and in-flight gauge
func (m *Metrics) RecordUploadStarted() {
	if m == nil {
		return
	}
	m.UploadRequests.Inc()
	m.UploadsInFlight.Inc()
}

// RecordUploadFinished records the outcome of an upload. An empty reason means success.
func (m *Metrics) RecordUploadFinished(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.UploadsInFlight.Dec()
	m.UploadDuration.Observe(durationSeconds)
	if reason != "" {
		m.UploadFailures.WithLabelValues(reason).Inc()
	}
}

// RecordUploadWait increments the backpressure counter
func (m *Metrics) RecordUploadWait() {
	if m == nil {
		return
	}
	m.UploadWaits.Inc()
}

// RecordTranscript records bytes appended to the transcript log
func (m *Metrics) RecordTranscript(bytes int) {
	if m == nil {
		return
	}
	m.TranscriptBytes.Add(float64(bytes))
}
