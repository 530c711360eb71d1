// Package metrics collects and exposes Prometheus metrics for the
// recognition pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics interface consumed by the session controller.
type Recorder interface {
	RecordFrame()
	RecordNoFace()
	RecordNoMatch()
	RecordMark(status string)
	RecordAlreadyRecorded()
	RecordFailure(kind string)
	RecordMatchLatency(d time.Duration)
	RecordEnrollment()
}

// Collector implements Recorder on Prometheus metrics.
type Collector struct {
	frames       prometheus.Counter
	noFace       prometheus.Counter
	noMatch      prometheus.Counter
	marks        *prometheus.CounterVec
	already      prometheus.Counter
	failures     *prometheus.CounterVec
	matchLatency prometheus.Histogram
	enrollments  prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_frames_total",
			Help: "Total recognition attempts (frames) processed",
		}),
		noFace: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_no_face_total",
			Help: "Frames with no detectable face",
		}),
		noMatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_no_match_total",
			Help: "Frames where the face matched no enrolled identity",
		}),
		marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_marks_total",
			Help: "Attendance records created, by status",
		}, []string{"status"}),
		already: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_already_recorded_total",
			Help: "Recognitions of identities already recorded for the day",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_failures_total",
			Help: "Operation failures, by kind",
		}, []string{"kind"}),
		matchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_match_latency_seconds",
			Help:    "Latency of a full recognition attempt",
			Buckets: prometheus.DefBuckets,
		}),
		enrollments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_enrollments_total",
			Help: "Successful template enrollments",
		}),
	}

	reg.MustRegister(c.frames, c.noFace, c.noMatch, c.marks, c.already, c.failures, c.matchLatency, c.enrollments)
	return c
}

func (c *Collector) RecordFrame()           { c.frames.Inc() }
func (c *Collector) RecordNoFace()          { c.noFace.Inc() }
func (c *Collector) RecordNoMatch()         { c.noMatch.Inc() }
func (c *Collector) RecordMark(status string) {
	c.marks.WithLabelValues(status).Inc()
}
func (c *Collector) RecordAlreadyRecorded() { c.already.Inc() }
func (c *Collector) RecordFailure(kind string) {
	c.failures.WithLabelValues(kind).Inc()
}
func (c *Collector) RecordMatchLatency(d time.Duration) {
	c.matchLatency.Observe(d.Seconds())
}
func (c *Collector) RecordEnrollment() { c.enrollments.Inc() }

// Handler returns an HTTP handler serving the registry's metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Nop is a Recorder that does nothing. Used in tests and CLI one-shots.
type Nop struct{}

func (Nop) RecordFrame()                      {}
func (Nop) RecordNoFace()                     {}
func (Nop) RecordNoMatch()                    {}
func (Nop) RecordMark(string)                 {}
func (Nop) RecordAlreadyRecorded()            {}
func (Nop) RecordFailure(string)              {}
func (Nop) RecordMatchLatency(time.Duration)  {}
func (Nop) RecordEnrollment()                 {}
