// Package metrics exposes capture counters in Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	framesDecoded *prometheus.CounterVec
	framesDropped *prometheus.CounterVec
	samples       prometheus.Counter
	slotState     *prometheus.GaugeVec
	dropouts      *prometheus.CounterVec
	uploads       *prometheus.CounterVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_frames_decoded_total",
			Help: "Sensor frames that produced a measurement.",
		}, []string{"slot"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_frames_dropped_total",
			Help: "Sensor frames without any recognised axis.",
		}, []string{"slot"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capture_samples_total",
			Help: "Aggregated samples emitted while recording.",
		}),
		slotState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "capture_slot_state",
			Help: "Connection state per slot (0 idle, 1 connecting, 2 connected, 3 error).",
		}, []string{"slot"}),
		dropouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_sensor_dropouts_total",
			Help: "Unexpected sensor disconnects.",
		}, []string{"slot", "during_recording"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_uploads_total",
			Help: "CSV uploads by file type and result.",
		}, []string{"file_type", "result"}),
	}
	m.reg.MustRegister(
		m.framesDecoded, m.framesDropped, m.samples, m.slotState, m.dropouts, m.uploads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry on /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) FrameDecoded(slot string) {
	if m != nil {
		m.framesDecoded.WithLabelValues(slot).Inc()
	}
}

func (m *Metrics) FrameDropped(slot string) {
	if m != nil {
		m.framesDropped.WithLabelValues(slot).Inc()
	}
}

func (m *Metrics) SampleEmitted() {
	if m != nil {
		m.samples.Inc()
	}
}

func (m *Metrics) SlotState(slot string, state int) {
	if m != nil {
		m.slotState.WithLabelValues(slot).Set(float64(state))
	}
}

func (m *Metrics) Dropout(slot string, recording bool) {
	if m == nil {
		return
	}
	label := "false"
	if recording {
		label = "true"
	}
	m.dropouts.WithLabelValues(slot, label).Inc()
}

func (m *Metrics) Upload(fileType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.uploads.WithLabelValues(fileType, result).Inc()
}
