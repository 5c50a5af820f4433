package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "telemetry_fanout"

// Flush triggers, used as the "trigger" label.
const (
	TriggerCapacity = "capacity"
	TriggerForced   = "forced"
)

// Metrics are the dispatcher's Prometheus instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	envelopes       *prometheus.CounterVec
	timeSeries      *prometheus.CounterVec
	flushes         *prometheus.CounterVec
	bufferOccupancy prometheus.Gauge
}

// NewMetrics creates the instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "envelopes_total",
			Help:      "Envelopes handled, by result (processed or failed).",
		}, []string{"result"}),
		timeSeries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "timeseries_writes_total",
			Help:      "Time-series writes, by result.",
		}, []string{"result"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "durable_flushes_total",
			Help:      "Durable batch writes, by trigger and result.",
		}, []string{"trigger", "result"}),
		bufferOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "buffer_occupancy",
			Help:      "Items waiting in the durable batch buffer.",
		}),
	}
	for _, c := range []prometheus.Collector{m.envelopes, m.timeSeries, m.flushes, m.bufferOccupancy} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) envelope(ok bool) {
	if m == nil {
		return
	}
	m.envelopes.WithLabelValues(resultLabel(ok)).Inc()
}

func (m *Metrics) timeSeriesWrite(ok bool) {
	if m == nil {
		return
	}
	m.timeSeries.WithLabelValues(resultLabel(ok)).Inc()
}

func (m *Metrics) flush(trigger, result string) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(trigger, result).Inc()
}

func (m *Metrics) occupancy(n int) {
	if m == nil {
		return
	}
	m.bufferOccupancy.Set(float64(n))
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
