package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/san-kum/fopdtsim/internal/dynamo"
	"github.com/san-kum/fopdtsim/internal/sched"
	"github.com/san-kum/fopdtsim/internal/sim"
)

// Exporter publishes tick outcomes as Prometheus metrics. It is a
// sim.Observer and its Fire method fits sim.WithOnFire.
type Exporter struct {
	reg *prometheus.Registry

	ticks        *prometheus.CounterVec
	scanCount    prometheus.Gauge
	values       *prometheus.GaugeVec
	tickDuration prometheus.Histogram
	lateness     prometheus.Histogram
}

func NewExporter() *Exporter {
	m := &Exporter{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fopdtsim",
			Name:      "ticks_total",
			Help:      "Ticks executed by result (ok, read_failure, write_failure, numeric).",
		}, []string{"result"}),
		scanCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fopdtsim",
			Name:      "scan_count",
			Help:      "Successful ticks in the current session.",
		}),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fopdtsim",
			Name:      "value",
			Help:      "Latest CV, SP and PV.",
		}, []string{"signal"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fopdtsim",
			Name:      "tick_duration_seconds",
			Help:      "Time spent inside one tick, tag I/O included.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		lateness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fopdtsim",
			Name:      "schedule_lateness_seconds",
			Help:      "Delay between a tick's target fire time and its actual start.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}

	m.reg.MustRegister(
		m.ticks,
		m.scanCount,
		m.values,
		m.tickDuration,
		m.lateness,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, r := range []string{"ok", "read_failure", "write_failure", "numeric", "other"} {
		m.ticks.WithLabelValues(r)
	}
	return m
}

func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, dynamo.ErrReadFailure):
		return "read_failure"
	case errors.Is(err, dynamo.ErrWriteFailure):
		return "write_failure"
	case errors.Is(err, dynamo.ErrNumeric):
		return "numeric"
	default:
		return "other"
	}
}

func (m *Exporter) OnTick(o sim.Outcome) {
	m.ticks.WithLabelValues(Result(o.Err)).Inc()
	m.scanCount.Set(float64(o.ScanCount))
	m.tickDuration.Observe(o.Duration.Seconds())
	if o.Appended {
		m.values.WithLabelValues("cv").Set(o.Sample.CV)
		m.values.WithLabelValues("sp").Set(o.Sample.SP)
		m.values.WithLabelValues("pv").Set(o.Sample.PV)
	}
}

func (m *Exporter) BindSession(string) {
	m.scanCount.Set(0)
}

func (m *Exporter) Fire(f sched.Fire) {
	m.lateness.Observe(f.Lateness().Seconds())
}

func (m *Exporter) Registry() *prometheus.Registry { return m.reg }

func (m *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
