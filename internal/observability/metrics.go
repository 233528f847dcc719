package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the bot's collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	deliveries   *prometheus.CounterVec
	sendDuration prometheus.Histogram
	interval     prometheus.Gauge
	reschedules  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promobot",
			Name:      "passes_total",
			Help:      "Broadcast passes run by the scheduler, by result.",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "promobot",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of one broadcast pass.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promobot",
			Name:      "deliveries_total",
			Help:      "Catalog item deliveries, by result.",
		}, []string{"result"}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "promobot",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver one item, including pacing.",
			Buckets:   prometheus.DefBuckets,
		}),
		interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "promobot",
			Name:      "interval_seconds",
			Help:      "Current broadcast period.",
		}),
		reschedules: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "promobot",
			Name:      "reschedules_total",
			Help:      "Period changes applied to the broadcast job.",
		}),
	}
	m.reg.MustRegister(
		m.passes, m.passDuration, m.deliveries, m.sendDuration, m.interval, m.reschedules,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ObservePass(d time.Duration, err error) {
	m.passes.WithLabelValues(result(err == nil)).Inc()
	m.passDuration.Observe(d.Seconds())
}

func (m *Metrics) SetInterval(d time.Duration) { m.interval.Set(d.Seconds()) }

func (m *Metrics) IncReschedule() { m.reschedules.Inc() }

func (m *Metrics) ObserveDelivery(ok bool, d time.Duration) {
	m.deliveries.WithLabelValues(result(ok)).Inc()
	m.sendDuration.Observe(d.Seconds())
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
