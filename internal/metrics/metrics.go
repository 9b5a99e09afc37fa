// Package metrics collects Prometheus counters for the monitoring engine,
// exposed on /metrics by the web server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	cyclesTotal     prometheus.Counter
	cyclesFailed    prometheus.Counter
	fetchFailures   prometheus.Counter
	outagesEntered  prometheus.Counter
	entriesAppeared prometheus.Counter
	notifyFailures  prometheus.Counter
	bookings        *prometheus.CounterVec
}

// NewCollector registers the engine metrics on reg. Pass a fresh registry in
// tests to avoid duplicate-registration panics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitsched_cycles_total",
			Help: "Monitoring cycles started",
		}),
		cyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitsched_cycles_failed_total",
			Help: "Monitoring cycles that ended in error",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitsched_fetch_failures_total",
			Help: "Failed schedule fetch attempts",
		}),
		outagesEntered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitsched_outages_total",
			Help: "Times a call site entered the outage cadence",
		}),
		entriesAppeared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitsched_entries_appeared_total",
			Help: "Newly appeared schedule entries across cycles",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitsched_notify_failures_total",
			Help: "Discord deliveries that failed",
		}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitsched_bookings_total",
			Help: "Booking attempts by resulting status",
		}, []string{"status"}),
	}
	reg.MustRegister(
		c.cyclesTotal,
		c.cyclesFailed,
		c.fetchFailures,
		c.outagesEntered,
		c.entriesAppeared,
		c.notifyFailures,
		c.bookings,
	)
	return c
}

func (c *Collector) CycleStarted()         { c.cyclesTotal.Inc() }
func (c *Collector) CycleFailed()          { c.cyclesFailed.Inc() }
func (c *Collector) FetchFailed()          { c.fetchFailures.Inc() }
func (c *Collector) OutageEntered()        { c.outagesEntered.Inc() }
func (c *Collector) EntriesAppeared(n int) { c.entriesAppeared.Add(float64(n)) }
func (c *Collector) NotifyFailed()         { c.notifyFailures.Inc() }

func (c *Collector) BookingRecorded(status string) {
	c.bookings.WithLabelValues(status).Inc()
}
