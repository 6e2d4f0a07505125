package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	MessagesConsumed *prometheus.CounterVec // schema label
	MessagesRejected *prometheus.CounterVec // reason label: decode|ingest|validator name|panic
	TripsEvicted     prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	ProcessDuration prometheus.Histogram
	PublishDuration prometheus.Histogram

	Workers prometheus.Gauge
}

// NewCollector registers all metrics. cachedTrips reports the engine's trip
// cache size at scrape time; it may be nil.
func NewCollector(workers int, cachedTrips func() int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripupdater_messages_consumed_total",
			Help: "Inbound messages consumed, by schema.",
		}, []string{"schema"}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripupdater_messages_rejected_total",
			Help: "Inbound messages dropped, by reason.",
		}, []string{"reason"}),
		TripsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripupdater_trips_evicted_total",
			Help: "Trips evicted from the cache after their idle TTL.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripupdater_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripupdater_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripupdater_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		ProcessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripupdater_process_duration_seconds",
			Help:    "Duration to process one inbound message.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripupdater_publish_duration_seconds",
			Help:    "Duration to publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripupdater_workers",
			Help: "Number of processing workers.",
		}),
	}

	reg.MustRegister(
		c.MessagesConsumed, c.MessagesRejected, c.TripsEvicted,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.ProcessDuration, c.PublishDuration, c.Workers,
	)
	if cachedTrips != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tripupdater_cached_trips",
			Help: "Trips currently held in the trip update cache.",
		}, func() float64 { return float64(cachedTrips()) }))
	}

	c.Workers.Set(float64(workers))
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

func (c *Collector) ConsumedInc(schema string) { c.MessagesConsumed.WithLabelValues(schema).Inc() }
func (c *Collector) RejectedInc(reason string) { c.MessagesRejected.WithLabelValues(reason).Inc() }
func (c *Collector) ProcessObserve(d time.Duration) {
	c.ProcessDuration.Observe(d.Seconds())
}
func (c *Collector) TripEvictedInc()   { c.TripsEvicted.Inc() }
func (c *Collector) NATSPublishedInc() { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() {
	c.NATSPublishErrs.Inc()
}
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
