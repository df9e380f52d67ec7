// README: Prometheus metrics for offers, deliveries, connections and clusters; served on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shopd/internal/modules/notification"
)

const namespace = "shopd"

// Collector implements the dispatch and notification observers.
type Collector struct {
	offersSent     *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	tokensRemoved  prometheus.Counter
	acceptLatency  prometheus.Histogram
	connected      prometheus.Gauge
	available      prometheus.Gauge
	clusters       prometheus.Gauge
	offersInFlight prometheus.Gauge
	scanDuration   prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewCollector registers every metric on reg. Pass prometheus.NewRegistry()
// in tests to avoid duplicate registration.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		offersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offers_sent_total",
			Help:      "Offers delivered to a shopper, by channel.",
		}, []string{"channel"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offer_outcomes_total",
			Help:      "Offer resolutions, by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_deliveries_total",
			Help:      "Notification send attempts, by channel and result.",
		}, []string{"channel", "result"}),
		tokensRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_tokens_removed_total",
			Help:      "Push tokens deleted after a permanent delivery failure.",
		}),
		acceptLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "offer_accept_latency_seconds",
			Help:      "Time from offer sent to assignment.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Shoppers with a live direct channel.",
		}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_available",
			Help:      "Connected shoppers accepting offers.",
		}),
		clusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_clusters",
			Help:      "Worker clusters in the last rebuild.",
		}),
		offersInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offers_in_flight",
			Help:      "Outstanding offers awaiting a response.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Pending scan wall time.",
			Buckets:   prometheus.DefBuckets,
		}),
		gatherer: reg,
	}
	reg.MustRegister(
		c.offersSent, c.outcomes, c.deliveries, c.tokensRemoved, c.acceptLatency,
		c.connected, c.available, c.clusters, c.offersInFlight, c.scanDuration,
	)
	return c
}

func (c *Collector) ObserveOffer(channel notification.Channel) {
	c.offersSent.WithLabelValues(string(channel)).Inc()
}

func (c *Collector) ObserveOutcome(outcome string) {
	c.outcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveAcceptLatency(d time.Duration) {
	c.acceptLatency.Observe(d.Seconds())
}

func (c *Collector) ObserveDelivery(channel notification.Channel, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.deliveries.WithLabelValues(string(channel), result).Inc()
}

func (c *Collector) ObservePermanentToken() {
	c.tokensRemoved.Inc()
}

func (c *Collector) ObserveScan(d time.Duration) {
	c.scanDuration.Observe(d.Seconds())
}

// SetGauges records point-in-time counts, typically from the status endpoint
// or a periodic refresh.
func (c *Collector) SetGauges(connected, available, clusters, offersInFlight int) {
	c.connected.Set(float64(connected))
	c.available.Set(float64(available))
	c.clusters.Set(float64(clusters))
	c.offersInFlight.Set(float64(offersInFlight))
}

// Handler serves the registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
