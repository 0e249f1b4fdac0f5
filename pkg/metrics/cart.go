package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "webstore"

// CartMetrics records cart mutations, store read failures and checkout outcomes.
type CartMetrics struct {
	mutations        *prometheus.CounterVec
	readFailures     *prometheus.CounterVec
	checkoutOutcomes *prometheus.CounterVec
	checkoutDuration *prometheus.HistogramVec
}

// NewCartMetrics registers the cart metrics on the provided registerer. A nil
// registerer yields a recorder whose methods are no-ops.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_mutations_total",
		Help:      "Cart mutations persisted, by operation.",
	}, []string{"op"})
	readFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_store_read_failures_total",
		Help:      "Cart slot reads that fell back to an empty cart.",
	}, []string{"backend"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_submissions_total",
		Help:      "Checkout submissions by channel and outcome.",
	}, []string{"channel", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkout_duration_seconds",
		Help:      "Time spent delivering an order to the checkout channel.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel"})
	reg.MustRegister(mutations, readFailures, outcomes, duration)
	return &CartMetrics{
		mutations:        mutations,
		readFailures:     readFailures,
		checkoutOutcomes: outcomes,
		checkoutDuration: duration,
	}
}

// IncMutation counts a persisted cart mutation.
func (c *CartMetrics) IncMutation(op string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncStoreReadFailure counts a slot read that was recovered as an empty cart.
func (c *CartMetrics) IncStoreReadFailure(backend string) {
	if c == nil || c.readFailures == nil {
		return
	}
	c.readFailures.WithLabelValues(normalizeLabel(backend)).Inc()
}

// ObserveCheckout records a checkout attempt.
func (c *CartMetrics) ObserveCheckout(channel, outcome string, duration time.Duration) {
	if c == nil || c.checkoutOutcomes == nil {
		return
	}
	channel = normalizeLabel(channel)
	c.checkoutOutcomes.WithLabelValues(channel, normalizeLabel(outcome)).Inc()
	c.checkoutDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
