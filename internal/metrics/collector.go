// Package metrics exports run progress and retry decisions as Prometheus
// metrics. A Collector listens on the event bus, so components publishing
// events need no knowledge of it.
package metrics

import (
	"net/http"
	"sync"

	"github.com/Iron-Ham/forkrunner/internal/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "forkrunner"

// Retry request result label values.
const (
	ResultGranted = "granted"
	ResultDenied  = "denied"
)

// RetryBudget reports the global retries left. *progress.Reporter
// implements it.
type RetryBudget interface {
	RemainingRetries() int
}

// Collector holds the run metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	retryRequests  *prometheus.CounterVec
	retryRemaining prometheus.GaugeFunc
	poolProgress   *prometheus.GaugeVec
	testsFinished  *prometheus.CounterVec
	runDuration    prometheus.Gauge

	subscriptions []string
	bus           *event.Bus

	budgetMu sync.RWMutex
	budget   RetryBudget
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		retryRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_requests_total",
				Help:      "Retry admission decisions by result",
			},
			[]string{"result"},
		),
		poolProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_progress",
				Help:      "Fraction of a pool's planned tests that reached a final outcome",
			},
			[]string{"pool"},
		),
		testsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tests_finished_total",
				Help:      "Test cases that reached a final outcome, by pool and result",
			},
			[]string{"pool", "result"},
		),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last finished run",
		}),
	}

	c.retryRemaining = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "retry_remaining",
		Help:      "Global retries left in the current run",
	}, c.remainingRetries)

	c.registry.MustRegister(
		c.retryRequests,
		c.retryRemaining,
		c.poolProgress,
		c.testsFinished,
		c.runDuration,
	)
	return c
}

// Attach subscribes the collector to bus. Calling Attach again moves the
// subscriptions to the new bus.
func (c *Collector) Attach(bus *event.Bus) {
	c.Detach()
	c.bus = bus
	c.subscriptions = []string{
		bus.Subscribe(event.TypeRetryRequested, c.onRetryRequested),
		bus.Subscribe(event.TypePoolProgress, c.onPoolProgress),
		bus.Subscribe(event.TypeTestFinished, c.onTestFinished),
		bus.Subscribe(event.TypeRunStopped, c.onRunStopped),
	}
}

// Detach removes the collector's bus subscriptions.
func (c *Collector) Detach() {
	if c.bus == nil {
		return
	}
	for _, id := range c.subscriptions {
		c.bus.Unsubscribe(id)
	}
	c.subscriptions = nil
	c.bus = nil
}

// TrackRetryBudget makes the remaining retries gauge read b at scrape time.
// Until a budget is tracked the gauge reads 0.
func (c *Collector) TrackRetryBudget(b RetryBudget) {
	c.budgetMu.Lock()
	defer c.budgetMu.Unlock()
	c.budget = b
}

func (c *Collector) remainingRetries() float64 {
	c.budgetMu.RLock()
	b := c.budget
	c.budgetMu.RUnlock()

	if b == nil {
		return 0
	}
	return float64(b.RemainingRetries())
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) onRetryRequested(e event.Event) {
	re, ok := e.(event.RetryRequestedEvent)
	if !ok {
		return
	}
	result := ResultDenied
	if re.Granted {
		result = ResultGranted
	}
	c.retryRequests.WithLabelValues(result).Inc()
}

func (c *Collector) onPoolProgress(e event.Event) {
	pe, ok := e.(event.PoolProgressEvent)
	if !ok {
		return
	}
	c.poolProgress.WithLabelValues(pe.Pool).Set(pe.Progress)
}

func (c *Collector) onTestFinished(e event.Event) {
	te, ok := e.(event.TestFinishedEvent)
	if !ok {
		return
	}
	result := "failed"
	if te.Passed {
		result = "passed"
	}
	c.testsFinished.WithLabelValues(te.Pool, result).Inc()
}

func (c *Collector) onRunStopped(e event.Event) {
	se, ok := e.(event.RunStoppedEvent)
	if !ok {
		return
	}
	c.runDuration.Set(se.Elapsed.Seconds())
}
