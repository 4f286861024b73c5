package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the timeline engine.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	spriteHitsTotal     prometheus.Counter
	spriteMissesTotal   prometheus.Counter
	spriteFailuresTotal prometheus.Counter
	spritesEvictedTotal prometheus.Counter
	inFlightGenerations prometheus.Gauge
}

// New creates and registers Prometheus metrics for the timeline engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	spriteHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_sprite_cache_hits_total",
		Help: "Total number of sprite requests served from the persistent cache",
	})
	spriteMissesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_sprite_cache_misses_total",
		Help: "Total number of sprite requests that triggered a generation",
	})
	spriteFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_sprite_generation_failures_total",
		Help: "Total number of sprite generations that failed",
	})
	spritesEvictedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_sprites_evicted_total",
		Help: "Total number of sprites removed by the age-based prune",
	})
	inFlightGenerations := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_sprite_generations_in_flight",
		Help: "Number of sprite generations currently running",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		spriteHitsTotal,
		spriteMissesTotal,
		spriteFailuresTotal,
		spritesEvictedTotal,
		inFlightGenerations,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		spriteHitsTotal:     spriteHitsTotal,
		spriteMissesTotal:   spriteMissesTotal,
		spriteFailuresTotal: spriteFailuresTotal,
		spritesEvictedTotal: spritesEvictedTotal,
		inFlightGenerations: inFlightGenerations,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSpriteHits increments the sprite cache hit counter.
func (m *Metrics) IncSpriteHits() {
	m.spriteHitsTotal.Inc()
}

// IncSpriteMisses increments the sprite cache miss counter.
func (m *Metrics) IncSpriteMisses() {
	m.spriteMissesTotal.Inc()
}

// IncSpriteFailures increments the failed generation counter.
func (m *Metrics) IncSpriteFailures() {
	m.spriteFailuresTotal.Inc()
}

// AddSpritesEvicted adds n to the evicted sprite counter.
func (m *Metrics) AddSpritesEvicted(n int) {
	m.spritesEvictedTotal.Add(float64(n))
}

// GenerationStarted increments the in-flight generations gauge.
func (m *Metrics) GenerationStarted() {
	m.inFlightGenerations.Inc()
}

// GenerationFinished decrements the in-flight generations gauge.
func (m *Metrics) GenerationFinished() {
	m.inFlightGenerations.Dec()
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
