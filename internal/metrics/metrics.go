package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lotwatch_requests_total",
		Help: "Total HTTP requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lotwatch_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	FeedPollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotwatch_feed_polls_total",
		Help: "Total occupancy feed polls",
	})
	FeedPollErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotwatch_feed_poll_errors_total",
		Help: "Total failed occupancy feed polls",
	})
	GarageFetchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotwatch_garage_fetch_total",
		Help: "Total external garage source fetches",
	})
	GarageFetchErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotwatch_garage_fetch_errors_total",
		Help: "Total failed external garage source fetches",
	})
	RedisHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotwatch_redis_hits_total",
		Help: "Total redis response cache hits",
	})
	RedisMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotwatch_redis_misses_total",
		Help: "Total redis response cache misses",
	})
)

// Register installs all collectors on the default registry. Call once at
// startup.
func Register() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDurationMs,
		FeedPollsTotal,
		FeedPollErrorsTotal,
		GarageFetchTotal,
		GarageFetchErrorsTotal,
		RedisHitsTotal,
		RedisMissesTotal,
	)
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
