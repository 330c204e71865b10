// Package metrics defines the Prometheus instruments for the listings service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FeedRequests counts feed GETs by resource (Property, Media) and outcome.
	FeedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paragon_feed_requests_total",
			Help: "Total number of requests sent to the Paragon feed",
		},
		[]string{"resource", "outcome"},
	)

	FeedRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paragon_feed_request_duration_seconds",
			Help:    "Duration of Paragon feed requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	FeedPages = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paragon_feed_pages",
			Help:    "Number of pages followed per paginated feed query",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100},
		},
		[]string{"resource"},
	)

	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paragon_token_exchanges_total",
			Help: "Total number of client-credentials token exchanges",
		},
		[]string{"outcome"},
	)

	MediaBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paragon_media_batches_total",
			Help: "Total number of media filter batches executed",
		},
		[]string{"outcome"},
	)

	GeocodeResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_geocode_results_total",
			Help: "Per-property geocoding outcomes",
		},
		[]string{"outcome"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_cache_lookups_total",
			Help: "Search response cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
