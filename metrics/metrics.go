// Package metrics registers the prometheus business metrics updated from
// the service layer. HTTP request metrics live in the gateway middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsIntakeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mkt_uploads_intake_total",
			Help: "Submissions accepted for validation",
		},
		[]string{"kind"},
	)

	UploadsValidatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mkt_uploads_validated_total",
			Help: "Submissions that reached a terminal validation state",
		},
		[]string{"state"},
	)

	WebappsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mkt_webapps_created_total",
			Help: "Catalog entries created from validated submissions",
		},
	)

	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mkt_status_transitions_total",
			Help: "Publication status transitions applied",
		},
		[]string{"to"},
	)

	FeaturedCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mkt_featured_cache_total",
			Help: "Featured resolver cache lookups",
		},
		[]string{"result"},
	)
)
