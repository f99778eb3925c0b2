package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "folio", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "folio", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	TaxonomyCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "folio", Name: "taxonomy_created_total", Help: "Tagged records created, by taxonomy kind."},
		[]string{"kind"},
	)
	DuplicateKeyRecovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "folio", Name: "duplicate_key_recovered_total", Help: "Unique-index collisions resolved by re-reading the winning record."},
		[]string{"component"},
	)
	AvailabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "folio", Name: "username_checks_total", Help: "Username availability checks by outcome."},
		[]string{"outcome"},
	)
	SlugCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "folio", Name: "slug_collisions_total", Help: "Generated slugs rejected because they were already taken."},
	)
	ImageUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "folio", Name: "image_uploads_total", Help: "Gallery image uploads by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(TaxonomyCreated)
	reg.MustRegister(DuplicateKeyRecovered)
	reg.MustRegister(AvailabilityChecks)
	reg.MustRegister(SlugCollisions)
	reg.MustRegister(ImageUploads)
}
