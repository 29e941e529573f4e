package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Issued              prometheus.Counter
	Verifications       prometheus.Counter
	FailedVerifications prometheus.Counter
	Revoked             prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Issued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_certificates_issued_total",
			Help: "Total number of certificates issued",
		}),
		Verifications: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_certificate_verifications_total",
			Help: "Total number of certificate verification checks",
		}),
		FailedVerifications: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_certificate_verifications_failed_total",
			Help: "Total number of verification checks that found an invalid certificate",
		}),
		Revoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_certificates_revoked_total",
			Help: "Total number of certificates revoked",
		}),
	}
}
