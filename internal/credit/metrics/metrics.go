package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CreditsMinted  prometheus.Counter
	CreditsRetired prometheus.Counter
	TonsMinted     prometheus.Counter
	TonsRetired    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		CreditsMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_credits_minted_total",
			Help: "Total number of credit records minted",
		}),
		CreditsRetired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_credits_retired_total",
			Help: "Total number of credit records retired",
		}),
		TonsMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_credit_units_minted_total",
			Help: "Total CO2e minor units minted",
		}),
		TonsRetired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_credit_units_retired_total",
			Help: "Total CO2e minor units retired",
		}),
	}
}
