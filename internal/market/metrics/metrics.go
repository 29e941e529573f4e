package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OrdersPlaced    *prometheus.CounterVec
	OrdersCancelled prometheus.Counter
	TradesExecuted  prometheus.Counter
	TonsTraded      prometheus.Counter
	FeesAccrued     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		OrdersPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_market_orders_placed_total",
			Help: "Total number of orders placed, by side",
		}, []string{"side"}),
		OrdersCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_market_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		TradesExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_market_trades_total",
			Help: "Total number of trades settled",
		}),
		TonsTraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_market_tons_traded_total",
			Help: "Total tons of credits settled across all trades",
		}),
		FeesAccrued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_market_fees_accrued_total",
			Help: "Total marketplace fees collected, in minor units",
		}),
	}
}
