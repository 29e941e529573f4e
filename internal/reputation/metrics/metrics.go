package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ProfilesCreated      prometheus.Counter
	ScoreUpdates         prometheus.Counter
	ReviewsRecorded      prometheus.Counter
	AchievementsUnlocked prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ProfilesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_reputation_profiles_created_total",
			Help: "Total number of reputation profiles created",
		}),
		ScoreUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_reputation_score_updates_total",
			Help: "Total number of reputation score adjustments applied",
		}),
		ReviewsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_reputation_reviews_total",
			Help: "Total number of peer reviews recorded",
		}),
		AchievementsUnlocked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_reputation_achievements_total",
			Help: "Total number of achievements unlocked",
		}),
	}
}
