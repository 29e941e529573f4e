package reputation

import (
	"time"

	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

// Category is one of the five scored reputation dimensions.
type Category string

const (
	CategoryPerformance Category = "performance"
	CategoryDataQuality Category = "data_quality"
	CategoryDelivery    Category = "delivery"
	CategoryCommunity   Category = "community"
	CategoryCompliance  Category = "compliance"
)

var validCategories = map[Category]bool{
	CategoryPerformance: true,
	CategoryDataQuality: true,
	CategoryDelivery:    true,
	CategoryCommunity:   true,
	CategoryCompliance:  true,
}

// ParseCategory constructs a Category from external input.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !validCategories[c] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown reputation category: "+s)
	}
	return c, nil
}

// categoryWeights drive the total-score recomputation. Weights sum to 100.
var categoryWeights = map[Category]int64{
	CategoryPerformance: 25,
	CategoryDataQuality: 20,
	CategoryDelivery:    25,
	CategoryCommunity:   15,
	CategoryCompliance:  15,
}

const (
	// Category scores are clamped to [0, scoreCeiling].
	scoreCeiling = 1000
	initialScore = 100
	// initialTotal is the creation-time total: the plain sum of the five
	// initial category scores. The first weighted recomputation replaces
	// it; the asymmetry is long-standing observable behavior that
	// downstream consumers key on, so it stays.
	initialTotal = 500
)

// Badge tiers derived from the total score.
type Badge string

const (
	BadgeBronze   Badge = "bronze"
	BadgeSilver   Badge = "silver"
	BadgeGold     Badge = "gold"
	BadgePlatinum Badge = "platinum"
)

// BadgeFor maps a total score to its tier. Pure function, no mutation.
func BadgeFor(totalScore int64) Badge {
	switch {
	case totalScore >= 900:
		return BadgePlatinum
	case totalScore >= 750:
		return BadgeGold
	case totalScore >= 600:
		return BadgeSilver
	default:
		return BadgeBronze
	}
}

// Review is a peer rating. Reviews are stored keyed by reviewer id only, so
// a later review from the same reviewer replaces the earlier one.
type Review struct {
	Reviewer  id.AccountID `json:"reviewer"`
	Rating    int          `json:"rating"`
	Comment   string       `json:"comment,omitempty"`
	Category  Category     `json:"category"`
	TradeRef  string       `json:"trade_ref,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Achievement is a one-time award.
type Achievement struct {
	Name      string    `json:"name"`
	AwardedAt time.Time `json:"awarded_at"`
}

// ScoreChange is one entry in the append-only score history.
type ScoreChange struct {
	Category  Category  `json:"category"`
	Delta     int64     `json:"delta"`
	NewValue  int64     `json:"new_value"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Profile is the per-account reputation aggregate.
type Profile struct {
	Owner                  id.AccountID            `json:"owner"`
	Scores                 map[Category]int64      `json:"scores"`
	TotalScore             int64                   `json:"total_score"`
	TotalTransactions      int64                   `json:"total_transactions"`
	SuccessfulTransactions int64                   `json:"successful_transactions"`
	FailedTransactions     int64                   `json:"failed_transactions"`
	Reviews                map[id.AccountID]Review `json:"reviews"`
	Achievements           []Achievement           `json:"achievements"`
	History                []ScoreChange           `json:"history"`
	CreatedAt              time.Time               `json:"created_at"`
	UpdatedAt              time.Time               `json:"updated_at"`
}

// NewProfile builds the initial profile for an account.
func NewProfile(owner id.AccountID, now time.Time) *Profile {
	return &Profile{
		Owner: owner,
		Scores: map[Category]int64{
			CategoryPerformance: initialScore,
			CategoryDataQuality: initialScore,
			CategoryDelivery:    initialScore,
			CategoryCommunity:   initialScore,
			CategoryCompliance:  initialScore,
		},
		TotalScore: initialTotal,
		Reviews:    make(map[id.AccountID]Review),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// applyDelta clamps the category into [0, 1000], recomputes the weighted
// total, and appends a history entry. Decreases floor at zero; increases
// saturate at the ceiling.
func (p *Profile) applyDelta(category Category, delta int64, increase bool, reason string, now time.Time) {
	current := p.Scores[category]
	var next int64
	if increase {
		next = current + delta
		if next > scoreCeiling {
			next = scoreCeiling
		}
	} else {
		next = current - delta
		if next < 0 {
			next = 0
		}
	}
	p.Scores[category] = next

	signed := next - current
	p.History = append(p.History, ScoreChange{
		Category:  category,
		Delta:     signed,
		NewValue:  next,
		Reason:    reason,
		Timestamp: now,
	})
	p.recomputeTotal()
	p.UpdatedAt = now
}

func (p *Profile) recomputeTotal() {
	var total int64
	for category, weight := range categoryWeights {
		total += p.Scores[category] * weight
	}
	p.TotalScore = total / 100
}

// SuccessRate returns the rolling success percentage (0 when no
// transactions have been recorded).
func (p *Profile) SuccessRate() float64 {
	if p.TotalTransactions == 0 {
		return 0
	}
	return float64(p.SuccessfulTransactions) / float64(p.TotalTransactions) * 100
}

// hasAchievement reports whether the award was already granted.
func (p *Profile) hasAchievement(name string) bool {
	for _, a := range p.Achievements {
		if a.Name == name {
			return true
		}
	}
	return false
}

// ratingDelta maps a 1..5 star rating onto a score adjustment.
//
// NOTE: a 2-star review currently grants the same +5 as 3 and 4 stars.
// The curve is deliberately left as-is until product settles the intended
// scoring semantics; do not "fix" it silently.
var ratingDelta = map[int]struct {
	delta    int64
	increase bool
}{
	1: {delta: 10, increase: false},
	2: {delta: 5, increase: true},
	3: {delta: 5, increase: true},
	4: {delta: 5, increase: true},
	5: {delta: 10, increase: true},
}
