package events

import (
	"time"

	id "canopy/pkg/domain"
)

// Category classifies domain events by their primary purpose. Compliance
// events carry regulatory weight (credit retirement, certificate issuance)
// and want long retention; operations events are routine visibility and can
// be sampled.
type Category string

const (
	CategoryCompliance Category = "compliance"
	CategoryOperations Category = "operations"
)

// Event is the append-only record emitted on every lifecycle transition.
// External subscribers (indexers, dashboards) tail this log; nothing in the
// core reads it back for correctness.
type Event struct {
	Category  Category     `json:"category"`
	Timestamp time.Time    `json:"timestamp"`
	Account   id.AccountID `json:"account"`
	Action    Action       `json:"action"`
	// Subject identifies the entity acted on (credit id, order id, ...).
	Subject string `json:"subject"`
	Reason  string `json:"reason,omitempty"`
	// RequestID correlates the event with the request that produced it.
	RequestID string `json:"request_id,omitempty"`
}

// Action names a lifecycle transition.
type Action string

const (
	ActionCreditMinted       Action = "credit_minted"
	ActionCreditTransferred  Action = "credit_transferred"
	ActionCreditRetired      Action = "credit_retired"
	ActionOrderPlaced        Action = "order_placed"
	ActionOrderCancelled     Action = "order_cancelled"
	ActionTradeExecuted      Action = "trade_executed"
	ActionCertIssued         Action = "certificate_issued"
	ActionCertVerified       Action = "certificate_verified"
	ActionCertRevoked        Action = "certificate_revoked"
	ActionScoreUpdated       Action = "score_updated"
	ActionReviewAdded        Action = "review_added"
	ActionOutcomeRecorded    Action = "transaction_outcome_recorded"
	ActionAchievementGranted Action = "achievement_unlocked"
	ActionRoleGranted        Action = "role_granted"
	ActionRoleRevoked        Action = "role_revoked"
)

// actionCategories maps each action to its category. Unknown actions default
// to operations.
var actionCategories = map[Action]Category{
	ActionCreditMinted:      CategoryCompliance,
	ActionCreditTransferred: CategoryCompliance,
	ActionCreditRetired:     CategoryCompliance,
	ActionTradeExecuted:     CategoryCompliance,
	ActionCertIssued:        CategoryCompliance,
	ActionCertRevoked:       CategoryCompliance,
	ActionRoleGranted:       CategoryCompliance,
	ActionRoleRevoked:       CategoryCompliance,

	ActionOrderPlaced:        CategoryOperations,
	ActionOrderCancelled:     CategoryOperations,
	ActionCertVerified:       CategoryOperations,
	ActionScoreUpdated:       CategoryOperations,
	ActionReviewAdded:        CategoryOperations,
	ActionOutcomeRecorded:    CategoryOperations,
	ActionAchievementGranted: CategoryOperations,
}

// Category returns the Category for this action.
func (a Action) Category() Category {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}
