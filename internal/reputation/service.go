package reputation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"canopy/internal/events"
	"canopy/internal/identity"
	repmetrics "canopy/internal/reputation/metrics"
	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/sentinel"
	"canopy/pkg/requestcontext"
)

// Achievement names. Each is awarded at most once per profile.
const (
	achievementHighPerformer = "high_performer"
	achievementVeteran       = "veteran"
	achievementReliable      = "reliable"
	achievementQualityExpert = "quality_expert"
)

// achievementBonus is the fixed community-score award per achievement.
const achievementBonus = 25

// EventPublisher appends to the domain-event log.
type EventPublisher interface {
	Emit(ctx context.Context, event events.Event) error
}

// Service maintains per-account reputation profiles. Profiles are created
// lazily on first interaction and never deleted.
type Service struct {
	store  Store
	roles  *identity.Registry
	logger *slog.Logger
	pub    EventPublisher
	mx     *repmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithEventPublisher(pub EventPublisher) Option {
	return func(s *Service) { s.pub = pub }
}

func WithMetrics(m *repmetrics.Metrics) Option {
	return func(s *Service) { s.mx = m }
}

func NewService(store Store, roles *identity.Registry, opts ...Option) *Service {
	s := &Service{store: store, roles: roles, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateProfile creates the account's profile if absent. Idempotent: a
// second call returns the existing profile untouched.
func (s *Service) CreateProfile(ctx context.Context, account id.AccountID) (*Profile, error) {
	if account == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "account is required")
	}
	profile, created, err := s.store.EnsureProfile(ctx, NewProfile(account, requestcontext.Now(ctx)))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create profile")
	}
	if created && s.mx != nil {
		s.mx.ProfilesCreated.Inc()
	}
	return profile, nil
}

// Get returns the account's profile.
func (s *Service) Get(ctx context.Context, account id.AccountID) (*Profile, error) {
	profile, err := s.store.FindByOwner(ctx, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "reputation profile not found")
		}
		return nil, err
	}
	return profile, nil
}

// UpdateScore adjusts one category by delta. Caller must be in the
// authorized-updater set (or admin). Increases saturate at the ceiling;
// decreases floor at zero — a category score is never negative.
func (s *Service) UpdateScore(ctx context.Context, caller, account id.AccountID, category Category, delta int64, increase bool, reason string) (*Profile, error) {
	if !s.roles.Has(caller, identity.RoleReputationUpdater) && !s.roles.Has(caller, identity.RoleAdmin) {
		return nil, dErrors.Newf(dErrors.CodeUnauthorized, "account %s is not an authorized reputation updater", caller)
	}
	if !validCategories[category] {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown reputation category")
	}
	if delta <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "delta must be positive")
	}

	if _, err := s.CreateProfile(ctx, account); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var unlocked []string
	profile, err := s.store.Execute(ctx, account,
		func(*Profile) error { return nil },
		func(p *Profile) {
			p.applyDelta(category, delta, increase, reason, now)
			unlocked = evaluateAchievements(p, now)
		},
	)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, account, events.ActionScoreUpdated, string(category), reason)
	s.noteAchievements(ctx, account, unlocked)
	if s.mx != nil {
		s.mx.ScoreUpdates.Inc()
	}
	return profile, nil
}

// AddReview records a peer review. Rating must be 1..5 and self-reviews are
// rejected. Reviews are keyed by reviewer only, so a second review from the
// same reviewer replaces the first — the documented keying behavior.
func (s *Service) AddReview(ctx context.Context, reviewer, reviewee id.AccountID, rating int, comment string, category Category, tradeRef string) (*Profile, error) {
	if rating < 1 || rating > 5 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rating must be between 1 and 5")
	}
	if reviewer == reviewee {
		return nil, dErrors.New(dErrors.CodeSelfReferential, "cannot review yourself")
	}
	if !validCategories[category] {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown reputation category")
	}

	if _, err := s.CreateProfile(ctx, reviewee); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	mapping := ratingDelta[rating]
	var unlocked []string
	profile, err := s.store.Execute(ctx, reviewee,
		func(*Profile) error { return nil },
		func(p *Profile) {
			p.Reviews[reviewer] = Review{
				Reviewer:  reviewer,
				Rating:    rating,
				Comment:   comment,
				Category:  category,
				TradeRef:  tradeRef,
				CreatedAt: now,
			}
			p.applyDelta(category, mapping.delta, mapping.increase,
				fmt.Sprintf("review (%d stars) from %s", rating, reviewer), now)
			unlocked = evaluateAchievements(p, now)
		},
	)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, reviewer, events.ActionReviewAdded, reviewee.String(), fmt.Sprintf("%d stars", rating))
	s.noteAchievements(ctx, reviewee, unlocked)
	if s.mx != nil {
		s.mx.ReviewsRecorded.Inc()
	}
	return profile, nil
}

// RecordTransactionOutcome updates counters and the delivery score for a
// completed transaction. Caller must be an authorized updater (or admin).
func (s *Service) RecordTransactionOutcome(ctx context.Context, caller, account id.AccountID, success bool, reason string) (*Profile, error) {
	if !s.roles.Has(caller, identity.RoleReputationUpdater) && !s.roles.Has(caller, identity.RoleAdmin) {
		return nil, dErrors.Newf(dErrors.CodeUnauthorized, "account %s is not an authorized reputation updater", caller)
	}
	return s.recordOutcome(ctx, account, success, reason)
}

// RecordSettlement is the matching engine's entry point: settlement itself
// is the authorization, no updater grant involved.
func (s *Service) RecordSettlement(ctx context.Context, account id.AccountID, success bool, tradeRef string) error {
	_, err := s.recordOutcome(ctx, account, success, "trade "+tradeRef)
	return err
}

func (s *Service) recordOutcome(ctx context.Context, account id.AccountID, success bool, reason string) (*Profile, error) {
	if _, err := s.CreateProfile(ctx, account); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var unlocked []string
	profile, err := s.store.Execute(ctx, account,
		func(*Profile) error { return nil },
		func(p *Profile) {
			p.TotalTransactions++
			if success {
				p.SuccessfulTransactions++
				// Delivery bonus scales with the rolling success rate.
				var bonus int64
				switch rate := p.SuccessRate(); {
				case rate >= 95:
					bonus = 10
				case rate >= 90:
					bonus = 5
				default:
					bonus = 2
				}
				p.applyDelta(CategoryDelivery, bonus, true, reason, now)
			} else {
				p.FailedTransactions++
				p.applyDelta(CategoryDelivery, 5, false, reason, now)
			}
			unlocked = evaluateAchievements(p, now)
		},
	)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, account, events.ActionOutcomeRecorded, account.String(), reason)
	s.noteAchievements(ctx, account, unlocked)
	return profile, nil
}

// Badge returns the account's badge tier.
func (s *Service) Badge(ctx context.Context, account id.AccountID) (Badge, error) {
	profile, err := s.Get(ctx, account)
	if err != nil {
		return "", err
	}
	return BadgeFor(profile.TotalScore), nil
}

// evaluateAchievements awards any newly earned achievements. Each grants a
// fixed community-score bonus, which can itself raise the total over a later
// threshold, so evaluation loops until a pass awards nothing. Idempotent:
// held achievements are never re-awarded.
func evaluateAchievements(p *Profile, now time.Time) []string {
	var unlocked []string
	for {
		name := nextAchievement(p)
		if name == "" {
			return unlocked
		}
		p.Achievements = append(p.Achievements, Achievement{Name: name, AwardedAt: now})
		p.applyDelta(CategoryCommunity, achievementBonus, true, "achievement: "+name, now)
		unlocked = append(unlocked, name)
	}
}

func nextAchievement(p *Profile) string {
	switch {
	case p.TotalScore > 800 && !p.hasAchievement(achievementHighPerformer):
		return achievementHighPerformer
	case p.TotalTransactions >= 100 && !p.hasAchievement(achievementVeteran):
		return achievementVeteran
	case p.TotalTransactions >= 10 && p.SuccessRate() >= 95 && !p.hasAchievement(achievementReliable):
		return achievementReliable
	case p.Scores[CategoryDataQuality] > 900 && !p.hasAchievement(achievementQualityExpert):
		return achievementQualityExpert
	}
	return ""
}

func (s *Service) noteAchievements(ctx context.Context, account id.AccountID, unlocked []string) {
	for _, name := range unlocked {
		s.emit(ctx, account, events.ActionAchievementGranted, account.String(), name)
		if s.mx != nil {
			s.mx.AchievementsUnlocked.Inc()
		}
	}
}

func (s *Service) emit(ctx context.Context, account id.AccountID, action events.Action, subject, reason string) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Emit(ctx, events.Event{
		Account: account,
		Action:  action,
		Subject: subject,
		Reason:  reason,
	}); err != nil {
		s.logger.WarnContext(ctx, "event emit failed", "action", string(action), "error", err)
	}
}
