package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

// QuotaRepository persists UserQuotaState. Every method is a single atomic
// operation on one user's row.
type QuotaRepository interface {
	GetOrCreate(ctx context.Context, userID string, now time.Time) (entity.QuotaState, error)
	// Reset zeroes the monthly counter and moves reset_at to next only if
	// reset_at still equals prev. It reports whether this call did the reset.
	Reset(ctx context.Context, userID string, prev, next, now time.Time) (bool, error)
	// Consume spends one credit if any are left, else counts one monthly use.
	Consume(ctx context.Context, userID string, now time.Time) (usedCredit bool, err error)
	AddCredits(ctx context.Context, userID string, n int, now time.Time) error
	ActivatePro(ctx context.Context, userID string, resetAt, now time.Time) error
	SetTier(ctx context.Context, userID string, tier entity.Tier, now time.Time) error
}

type QuotaService struct {
	repo QuotaRepository
	log  zerolog.Logger
	now  func() time.Time
}

type QuotaOption func(*QuotaService)

// WithQuotaClock replaces time.Now, mostly for tests.
func WithQuotaClock(now func() time.Time) QuotaOption {
	return func(s *QuotaService) { s.now = now }
}

func NewQuotaService(repo QuotaRepository, log zerolog.Logger, opts ...QuotaOption) *QuotaService {
	s := &QuotaService{repo: repo, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// timestamps are stored with microsecond precision
func (s *QuotaService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// load materializes the user's row and rolls the monthly counter past any
// elapsed reset boundary. Concurrent callers race on a compare-and-set, so
// exactly one of them resets.
func (s *QuotaService) load(ctx context.Context, userID string) (entity.QuotaState, error) {
	now := s.clock()
	st, err := s.repo.GetOrCreate(ctx, userID, now)
	if err != nil {
		return entity.QuotaState{}, err
	}

	for attempt := 0; attempt < 3 && !now.Before(st.ResetAt); attempt++ {
		next := entity.NextReset(st.Tier, st.ResetAt, now)
		done, err := s.repo.Reset(ctx, userID, st.ResetAt, next, now)
		if err != nil {
			return entity.QuotaState{}, err
		}
		if done {
			s.log.Info().Str("user_id", userID).Time("reset_at", next).Msg("quota: monthly count reset")
			st.MonthlyCount = 0
			st.ResetAt = next
			return st, nil
		}
		// another caller reset first
		if st, err = s.repo.GetOrCreate(ctx, userID, now); err != nil {
			return entity.QuotaState{}, err
		}
	}
	return st, nil
}

// CanAdmit evaluates, in order: an active Pro allotment, a positive credit
// balance, then the free allotment.
func (s *QuotaService) CanAdmit(ctx context.Context, userID string) (entity.Decision, error) {
	st, err := s.load(ctx, userID)
	if err != nil {
		return entity.Decision{}, err
	}
	return decide(st), nil
}

func decide(st entity.QuotaState) entity.Decision {
	switch st.Tier {
	case entity.TierPro:
		limit := entity.TierPro.Plan().MonthlyLimit
		if st.MonthlyCount >= limit {
			return entity.Decision{
				Allowed: false,
				Reason: fmt.Sprintf("Pro monthly limit reached (%d videos). Resets on %s.",
					limit, st.ResetAt.Format("January 2")),
				Remaining: 0,
				Tier:      entity.TierPro,
				ResetAt:   st.ResetAt,
			}
		}
		return entity.Decision{Allowed: true, Reason: "Pro user", Remaining: limit - st.MonthlyCount, Tier: entity.TierPro, ResetAt: st.ResetAt}
	case entity.TierFree, entity.TierBasic:
		if st.BasicCredits > 0 {
			return entity.Decision{Allowed: true, Reason: "Using Basic credits", Remaining: st.BasicCredits, Tier: entity.TierBasic, ResetAt: st.ResetAt}
		}
		limit := entity.TierFree.Plan().MonthlyLimit
		if st.MonthlyCount >= limit {
			return entity.Decision{
				Allowed: false,
				Reason: fmt.Sprintf("Free tier limit reached (%d videos/month). Upgrade to continue or wait until %s.",
					limit, st.ResetAt.Format("January 2")),
				Remaining: 0,
				Tier:      entity.TierFree,
				ResetAt:   st.ResetAt,
			}
		}
		return entity.Decision{Allowed: true, Reason: "Free tier", Remaining: limit - st.MonthlyCount, Tier: entity.TierFree, ResetAt: st.ResetAt}
	default:
		return entity.Decision{Allowed: false, Reason: fmt.Sprintf("unknown tier %q", st.Tier), Tier: st.Tier, ResetAt: st.ResetAt}
	}
}

// Consume charges one successful generation. Only the worker calls it, and
// only after the job reached COMPLETE.
func (s *QuotaService) Consume(ctx context.Context, userID string) error {
	now := s.clock()
	usedCredit, err := s.repo.Consume(ctx, userID, now)
	if errors.Is(err, ErrNotFound) {
		if _, err = s.repo.GetOrCreate(ctx, userID, now); err != nil {
			return err
		}
		usedCredit, err = s.repo.Consume(ctx, userID, now)
	}
	if err != nil {
		return err
	}
	if usedCredit {
		s.log.Info().Str("user_id", userID).Msg("quota: used 1 basic credit")
	} else {
		s.log.Info().Str("user_id", userID).Msg("quota: incremented monthly count")
	}
	return nil
}

func (s *QuotaService) GrantCredits(ctx context.Context, userID string, n int) error {
	if n <= 0 {
		return fmt.Errorf("credits must be positive, got %d", n)
	}
	now := s.clock()
	if _, err := s.repo.GetOrCreate(ctx, userID, now); err != nil {
		return err
	}
	if err := s.repo.AddCredits(ctx, userID, n, now); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Int("credits", n).Msg("quota: added basic credits")
	return nil
}

// SetTier applies a purchase or cancellation. Basic is a credit pack, so
// activating it grants the pack instead of changing the stored tier.
func (s *QuotaService) SetTier(ctx context.Context, userID string, tier entity.Tier, active bool) error {
	now := s.clock()
	if _, err := s.repo.GetOrCreate(ctx, userID, now); err != nil {
		return err
	}

	switch tier {
	case entity.TierPro:
		if active {
			if err := s.repo.ActivatePro(ctx, userID, now.Add(entity.SubscriptionPeriod), now); err != nil {
				return err
			}
			s.log.Info().Str("user_id", userID).Msg("quota: activated pro subscription")
			return nil
		}
		if err := s.repo.SetTier(ctx, userID, entity.TierFree, now); err != nil {
			return err
		}
		s.log.Info().Str("user_id", userID).Msg("quota: downgraded to free tier")
		return nil
	case entity.TierBasic:
		if !active {
			return nil
		}
		return s.GrantCredits(ctx, userID, entity.TierBasic.Plan().PackCredits)
	case entity.TierFree:
		return s.repo.SetTier(ctx, userID, entity.TierFree, now)
	default:
		return fmt.Errorf("unknown tier %q", tier)
	}
}

// Usage is the quota read: tier, counters and next reset instant.
func (s *QuotaService) Usage(ctx context.Context, userID string) (entity.Usage, error) {
	st, err := s.load(ctx, userID)
	if err != nil {
		return entity.Usage{}, err
	}

	var limit int
	switch st.Tier {
	case entity.TierPro:
		limit = entity.TierPro.Plan().MonthlyLimit
	case entity.TierFree, entity.TierBasic:
		limit = entity.TierFree.Plan().MonthlyLimit
	}
	remaining := limit - st.MonthlyCount
	if remaining < 0 {
		remaining = 0
	}
	return entity.Usage{
		Tier:         st.Tier,
		Used:         st.MonthlyCount,
		Limit:        limit,
		Remaining:    remaining,
		BasicCredits: st.BasicCredits,
		ResetAt:      st.ResetAt,
	}, nil
}
