// Package study exposes the scheduling engine to the outside world: rating
// submission, study batches, streaks and daily goal progress. Every call takes
// the acting user explicitly.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/conorfennell/cardstreak/internal/domain"
	"github.com/conorfennell/cardstreak/internal/selector"
	"github.com/conorfennell/cardstreak/internal/sm2"
	"github.com/conorfennell/cardstreak/internal/storage"
	"github.com/conorfennell/cardstreak/internal/streak"
)

// Store is the persistence the service needs.
type Store interface {
	Review(ctx context.Context, userID, cardID int64, fn func(ctx context.Context, rt *storage.ReviewTx) error) error
	StudyCandidates(ctx context.Context, userID, deckID int64) ([]domain.StudyItem, error)
	StudyDates(ctx context.Context, userID int64) ([]civil.Date, error)
	DailyStats(ctx context.Context, userID int64, day civil.Date) ([]domain.DailyStat, error)
}

// Options tune the service.
type Options struct {
	DailyGoal  int            // goal used when a progress request has none
	BatchLimit int            // batch size used when a batch request has none
	Anchor     streak.Anchor  // streak scan anchor
	Location   *time.Location // defines "today"
	Seed       uint64         // shuffle seed, 0 seeds from the clock
}

// Service implements the study entry points.
type Service struct {
	store    Store
	params   *sm2.Params
	log      *slog.Logger
	validate *validator.Validate
	opts     Options
	clock    func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New wires a Service with the default SM-2 parameters.
func New(store Store, log *slog.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = selector.DefaultLimit
	}
	if opts.Anchor == "" {
		opts.Anchor = streak.AnchorToday
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Service{
		store:    store,
		params:   sm2.DefaultParams(),
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		clock:    time.Now,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Service) now() time.Time {
	return s.clock().In(s.opts.Location)
}

func (s *Service) today() civil.Date {
	return civil.DateOf(s.now())
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	return nil
}

// SubmitRequest is one rating of one card.
type SubmitRequest struct {
	UserID int64         `validate:"gt=0"`
	CardID int64         `validate:"gt=0"`
	Rating domain.Rating `validate:"min=1,max=4"`
	Cram   bool
}

// SubmitRating schedules the card and records the review. The card must
// belong to a deck owned by the user. Either both the review state and the
// daily counters are written or neither is.
func (s *Service) SubmitRating(ctx context.Context, req SubmitRequest) (domain.ReviewState, error) {
	if err := s.check(req); err != nil {
		return domain.ReviewState{}, err
	}

	mode := domain.ReviewNormal
	if req.Cram {
		mode = domain.ReviewCram
	}
	now := s.now()

	var next domain.ReviewState
	err := s.store.Review(ctx, req.UserID, req.CardID, func(ctx context.Context, rt *storage.ReviewTx) error {
		card, ownerID, err := rt.CardOwner(ctx, req.CardID)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && ownerID != req.UserID) {
			return fmt.Errorf("%w: user %d, card %d", domain.ErrForbidden, req.UserID, req.CardID)
		}
		if err != nil {
			return err
		}

		current, err := rt.ReviewState(ctx, req.UserID, req.CardID)
		if err != nil {
			return err
		}
		next, err = s.params.Schedule(current, req.Rating, mode, now)
		if err != nil {
			return err
		}
		if err := rt.SaveReviewState(ctx, next); err != nil {
			return err
		}
		return rt.RecordReview(ctx, req.UserID, card.DeckID, civil.DateOf(now), req.Rating.Passed())
	})
	if err != nil {
		if !errors.Is(err, domain.ErrForbidden) && !errors.Is(err, domain.ErrValidation) {
			err = fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}
		s.log.WarnContext(ctx, "rating rejected", "user_id", req.UserID, "card_id", req.CardID, "error", err)
		return domain.ReviewState{}, err
	}

	s.log.InfoContext(ctx, "card reviewed",
		"user_id", req.UserID,
		"card_id", req.CardID,
		"rating", req.Rating.String(),
		"mode", mode.String(),
		"interval", next.Interval,
		"next_review", next.NextReview.String(),
	)
	return next, nil
}

// BatchRequest asks for the next cards to study.
type BatchRequest struct {
	UserID   int64              `validate:"gt=0"`
	DeckID   int64              `validate:"gte=0"` // 0 means all decks
	Mode     domain.SessionMode `validate:"omitempty,oneof=due all cram"`
	CardType domain.CardType    `validate:"omitempty,oneof=all new learning mastered failed"`
	Limit    int                `validate:"gte=0,lte=200"`
}

// BatchItem is a card offered for study with its badge.
type BatchItem struct {
	Card   domain.Card
	State  domain.ReviewState
	Status domain.Status
}

// StudyBatch returns up to Limit cards for a session. An unknown deck, or one
// owned by someone else, yields an empty batch.
func (s *Service) StudyBatch(ctx context.Context, req BatchRequest) ([]BatchItem, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = domain.SessionDue
	}
	if req.CardType == "" {
		req.CardType = domain.CardTypeAll
	}
	if req.Limit == 0 {
		req.Limit = s.opts.BatchLimit
	}

	candidates, err := s.store.StudyCandidates(ctx, req.UserID, req.DeckID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	s.rngMu.Lock()
	picked := selector.Select(candidates, selector.Query{
		Mode:     req.Mode,
		CardType: req.CardType,
		Limit:    req.Limit,
	}, s.today(), s.rng)
	s.rngMu.Unlock()

	return lo.Map(picked, func(it domain.StudyItem, _ int) BatchItem {
		return BatchItem{Card: it.Card, State: it.State, Status: it.State.Status()}
	}), nil
}

// StreakSummary reports a user's study continuity.
type StreakSummary struct {
	Current      int
	Longest      int
	StudiedToday bool
}

type streakRequest struct {
	UserID int64 `validate:"gt=0"`
}

// Streak computes the user's current and longest streak.
func (s *Service) Streak(ctx context.Context, userID int64) (StreakSummary, error) {
	if err := s.check(streakRequest{UserID: userID}); err != nil {
		return StreakSummary{}, err
	}
	dates, err := s.store.StudyDates(ctx, userID)
	if err != nil {
		return StreakSummary{}, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	today := s.today()
	return StreakSummary{
		Current:      streak.Current(dates, today, s.opts.Anchor),
		Longest:      streak.Longest(dates),
		StudiedToday: lo.Contains(dates, today),
	}, nil
}

type progressRequest struct {
	UserID    int64 `validate:"gt=0"`
	DailyGoal int   `validate:"gt=0"`
}

// TodayProgress sums today's reviews across all of the user's decks and
// relates them to dailyGoal. A zero dailyGoal uses the configured default.
func (s *Service) TodayProgress(ctx context.Context, userID int64, dailyGoal int) (streak.Progress, error) {
	if dailyGoal == 0 {
		dailyGoal = s.opts.DailyGoal
	}
	if err := s.check(progressRequest{UserID: userID, DailyGoal: dailyGoal}); err != nil {
		return streak.Progress{}, err
	}

	stats, err := s.store.DailyStats(ctx, userID, s.today())
	if err != nil {
		return streak.Progress{}, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	studied := lo.SumBy(stats, func(st domain.DailyStat) int { return st.CardsStudied })
	return streak.TodayProgress(studied, dailyGoal), nil
}
