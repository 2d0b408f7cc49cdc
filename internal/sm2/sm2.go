package sm2

import (
	"math"
	"time"

	"cloud.google.com/go/civil"

	"github.com/conorfennell/cardstreak/internal/domain"
)

// Params holds the tunables of the SM-2 variant.
type Params struct {
	InitialEase     float64 // ease factor of a never reviewed card
	MinEase         float64 // floor of the ease factor
	FirstInterval   int     // days after the first successful review
	SecondInterval  int     // days after the second successful review
	CramMaxInterval int     // upper bound on cram intervals
}

// DefaultParams returns the classic SM-2 values.
func DefaultParams() *Params {
	return &Params{
		InitialEase:     domain.InitialEaseFactor,
		MinEase:         1.3,
		FirstInterval:   1,
		SecondInterval:  6,
		CramMaxInterval: 3,
	}
}

// Schedule computes the state that follows rating the card at time now.
// The returned state is scheduled relative to now's calendar date in now's
// location. An invalid rating returns the input state and ErrInvalidRating.
func (p *Params) Schedule(state domain.ReviewState, rating domain.Rating, mode domain.ReviewMode, now time.Time) (domain.ReviewState, error) {
	if !rating.IsValid() {
		return state, domain.ErrInvalidRating
	}

	next := state
	if next.EaseFactor == 0 {
		next.EaseFactor = p.InitialEase
	}

	switch {
	case !rating.Passed():
		next.Repetitions = 0
		next.Interval = 1
	case mode == domain.ReviewCram:
		next.Repetitions++
		next.Interval = clamp(int(rating), 1, p.CramMaxInterval)
	default:
		next.Repetitions++
		switch next.Repetitions {
		case 1:
			next.Interval = p.FirstInterval
		case 2:
			next.Interval = p.SecondInterval
		default:
			// Uses the interval and ease from before this review.
			next.Interval = int(math.Round(float64(state.Interval) * next.EaseFactor))
		}
	}

	if mode == domain.ReviewNormal {
		next.EaseFactor = p.NextEase(next.EaseFactor, rating)
	}

	due := NextReviewDate(now, next.Interval)
	reviewed := now
	next.NextReview = &due
	next.LastReviewed = &reviewed
	return next, nil
}

// NextEase applies the SM-2 ease adjustment for one rating, floored at MinEase.
func (p *Params) NextEase(ease float64, rating domain.Rating) float64 {
	q := float64(5 - int(rating))
	return math.Max(p.MinEase, ease+(0.1-q*(0.08+q*0.02)))
}

// NextReviewDate returns the calendar day interval days after now.
func NextReviewDate(now time.Time, interval int) civil.Date {
	return civil.DateOf(now).AddDays(interval)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
