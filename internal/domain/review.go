package domain

import (
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
)

// InitialEaseFactor is the ease factor assigned to a card the first time a
// user reviews it.
const InitialEaseFactor = 2.5

// LearningThreshold is the highest repetition count still considered
// "learning". Cards above it are mastered. The selector and the status labels
// both classify through ReviewState.Status so they cannot disagree.
const LearningThreshold = 3

// Rating is the learner's self-assessment of a single recall.
type Rating int

const (
	Failed Rating = iota + 1 // Could not recall.
	Hard                     // Recalled with serious effort.
	Good                     // Recalled after some hesitation.
	Easy                     // Recalled immediately.
)

var ratingNames = [...]string{Failed: "failed", Hard: "hard", Good: "good", Easy: "easy"}

// IsValid reports whether r is one of Failed, Hard, Good or Easy.
func (r Rating) IsValid() bool {
	return r >= Failed && r <= Easy
}

// Passed reports whether the rating counts as a successful recall.
func (r Rating) Passed() bool {
	return r >= Good
}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating accepts either the numeric value or the lowercase name.
func ParseRating(s string) (Rating, error) {
	for r := Failed; r <= Easy; r++ {
		if s == ratingNames[r] || s == strconv.Itoa(int(r)) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown rating %q", ErrValidation, s)
}

// ReviewMode selects how the scheduler treats a rating.
type ReviewMode int

const (
	// ReviewNormal applies the SM-2 update including the ease factor.
	ReviewNormal ReviewMode = iota
	// ReviewCram keeps the ease factor and schedules the card within days.
	ReviewCram
)

func (m ReviewMode) String() string {
	if m == ReviewCram {
		return "cram"
	}
	return "normal"
}

// SessionMode chooses which cards a study batch is drawn from.
type SessionMode string

const (
	SessionDue  SessionMode = "due"
	SessionAll  SessionMode = "all"
	SessionCram SessionMode = "cram"
)

// CardType narrows a study batch by learning stage.
type CardType string

const (
	CardTypeAll      CardType = "all"
	CardTypeNew      CardType = "new"
	CardTypeLearning CardType = "learning"
	CardTypeMastered CardType = "mastered"
	CardTypeFailed   CardType = "failed"
)

// Status is the badge shown next to a card in a study batch.
type Status string

const (
	StatusNew      Status = "new"
	StatusFailed   Status = "failed"
	StatusLearning Status = "learning"
	StatusMastered Status = "mastered"
)

// ReviewState is a user's retention state for one card.
type ReviewState struct {
	UserID       int64
	CardID       int64
	EaseFactor   float64
	Interval     int
	Repetitions  int
	NextReview   *civil.Date
	LastReviewed *time.Time
}

// NewReviewState returns the state of a card the user has never rated.
func NewReviewState(userID, cardID int64) ReviewState {
	return ReviewState{
		UserID:     userID,
		CardID:     cardID,
		EaseFactor: InitialEaseFactor,
	}
}

// IsNew reports whether the card has never been reviewed.
func (s ReviewState) IsNew() bool {
	return s.Repetitions == 0 && s.NextReview == nil
}

// IsFailed reports whether the last review reset the card.
func (s ReviewState) IsFailed() bool {
	return s.Repetitions == 0 && s.NextReview != nil
}

// IsDue reports whether the card should be offered on day today.
func (s ReviewState) IsDue(today civil.Date) bool {
	return s.NextReview == nil || !s.NextReview.After(today)
}

// Status classifies the state for display.
func (s ReviewState) Status() Status {
	switch {
	case s.IsFailed():
		return StatusFailed
	case s.Repetitions == 0:
		return StatusNew
	case s.Repetitions <= LearningThreshold:
		return StatusLearning
	default:
		return StatusMastered
	}
}

// Matches reports whether the state belongs to the given card type.
// CardTypeNew includes failed cards since both have zero repetitions.
func (s ReviewState) Matches(t CardType) bool {
	switch t {
	case CardTypeNew:
		return s.Repetitions == 0
	case CardTypeFailed:
		return s.IsFailed()
	case CardTypeLearning:
		return s.Repetitions >= 1 && s.Repetitions <= LearningThreshold
	case CardTypeMastered:
		return s.Repetitions > LearningThreshold
	default:
		return true
	}
}

// StudyItem pairs a card with the reviewing user's state for it.
type StudyItem struct {
	Card  Card
	State ReviewState
}

// DailyStat holds one user's review counters for one deck on one day.
type DailyStat struct {
	UserID         int64
	DeckID         int64
	Date           civil.Date
	CardsStudied   int
	CorrectAnswers int
}
