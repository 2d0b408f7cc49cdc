package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/conorfennell/cardstreak/internal/domain"
)

// ReviewTx is the write side of a single rating submission. All of its
// methods run inside one transaction opened by DB.Review.
type ReviewTx struct {
	tx DBTX
}

// Review serializes submissions for the same (user, card) and runs fn inside
// a transaction. Nothing fn wrote persists if it returns an error.
func (db *DB) Review(ctx context.Context, userID, cardID int64, fn func(ctx context.Context, rt *ReviewTx) error) error {
	unlock := db.locks.lock(reviewKey{userID: userID, cardID: cardID})
	defer unlock()

	return db.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, &ReviewTx{tx: tx})
	})
}

// CardOwner returns the card and the user owning its deck, or ErrNotFound.
func (rt *ReviewTx) CardOwner(ctx context.Context, cardID int64) (domain.Card, int64, error) {
	var (
		c       domain.Card
		ownerID int64
	)
	err := rt.tx.QueryRowContext(ctx, `
		SELECT c.id, c.deck_id, c.hash, c.question, c.answer, c.context, d.owner_id
		FROM cards c JOIN decks d ON d.id = c.deck_id
		WHERE c.id = ?
	`, cardID).Scan(&c.ID, &c.DeckID, &c.Hash, &c.Question, &c.Answer, &c.Context, &ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, 0, fmt.Errorf("card %d: %w", cardID, domain.ErrNotFound)
		}
		return domain.Card{}, 0, fmt.Errorf("failed to look up owner of card %d: %w", cardID, err)
	}
	return c, ownerID, nil
}

// ReviewState returns the stored state, or the initial state if the user has
// never rated the card.
func (rt *ReviewTx) ReviewState(ctx context.Context, userID, cardID int64) (domain.ReviewState, error) {
	s, err := getReviewState(ctx, rt.tx, userID, cardID)
	if err != nil {
		return domain.ReviewState{}, err
	}
	if s == nil {
		return domain.NewReviewState(userID, cardID), nil
	}
	return *s, nil
}

// SaveReviewState writes the state with a single atomic upsert.
func (rt *ReviewTx) SaveReviewState(ctx context.Context, s domain.ReviewState) error {
	_, err := rt.tx.ExecContext(ctx, `
		INSERT INTO review_states (user_id, card_id, ease_factor, interval, repetitions, next_review, last_reviewed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, card_id) DO UPDATE SET
			ease_factor = excluded.ease_factor,
			interval = excluded.interval,
			repetitions = excluded.repetitions,
			next_review = excluded.next_review,
			last_reviewed = excluded.last_reviewed
	`, s.UserID, s.CardID, s.EaseFactor, s.Interval, s.Repetitions, nullDate(s.NextReview), nullTime(s.LastReviewed))
	if err != nil {
		return fmt.Errorf("failed to save review state for user %d card %d: %w", s.UserID, s.CardID, err)
	}
	return nil
}

// RecordReview bumps the (user, deck, day) counters. It is the only writer
// of daily_stats and must run in the same transaction as SaveReviewState.
func (rt *ReviewTx) RecordReview(ctx context.Context, userID, deckID int64, day civil.Date, correct bool) error {
	var inc int
	if correct {
		inc = 1
	}
	_, err := rt.tx.ExecContext(ctx, `
		INSERT INTO daily_stats (user_id, deck_id, date, cards_studied, correct_answers)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (user_id, deck_id, date) DO UPDATE SET
			cards_studied = cards_studied + 1,
			correct_answers = correct_answers + excluded.correct_answers
	`, userID, deckID, day.String(), inc)
	if err != nil {
		return fmt.Errorf("failed to record review for user %d deck %d: %w", userID, deckID, err)
	}
	return nil
}

// GetReviewState returns the stored state, or nil if the user never rated the card.
func (db *DB) GetReviewState(ctx context.Context, userID, cardID int64) (*domain.ReviewState, error) {
	return getReviewState(ctx, db.conn, userID, cardID)
}

func getReviewState(ctx context.Context, q DBTX, userID, cardID int64) (*domain.ReviewState, error) {
	s := domain.ReviewState{UserID: userID, CardID: cardID}
	var (
		next     sql.NullString
		reviewed sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT ease_factor, interval, repetitions, next_review, last_reviewed
		FROM review_states WHERE user_id = ? AND card_id = ?
	`, userID, cardID).Scan(&s.EaseFactor, &s.Interval, &s.Repetitions, &next, &reviewed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get review state for user %d card %d: %w", userID, cardID, err)
	}
	if err := fillDates(&s, next, reviewed); err != nil {
		return nil, err
	}
	return &s, nil
}

// StudyCandidates returns every card in decks owned by userID, paired with
// the user's state for it. deckID 0 means all of the user's decks; an
// unknown or foreign deck yields no rows.
func (db *DB) StudyCandidates(ctx context.Context, userID, deckID int64) ([]domain.StudyItem, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.id, c.deck_id, c.hash, c.question, c.answer, c.context,
		       rs.ease_factor, rs.interval, rs.repetitions, rs.next_review, rs.last_reviewed
		FROM cards c
		JOIN decks d ON d.id = c.deck_id
		LEFT JOIN review_states rs ON rs.card_id = c.id AND rs.user_id = ?
		WHERE d.owner_id = ? AND (? = 0 OR c.deck_id = ?)
		ORDER BY c.id
	`, userID, userID, deckID, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to query study candidates for user %d: %w", userID, err)
	}
	defer rows.Close()

	var items []domain.StudyItem
	for rows.Next() {
		var (
			it       domain.StudyItem
			ease     sql.NullFloat64
			interval sql.NullInt64
			reps     sql.NullInt64
			next     sql.NullString
			reviewed sql.NullTime
		)
		if err := rows.Scan(&it.Card.ID, &it.Card.DeckID, &it.Card.Hash, &it.Card.Question, &it.Card.Answer, &it.Card.Context,
			&ease, &interval, &reps, &next, &reviewed); err != nil {
			return nil, fmt.Errorf("failed to scan study candidate: %w", err)
		}
		it.State = domain.NewReviewState(userID, it.Card.ID)
		if ease.Valid {
			it.State.EaseFactor = ease.Float64
			it.State.Interval = int(interval.Int64)
			it.State.Repetitions = int(reps.Int64)
		}
		if err := fillDates(&it.State, next, reviewed); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// StudyDates returns the distinct days on which userID reviewed anything.
func (db *DB) StudyDates(ctx context.Context, userID int64) ([]civil.Date, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT date FROM daily_stats
		WHERE user_id = ? AND cards_studied > 0
		ORDER BY date DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query study dates for user %d: %w", userID, err)
	}
	defer rows.Close()

	var dates []civil.Date
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan study date: %w", err)
		}
		d, err := civil.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("bad study date %q: %w", raw, err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// DailyStats returns userID's counters for one day, one row per deck.
func (db *DB) DailyStats(ctx context.Context, userID int64, day civil.Date) ([]domain.DailyStat, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT deck_id, cards_studied, correct_answers FROM daily_stats
		WHERE user_id = ? AND date = ?
		ORDER BY deck_id
	`, userID, day.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats for user %d: %w", userID, err)
	}
	defer rows.Close()

	var stats []domain.DailyStat
	for rows.Next() {
		s := domain.DailyStat{UserID: userID, Date: day}
		if err := rows.Scan(&s.DeckID, &s.CardsStudied, &s.CorrectAnswers); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func fillDates(s *domain.ReviewState, next sql.NullString, reviewed sql.NullTime) error {
	if next.Valid {
		d, err := civil.ParseDate(next.String)
		if err != nil {
			return fmt.Errorf("bad next_review %q for card %d: %w", next.String, s.CardID, err)
		}
		s.NextReview = &d
	}
	if reviewed.Valid {
		t := reviewed.Time
		s.LastReviewed = &t
	}
	return nil
}

func nullDate(d *civil.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
