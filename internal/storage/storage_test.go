package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/cardstreak/internal/domain"
)

var today = civil.Date{Year: 2025, Month: time.June, Day: 2}

func setupDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cardstreak.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedDeck(t *testing.T, db *DB, ownerID int64, hashes ...string) (int64, []int64) {
	t.Helper()
	ctx := context.Background()
	deckID, err := db.InsertDeck(ctx, domain.Deck{OwnerID: ownerID, Name: "deck", SourcePath: t.TempDir()})
	require.NoError(t, err)

	var cardIDs []int64
	require.NoError(t, db.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
		for _, h := range hashes {
			if _, err := InsertCard(ctx, tx, domain.Card{DeckID: deckID, Hash: h, Question: "Q " + h}); err != nil {
				return err
			}
		}
		ids, err := CardHashes(ctx, tx, deckID)
		for _, h := range hashes {
			cardIDs = append(cardIDs, ids[h])
		}
		return err
	}))
	return deckID, cardIDs
}

func TestReviewStateRoundTrip(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	_, cards := seedDeck(t, db, 1, "a")

	next := today.AddDays(6)
	reviewed := time.Date(2025, time.June, 2, 9, 15, 0, 0, time.UTC)
	want := domain.ReviewState{
		UserID:       1,
		CardID:       cards[0],
		EaseFactor:   2.36,
		Interval:     6,
		Repetitions:  2,
		NextReview:   &next,
		LastReviewed: &reviewed,
	}

	require.NoError(t, db.Review(ctx, 1, cards[0], func(ctx context.Context, rt *ReviewTx) error {
		return rt.SaveReviewState(ctx, want)
	}))

	got, err := db.GetReviewState(ctx, 1, cards[0])
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.EaseFactor, got.EaseFactor)
	assert.Equal(t, want.Interval, got.Interval)
	assert.Equal(t, want.Repetitions, got.Repetitions)
	require.NotNil(t, got.NextReview)
	assert.Equal(t, next, *got.NextReview)
	require.NotNil(t, got.LastReviewed)
	assert.True(t, reviewed.Equal(*got.LastReviewed))
}

func TestReviewStateAbsent(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	_, cards := seedDeck(t, db, 1, "a")

	got, err := db.GetReviewState(ctx, 1, cards[0])
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, db.Review(ctx, 1, cards[0], func(ctx context.Context, rt *ReviewTx) error {
		s, err := rt.ReviewState(ctx, 1, cards[0])
		require.NoError(t, err)
		assert.Equal(t, domain.NewReviewState(1, cards[0]), s)
		assert.True(t, s.IsNew())
		return nil
	}))
}

func TestSaveReviewStateUpserts(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	_, cards := seedDeck(t, db, 1, "a")

	for _, reps := range []int{1, 2, 0} {
		s := domain.NewReviewState(1, cards[0])
		s.Repetitions = reps
		s.Interval = 1
		require.NoError(t, db.Review(ctx, 1, cards[0], func(ctx context.Context, rt *ReviewTx) error {
			return rt.SaveReviewState(ctx, s)
		}))
	}

	got, err := db.GetReviewState(ctx, 1, cards[0])
	require.NoError(t, err)
	assert.Equal(t, 0, got.Repetitions)
	assert.Nil(t, got.NextReview)
}

func TestRecordReviewIncrements(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	deckID, cards := seedDeck(t, db, 1, "a")

	for _, correct := range []bool{true, false} {
		require.NoError(t, db.Review(ctx, 1, cards[0], func(ctx context.Context, rt *ReviewTx) error {
			return rt.RecordReview(ctx, 1, deckID, today, correct)
		}))
	}

	stats, err := db.DailyStats(ctx, 1, today)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].CardsStudied)
	assert.Equal(t, 1, stats[0].CorrectAnswers)
	assert.Equal(t, deckID, stats[0].DeckID)
}

func TestReviewRollsBackOnError(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	deckID, cards := seedDeck(t, db, 1, "a")

	boom := errors.New("boom")
	err := db.Review(ctx, 1, cards[0], func(ctx context.Context, rt *ReviewTx) error {
		s := domain.NewReviewState(1, cards[0])
		s.Repetitions = 3
		require.NoError(t, rt.SaveReviewState(ctx, s))
		require.NoError(t, rt.RecordReview(ctx, 1, deckID, today, true))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := db.GetReviewState(ctx, 1, cards[0])
	require.NoError(t, err)
	assert.Nil(t, got)

	stats, err := db.DailyStats(ctx, 1, today)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestCardOwner(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	deckID, cards := seedDeck(t, db, 42, "a")

	require.NoError(t, db.Review(ctx, 42, cards[0], func(ctx context.Context, rt *ReviewTx) error {
		card, owner, err := rt.CardOwner(ctx, cards[0])
		require.NoError(t, err)
		assert.Equal(t, int64(42), owner)
		assert.Equal(t, deckID, card.DeckID)

		_, _, err = rt.CardOwner(ctx, 9999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	}))
}

func TestStudyCandidatesScopes(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	deckA, cardsA := seedDeck(t, db, 1, "a1", "a2")
	deckB, _ := seedDeck(t, db, 1, "b1")
	foreign, _ := seedDeck(t, db, 2, "x1")

	next := today.AddDays(3)
	require.NoError(t, db.Review(ctx, 1, cardsA[0], func(ctx context.Context, rt *ReviewTx) error {
		s := domain.ReviewState{UserID: 1, CardID: cardsA[0], EaseFactor: 2.6, Interval: 3, Repetitions: 2, NextReview: &next}
		return rt.SaveReviewState(ctx, s)
	}))

	all, err := db.StudyCandidates(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onlyA, err := db.StudyCandidates(ctx, 1, deckA)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, 2, onlyA[0].State.Repetitions)
	assert.Equal(t, next, *onlyA[0].State.NextReview)
	assert.True(t, onlyA[1].State.IsNew())
	assert.Equal(t, domain.InitialEaseFactor, onlyA[1].State.EaseFactor)

	onlyB, err := db.StudyCandidates(ctx, 1, deckB)
	require.NoError(t, err)
	assert.Len(t, onlyB, 1)

	none, err := db.StudyCandidates(ctx, 1, foreign)
	require.NoError(t, err)
	assert.Empty(t, none)

	none, err = db.StudyCandidates(ctx, 1, 12345)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStudyDates(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	deckA, cards := seedDeck(t, db, 1, "a")
	deckB, _ := seedDeck(t, db, 1, "b")

	days := []struct {
		deck int64
		day  civil.Date
	}{
		{deckA, today},
		{deckB, today},
		{deckA, today.AddDays(-1)},
		{deckA, today.AddDays(-5)},
	}
	for _, d := range days {
		require.NoError(t, db.Review(ctx, 1, cards[0], func(ctx context.Context, rt *ReviewTx) error {
			return rt.RecordReview(ctx, 1, d.deck, d.day, true)
		}))
	}

	dates, err := db.StudyDates(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{today, today.AddDays(-1), today.AddDays(-5)}, dates)

	dates, err = db.StudyDates(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestDeleteCardCascades(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	_, cards := seedDeck(t, db, 1, "a")

	require.NoError(t, db.Review(ctx, 1, cards[0], func(ctx context.Context, rt *ReviewTx) error {
		return rt.SaveReviewState(ctx, domain.NewReviewState(1, cards[0]))
	}))
	require.NoError(t, db.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
		return DeleteCard(ctx, tx, cards[0])
	}))

	got, err := db.GetReviewState(ctx, 1, cards[0])
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileDSNKeepsForeignKeys(t *testing.T) {
	testCases := map[string]string{
		"bare":       "",
		"with query": "?mode=rwc",
	}

	for name, query := range testCases {
		t.Run(name, func(t *testing.T) {
			db, err := Open("file:" + filepath.Join(t.TempDir(), "dsn.db") + query)
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			ctx := context.Background()
			_, cards := seedDeck(t, db, 1, "a")

			require.NoError(t, db.Review(ctx, 1, cards[0], func(ctx context.Context, rt *ReviewTx) error {
				return rt.SaveReviewState(ctx, domain.NewReviewState(1, cards[0]))
			}))
			require.NoError(t, db.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
				return DeleteCard(ctx, tx, cards[0])
			}))

			got, err := db.GetReviewState(ctx, 1, cards[0])
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestDSN(t *testing.T) {
	testCases := map[string]string{
		"cards.db":              "file:cards.db?" + connPragmas,
		"file:cards.db":         "file:cards.db?" + connPragmas,
		"file:cards.db?mode=ro": "file:cards.db?mode=ro&" + connPragmas,
	}
	for in, want := range testCases {
		assert.Equal(t, want, dsn(in), in)
	}
}

func TestDeleteDeckKeepsStudyHistory(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	deckID, cards := seedDeck(t, db, 1, "a")

	require.NoError(t, db.Review(ctx, 1, cards[0], func(ctx context.Context, rt *ReviewTx) error {
		if err := rt.SaveReviewState(ctx, domain.NewReviewState(1, cards[0])); err != nil {
			return err
		}
		return rt.RecordReview(ctx, 1, deckID, today, true)
	}))

	require.NoError(t, db.DeleteDeck(ctx, deckID))

	dates, err := db.StudyDates(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{today}, dates)

	stats, err := db.DailyStats(ctx, 1, today)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].CardsStudied)

	st, err := db.GetReviewState(ctx, 1, cards[0])
	require.NoError(t, err)
	assert.Nil(t, st, "review states go with their cards")
}

func TestDecks(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	id, err := db.InsertDeck(ctx, domain.Deck{OwnerID: 3, Name: "go", SourcePath: "https://example.com/cards.git"})
	require.NoError(t, err)

	d, err := db.GetDeck(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, domain.SourceGit, d.SourceType)
	assert.Nil(t, d.LastScanned)

	at := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, MarkDeckScanned(ctx, db.conn, id, at))
	d, err = db.GetDeck(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, d.LastScanned)
	assert.True(t, at.Equal(*d.LastScanned))

	_, err = db.InsertDeck(ctx, domain.Deck{OwnerID: 3, Name: "dup", SourcePath: "https://example.com/cards.git"})
	assert.Error(t, err)

	decks, err := db.ListDecks(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, decks, 1)

	require.NoError(t, db.DeleteDeck(ctx, id))
	d, err = db.GetDeck(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestConcurrentReviewsDoNotLoseUpdates(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	deckID, cards := seedDeck(t, db, 1, "a")

	const writers = 16
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Review(ctx, 1, cards[0], func(ctx context.Context, rt *ReviewTx) error {
				s, err := rt.ReviewState(ctx, 1, cards[0])
				if err != nil {
					return err
				}
				s.Repetitions++
				if err := rt.SaveReviewState(ctx, s); err != nil {
					return err
				}
				return rt.RecordReview(ctx, 1, deckID, today, true)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := db.GetReviewState(ctx, 1, cards[0])
	require.NoError(t, err)
	assert.Equal(t, writers, got.Repetitions)

	stats, err := db.DailyStats(ctx, 1, today)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, writers, stats[0].CardsStudied)
}

func TestKeyLocksReleaseEntries(t *testing.T) {
	k := newKeyLocks()
	unlock := k.lock(reviewKey{1, 2})
	assert.Len(t, k.locks, 1)
	unlock()
	assert.Empty(t, k.locks)
}
