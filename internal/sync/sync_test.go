package sync

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/cardstreak/internal/domain"
	"github.com/conorfennell/cardstreak/internal/storage"
)

func setup(t *testing.T) (*storage.DB, *Syncer) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return db, New(db, log, t.TempDir())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSyncDeckAddsAndRemovesCards(t *testing.T) {
	db, syncer := setup(t)
	ctx := context.Background()

	dir := t.TempDir()
	file := filepath.Join(dir, "go.md")
	writeFile(t, file, "Q: One\nA: 1\n\nQ: Two\nA: 2\n")

	id, err := db.InsertDeck(ctx, domain.Deck{OwnerID: 1, Name: "go", SourcePath: dir})
	require.NoError(t, err)
	deck, err := db.GetDeck(ctx, id)
	require.NoError(t, err)

	report, err := syncer.SyncDeck(ctx, *deck)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Parsed)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 0, report.Removed)

	// Re-running without changes is a no-op.
	report, err = syncer.SyncDeck(ctx, *deck)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 0, report.Removed)

	items, err := db.StudyCandidates(ctx, 1, id)
	require.NoError(t, err)
	require.Len(t, items, 2)
	keep, drop := items[0].Card, items[1].Card
	if keep.Question != "One" {
		keep, drop = drop, keep
	}

	require.NoError(t, db.Review(ctx, 1, drop.ID, func(ctx context.Context, rt *storage.ReviewTx) error {
		return rt.SaveReviewState(ctx, domain.NewReviewState(1, drop.ID))
	}))

	writeFile(t, file, "Q: One\nA: 1\n\nQ: Three\nA: 3\n")
	report, err = syncer.SyncDeck(ctx, *deck)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Removed)

	state, err := db.GetReviewState(ctx, 1, drop.ID)
	require.NoError(t, err)
	assert.Nil(t, state, "review state of a removed card must be deleted")

	card, err := db.GetCard(ctx, keep.ID)
	require.NoError(t, err)
	require.NotNil(t, card, "unchanged card keeps its id")

	deck, err = db.GetDeck(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, deck.LastScanned)
}

func TestSyncAll(t *testing.T) {
	db, syncer := setup(t)
	ctx := context.Background()

	good := t.TempDir()
	writeFile(t, filepath.Join(good, "cards.md"), "Q: Hello\nA: World")
	_, err := db.InsertDeck(ctx, domain.Deck{OwnerID: 5, Name: "good", SourcePath: good})
	require.NoError(t, err)
	_, err = db.InsertDeck(ctx, domain.Deck{OwnerID: 5, Name: "missing", SourcePath: filepath.Join(good, "nope")})
	require.NoError(t, err)
	_, err = db.InsertDeck(ctx, domain.Deck{OwnerID: 6, Name: "other", SourcePath: good})
	require.NoError(t, err)

	reports, err := syncer.SyncAll(ctx, 5)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 1, reports[0].Added)
	assert.Empty(t, reports[0].Errors)
	assert.NotEmpty(t, reports[1].Errors)
}

func TestSyncAllNoDecks(t *testing.T) {
	_, syncer := setup(t)
	reports, err := syncer.SyncAll(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, reports)
}
