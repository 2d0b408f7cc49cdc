// Package sync reconciles decks with the markdown files they are built from.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/cardstreak/internal/domain"
	"github.com/conorfennell/cardstreak/internal/gitsource"
	"github.com/conorfennell/cardstreak/internal/knol"
	"github.com/conorfennell/cardstreak/internal/parser"
	"github.com/conorfennell/cardstreak/internal/storage"
)

// maxParallel bounds concurrent deck syncs; the database is a single writer
// anyway, the parallelism is for git network round trips.
const maxParallel = 4

// Report summarizes one deck reconciliation.
type Report struct {
	DeckID  int64
	Path    string
	Parsed  int
	Added   int
	Removed int
	Errors  []error
}

// Syncer pulls deck sources and reconciles their cards into storage.
type Syncer struct {
	db       *storage.DB
	log      *slog.Logger
	reposDir string
	progress io.Writer
	now      func() time.Time
}

// New returns a Syncer that checks git decks out below reposDir.
func New(db *storage.DB, log *slog.Logger, reposDir string) *Syncer {
	return &Syncer{
		db:       db,
		log:      log,
		reposDir: reposDir,
		now:      time.Now,
	}
}

// WithProgress sends git clone/pull progress output to w.
func (s *Syncer) WithProgress(w io.Writer) *Syncer {
	s.progress = w
	return s
}

// SyncAll reconciles every deck owned by ownerID (all decks when 0). A deck
// that fails is logged and reported; it does not stop the others.
func (s *Syncer) SyncAll(ctx context.Context, ownerID int64) ([]Report, error) {
	decks, err := s.db.ListDecks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(decks) == 0 {
		s.log.InfoContext(ctx, "no decks configured, add one with: cardstreak deck add <path/or/url.git>")
		return nil, nil
	}

	reports := make([]Report, len(decks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, deck := range decks {
		g.Go(func() error {
			report, err := s.SyncDeck(gctx, deck)
			if err != nil {
				s.log.ErrorContext(gctx, "deck sync failed", "deck_id", deck.ID, "path", deck.SourcePath, "error", err)
				report.Errors = append(report.Errors, err)
			}
			reports[i] = report
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

// SyncDeck fetches a deck's source if it lives in git, then inserts new cards
// and deletes cards that are gone from the files. Review state of deleted
// cards is removed with them.
func (s *Syncer) SyncDeck(ctx context.Context, deck domain.Deck) (Report, error) {
	report := Report{DeckID: deck.ID, Path: deck.SourcePath}
	log := s.log.With("deck_id", deck.ID, "type", deck.SourceType, "path", deck.SourcePath)
	log.InfoContext(ctx, "syncing deck")

	root := deck.SourcePath
	if deck.SourceType == domain.SourceGit {
		localPath, err := gitsource.LocalPath(s.reposDir, deck.SourcePath)
		if err != nil {
			return report, err
		}
		if err := gitsource.Sync(ctx, log, deck.SourcePath, localPath, s.progress); err != nil {
			return report, err
		}
		root = localPath
	}

	parsed, parseErrs, err := parser.ParseDir(root)
	if err != nil {
		return report, err
	}
	report.Errors = parseErrs
	cards := knol.Stamp(deck.ID, parsed)
	report.Parsed = len(cards)

	err = s.db.WithTx(ctx, func(ctx context.Context, tx storage.DBTX) error {
		known, err := storage.CardHashes(ctx, tx, deck.ID)
		if err != nil {
			return err
		}

		for _, card := range cards {
			delete(known, card.Hash)
			inserted, err := storage.InsertCard(ctx, tx, card)
			if err != nil {
				return err
			}
			if inserted {
				log.DebugContext(ctx, "new card", "hash", card.Hash)
				report.Added++
			}
		}

		for hash, id := range known {
			log.InfoContext(ctx, "orphaned card, deleting", "hash", hash, "card_id", id)
			if err := storage.DeleteCard(ctx, tx, id); err != nil {
				return err
			}
			report.Removed++
		}

		return storage.MarkDeckScanned(ctx, tx, deck.ID, s.now().UTC())
	})
	if err != nil {
		return report, fmt.Errorf("reconcile deck %d: %w", deck.ID, err)
	}

	log.InfoContext(ctx, "reconciliation complete",
		"parsed_cards", report.Parsed,
		"added", report.Added,
		"orphaned_deleted", report.Removed,
		"errors", len(report.Errors),
	)
	return report, nil
}
