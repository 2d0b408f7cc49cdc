package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/cardstreak/internal/domain"
)

const deckColumns = `id, owner_id, name, source_path, source_type, last_scanned`

type scanner interface {
	Scan(dest ...any) error
}

func scanDeck(row scanner) (domain.Deck, error) {
	var (
		d           domain.Deck
		sourceType  string
		lastScanned sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Name, &d.SourcePath, &sourceType, &lastScanned); err != nil {
		return domain.Deck{}, err
	}
	d.SourceType = domain.SourceType(sourceType)
	if lastScanned.Valid {
		t := lastScanned.Time
		d.LastScanned = &t
	}
	return d, nil
}

// InsertDeck stores a new deck and returns its ID.
func (db *DB) InsertDeck(ctx context.Context, deck domain.Deck) (int64, error) {
	if deck.SourceType == "" {
		deck.SourceType = domain.DetectSourceType(deck.SourcePath)
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO decks (owner_id, name, source_path, source_type)
		VALUES (?, ?, ?, ?)
	`, deck.OwnerID, deck.Name, deck.SourcePath, string(deck.SourceType))
	if err != nil {
		return 0, fmt.Errorf("failed to insert deck %s: %w", deck.SourcePath, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for deck %s: %w", deck.SourcePath, err)
	}
	return id, nil
}

// GetDeck retrieves a deck by ID. It returns nil when no deck matches.
func (db *DB) GetDeck(ctx context.Context, id int64) (*domain.Deck, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+deckColumns+` FROM decks WHERE id = ?`, id)
	d, err := scanDeck(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deck %d: %w", id, err)
	}
	return &d, nil
}

// ListDecks returns the decks owned by ownerID, or every deck when ownerID is 0.
func (db *DB) ListDecks(ctx context.Context, ownerID int64) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+deckColumns+` FROM decks
		WHERE ? = 0 OR owner_id = ?
		ORDER BY id
	`, ownerID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// DeleteDeck removes a deck together with its cards and their review states.
// Daily stats recorded against the deck are kept.
func (db *DB) DeleteDeck(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete deck %d: %w", id, err)
	}
	return nil
}

// MarkDeckScanned records when a deck's source was last reconciled.
func MarkDeckScanned(ctx context.Context, q DBTX, deckID int64, at time.Time) error {
	if _, err := q.ExecContext(ctx, `UPDATE decks SET last_scanned = ? WHERE id = ?`, at, deckID); err != nil {
		return fmt.Errorf("failed to update last scanned for deck %d: %w", deckID, err)
	}
	return nil
}

// InsertCard adds a card to a deck. Cards already present (same hash) are left alone.
func InsertCard(ctx context.Context, q DBTX, card domain.Card) (inserted bool, err error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO cards (deck_id, hash, question, answer, context)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (deck_id, hash) DO NOTHING
	`, card.DeckID, card.Hash, card.Question, card.Answer, card.Context)
	if err != nil {
		return false, fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for card %s: %w", card.Hash, err)
	}
	return n == 1, nil
}

// CardHashes returns the hash → ID map of every card in a deck.
func CardHashes(ctx context.Context, q DBTX, deckID int64) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, hash FROM cards WHERE deck_id = ?`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for deck %d: %w", deckID, err)
	}
	defer rows.Close()

	hashes := make(map[string]int64)
	for rows.Next() {
		var (
			id   int64
			hash string
		)
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan card row for deck %d: %w", deckID, err)
		}
		hashes[hash] = id
	}
	return hashes, rows.Err()
}

// DeleteCard removes a card; its review states go with it.
func DeleteCard(ctx context.Context, q DBTX, id int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete card %d: %w", id, err)
	}
	return nil
}

// GetCard retrieves a card by ID. It returns nil when no card matches.
func (db *DB) GetCard(ctx context.Context, id int64) (*domain.Card, error) {
	var c domain.Card
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, deck_id, hash, question, answer, context FROM cards WHERE id = ?
	`, id).Scan(&c.ID, &c.DeckID, &c.Hash, &c.Question, &c.Answer, &c.Context)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card %d: %w", id, err)
	}
	return &c, nil
}
