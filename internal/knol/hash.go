// Package knol fingerprints cards so a deck sync can tell the cards it
// already knows from new ones.
package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/samber/lo"

	"github.com/conorfennell/cardstreak/internal/domain"
)

func normalize(part string) string {
	part = strings.ReplaceAll(part, "\r\n", "\n")
	return strings.ToLower(strings.TrimSpace(part))
}

// Hash returns the SHA-256 of the card's normalized question, answer and
// context. Case, surrounding whitespace and line endings do not affect it.
func Hash(card domain.Card) string {
	h := sha256.New()
	for i, part := range []string{card.Question, card.Answer, card.Context} {
		if i > 0 {
			// Keeps "ab"+"c" distinct from "a"+"bc".
			h.Write([]byte{'\n'})
		}
		io.WriteString(h, normalize(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Stamp assigns deckID and a hash to every card and drops repeats, keeping
// the first occurrence.
func Stamp(deckID int64, cards []domain.Card) []domain.Card {
	stamped := lo.Map(cards, func(c domain.Card, _ int) domain.Card {
		c.DeckID = deckID
		c.Hash = Hash(c)
		return c
	})
	return lo.UniqBy(stamped, func(c domain.Card) string { return c.Hash })
}
