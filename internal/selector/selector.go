// Package selector picks the cards offered in a study session.
//
// The store scopes candidates to the user (and optionally a deck); this
// package applies the session mode, the card type filter, the ordering and
// the batch limit. It holds no state and never touches storage.
package selector

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"cloud.google.com/go/civil"
	"github.com/samber/lo"

	"github.com/conorfennell/cardstreak/internal/domain"
)

// DefaultLimit is the batch size used when a query does not set one.
const DefaultLimit = 20

// Query describes one batch request.
type Query struct {
	Mode     domain.SessionMode
	CardType domain.CardType
	Limit    int
}

// Select filters, orders and truncates candidates. rng drives the shuffle;
// callers pass a seeded source to get a reproducible order.
func Select(candidates []domain.StudyItem, q Query, today civil.Date, rng *rand.Rand) []domain.StudyItem {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	items := lo.Filter(candidates, func(item domain.StudyItem, _ int) bool {
		if q.Mode == domain.SessionDue && !item.State.IsDue(today) {
			return false
		}
		return item.State.Matches(q.CardType)
	})
	if len(items) == 0 {
		return []domain.StudyItem{}
	}

	rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})

	if q.Mode == domain.SessionCram {
		// Weakest first; the shuffle only breaks ties.
		slices.SortStableFunc(items, func(a, b domain.StudyItem) int {
			return cmp.Compare(a.State.Repetitions, b.State.Repetitions)
		})
	}

	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
