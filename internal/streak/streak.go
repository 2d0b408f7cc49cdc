// Package streak derives study continuity from the days a user studied.
package streak

import (
	"fmt"
	"math"
	"slices"

	"cloud.google.com/go/civil"
	"github.com/samber/lo"
)

// Anchor decides which day the streak scan starts from.
type Anchor string

const (
	// AnchorToday starts at today; a user who has not studied yet today has
	// a streak of zero.
	AnchorToday Anchor = "today"
	// AnchorYesterday starts at yesterday when today has no activity, so a
	// run ending yesterday is kept alive until the day is over.
	AnchorYesterday Anchor = "yesterday"
)

// ParseAnchor maps a config value onto an Anchor.
func ParseAnchor(s string) (Anchor, error) {
	switch Anchor(s) {
	case "", AnchorToday:
		return AnchorToday, nil
	case AnchorYesterday:
		return AnchorYesterday, nil
	}
	return "", fmt.Errorf("unknown streak anchor %q", s)
}

// Current counts consecutive study days ending at the anchor day.
func Current(studyDates []civil.Date, today civil.Date, anchor Anchor) int {
	studied := lo.Associate(studyDates, func(d civil.Date) (civil.Date, bool) {
		return d, true
	})

	day := today
	if anchor == AnchorYesterday && !studied[today] {
		day = today.AddDays(-1)
	}

	count := 0
	for studied[day] {
		count++
		day = day.AddDays(-1)
	}
	return count
}

// Longest returns the longest run of consecutive study days on record.
func Longest(studyDates []civil.Date) int {
	days := lo.Uniq(studyDates)
	slices.SortFunc(days, func(a, b civil.Date) int {
		switch {
		case a.Before(b):
			return -1
		case a.After(b):
			return 1
		}
		return 0
	})

	longest, run := 0, 0
	for i, d := range days {
		if i > 0 && days[i-1].AddDays(1) == d {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}
	return longest
}

// Progress is today's progress toward the daily goal.
type Progress struct {
	Studied int
	Goal    int
	Percent int
}

// TodayProgress converts a card count into a goal percentage capped at 100.
func TodayProgress(studied, goal int) Progress {
	p := Progress{Studied: studied, Goal: goal}
	if goal > 0 {
		p.Percent = min(100, int(math.Round(float64(studied)/float64(goal)*100)))
	}
	return p
}
