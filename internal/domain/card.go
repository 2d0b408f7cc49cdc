package domain

import (
	"strings"
	"time"
)

// Card represents a single question-answer-context entry belonging to a deck.
type Card struct {
	ID       int64
	DeckID   int64
	Hash     string
	Question string
	Answer   string
	Context  string
}

// SourceType tells the sync process how to fetch a deck's markdown files.
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceGit   SourceType = "git"
)

// DetectSourceType guesses whether path is a git remote or a local directory.
func DetectSourceType(path string) SourceType {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return SourceGit
	}
	return SourceLocal
}

// Deck is a collection of cards owned by exactly one user.
type Deck struct {
	ID          int64
	OwnerID     int64
	Name        string
	SourcePath  string
	SourceType  SourceType
	LastScanned *time.Time
}

