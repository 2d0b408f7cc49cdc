// Package parser extracts flashcards from markdown.
//
// A card starts at a "Q:" line and may carry "A:" and "C:" (context)
// sections. Lines without a prefix continue the current section. A line
// consisting of "---" ends the current card.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/cardstreak/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	separator      = "---"
)

type builder struct {
	cards []domain.Card
	cur   domain.Card
	field *string // section being read, nil between cards
	lines []string
}

func (b *builder) flushField() {
	if b.field != nil {
		*b.field = strings.TrimRight(strings.Join(b.lines, "\n"), " \t\n")
	}
	b.lines = nil
}

func (b *builder) flushCard() {
	b.flushField()
	b.field = nil
	if strings.TrimSpace(b.cur.Question) != "" {
		b.cards = append(b.cards, b.cur)
	}
	b.cur = domain.Card{}
}

func (b *builder) start(field *string, rest string) {
	b.flushField()
	b.field = field
	b.lines = []string{strings.TrimPrefix(rest, " ")}
}

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards.
func Parse(r io.Reader) ([]domain.Card, error) {
	var b builder
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		switch {
		case line == separator:
			b.flushCard()
		case strings.HasPrefix(line, questionPrefix):
			if b.field != nil {
				b.flushCard()
			}
			b.start(&b.cur.Question, line[len(questionPrefix):])
		case strings.HasPrefix(line, answerPrefix):
			b.start(&b.cur.Answer, line[len(answerPrefix):])
		case strings.HasPrefix(line, contextPrefix):
			b.start(&b.cur.Context, line[len(contextPrefix):])
		case b.field != nil:
			b.lines = append(b.lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	b.flushCard()
	return b.cards, nil
}

// ParseDir parses every .md file below root. A file that fails to parse is
// reported in errs and skipped; err is set only when the walk itself fails.
func ParseDir(root string) (cards []domain.Card, errs []error, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}
		fileCards, parseErr := ParseFile(path)
		if parseErr != nil {
			errs = append(errs, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}
		cards = append(cards, fileCards...)
		return nil
	})
	if err != nil {
		return nil, errs, fmt.Errorf("walking %s: %w", root, err)
	}
	return cards, errs, nil
}
