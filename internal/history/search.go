// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Search returns userID's entries whose query matches text, best match
// first. Every word of text must appear.
func (s *Store) Search(ctx context.Context, userID, text string, limit int) ([]Entry, error) {
	match := ftsQuery(text)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.user_id, e.query, e.created_at, e.documents
		FROM entries_fts
		JOIN entries e ON e.rowid = entries_fts.rowid
		WHERE entries_fts MATCH ? AND e.user_id = ?
		ORDER BY entries_fts.rank
		LIMIT ?`,
		match, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("searching history: %w", err)
	}
	return scanEntries(rows)
}

// ftsQuery quotes each word of text so FTS5 operators in user input are
// matched literally.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for i, w := range words {
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}
