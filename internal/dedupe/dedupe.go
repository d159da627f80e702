// Package dedupe removes exact-duplicate questions from an accumulated
// result set.
package dedupe

import (
	"strings"

	"github.com/lamim/corpusforge/pkg/models"
)

// Key normalizes a question for duplicate comparison: surrounding whitespace
// trimmed, case folded. Exact match only, no fuzzy or semantic comparison.
func Key(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// Pairs returns a new slice with later duplicates removed. The first
// occurrence wins, even when a later duplicate carries a different answer or
// context, and the surviving pairs keep their original order. The input is
// never mutated.
func Pairs(pairs []models.QAPair) []models.QAPair {
	seen := make(map[string]struct{}, len(pairs))
	out := make([]models.QAPair, 0, len(pairs))
	for _, pair := range pairs {
		key := Key(pair.Question)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, pair)
	}
	return out
}
