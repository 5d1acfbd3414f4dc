package voice

import (
	"cmp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the minimum similarity for an id to be suggested.
const suggestThreshold = 0.75

// Suggest returns up to n ids from known that look or sound like id, most
// similar first. It is used to answer requests for voices that do not exist.
//
// Similarity is the best Jaro-Winkler score over the whole id and its words
// (split on "_", "-" and spaces), raised when the Double Metaphone codes of
// any word pair agree ("maria" and "marya" both encode to MR).
func Suggest(id string, known []string, n int) []string {
	id = strings.ToLower(NormalizeID(id))
	if id == "" || n <= 0 {
		return nil
	}
	words := splitWords(id)
	codes := metaphones(words)

	type scored struct {
		id    string
		score float64
	}
	var out []scored
	for _, k := range known {
		lk := strings.ToLower(k)
		kw := splitWords(lk)
		score := similarity(id, lk, words, kw)
		if overlaps(codes, metaphones(kw)) {
			score = min(1, score+0.1)
		}
		if score >= suggestThreshold {
			out = append(out, scored{k, score})
		}
	}
	slices.SortFunc(out, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})

	ids := make([]string, 0, min(n, len(out)))
	for _, s := range out[:min(n, len(out))] {
		ids = append(ids, s.id)
	}
	return ids
}

func splitWords(id string) []string {
	return strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
}

func similarity(a, b string, aw, bw []string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	for _, x := range aw {
		for _, y := range bw {
			if s := matchr.JaroWinkler(x, y, false); s > score {
				score = s
			}
		}
	}
	return score
}

func metaphones(words []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(words)*2)
	for _, w := range words {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
