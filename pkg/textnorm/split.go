package textnorm

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var sentenceEndRe = regexp.MustCompile(`[.!?]` + ws + `+`)

// Split breaks text into chunks of at most maxChars runes, preferring
// sentence boundaries and falling back to ", " separated parts for
// sentences that are too long on their own. A part that is still longer
// than maxChars is returned intact as its own chunk.
//
// Text that already fits is returned as the only chunk. Empty text yields
// no chunks; any other input yields at least one.
func (n *Normalizer) Split(text string, maxChars int) []string {
	return Split(text, maxChars)
}

// Split is the language-independent implementation behind
// [Normalizer.Split].
func Split(text string, maxChars int) []string {
	if text == "" {
		return nil
	}
	if runeLen(text) <= maxChars {
		return []string{text}
	}

	var (
		chunks []string
		cur    string
	)
	flush := func() {
		c := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(cur), ","))
		if c != "" {
			chunks = append(chunks, c)
		}
		cur = ""
	}

	for _, sentence := range splitSentences(text) {
		switch {
		case runeLen(sentence) > maxChars:
			if strings.TrimSpace(cur) != "" {
				flush()
			}
			cur = ""
			for _, part := range strings.Split(sentence, ", ") {
				if runeLen(cur)+runeLen(part) < maxChars {
					cur += part + ", "
					continue
				}
				flush()
				cur = part + ", "
			}
		case runeLen(cur)+runeLen(sentence) < maxChars:
			cur += " " + sentence
		default:
			flush()
			cur = sentence
		}
	}
	flush()

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// splitSentences cuts text at every whitespace run that directly follows
// '.', '!' or '?'. The punctuation stays with the preceding sentence and
// the whitespace is dropped.
func splitSentences(text string) []string {
	var out []string
	prev := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		out = append(out, text[prev:loc[0]+1])
		prev = loc[1]
	}
	return append(out, text[prev:])
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
