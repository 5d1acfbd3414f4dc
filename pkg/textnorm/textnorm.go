// Package textnorm turns free-form input text into text a voice-cloning
// synthesis model reads aloud well, and splits it into bounded chunks.
//
// Normalization is a fixed sequence of passes:
//
//  1. phonetic fixes for words the model mispronounces,
//  2. the abbreviation and symbol table, applied rule by rule in order,
//  3. clock times ("8:00", "14:30") to spoken phrases,
//  4. integers to words,
//  5. whitespace and punctuation cleanup.
//
// Rules are held in ordered slices. Later rules observe the output of
// earlier ones, so the order of a [Language]'s tables is part of its
// behaviour.
//
// Typical usage:
//
//	n := textnorm.New(textnorm.Spanish)
//	chunks := n.Split(n.Clean(input), 140)
package textnorm

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Rule is a literal substitution: every occurrence of From becomes To.
type Rule struct {
	From string
	To   string
}

// Language bundles the language-specific parts of normalization.
type Language struct {
	// Name is an informational tag such as "es".
	Name string

	// PhoneticFixes run before anything else.
	PhoneticFixes []Rule

	// Replacements are applied sequentially after PhoneticFixes.
	Replacements []Rule

	// MaxNumber is the largest integer SpellNumber is asked to convert.
	// Larger digit runs stay literal.
	MaxNumber int64

	// SpellNumber returns the spoken form of n. A non-nil error leaves the
	// matched digits untouched.
	SpellNumber func(n int64) (string, error)

	// TimePhrase joins spelled-out hour and minute words into a clock
	// phrase. minute is empty for a full hour.
	TimePhrase func(hour, minute string) string
}

// maxSettleRounds bounds how often the pass sequence is re-applied while
// looking for a fixed point.
const maxSettleRounds = 8

// ws matches what counts as whitespace, including Unicode spaces.
const ws = `[\s\x0B\x{85}\p{Z}]`

var (
	timeRe        = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	digitsRe      = regexp.MustCompile(`\d+`)
	spaceRunRe    = regexp.MustCompile(ws + `+`)
	commaRunRe    = regexp.MustCompile(`,(` + ws + `*,)+`)
	spaceBeforeRe = regexp.MustCompile(ws + `+([.,!?])`)
)

// Option configures a [Normalizer].
type Option func(*Normalizer)

// WithRules appends extra literal rules that run after the language's
// replacement table.
func WithRules(rules ...Rule) Option {
	return func(n *Normalizer) {
		n.extra = append(n.extra, rules...)
	}
}

// Normalizer cleans and splits text for one [Language]. It holds no mutable
// state and is safe for concurrent use.
type Normalizer struct {
	lang  Language
	extra []Rule
}

// New returns a Normalizer for lang.
func New(lang Language, opts ...Option) *Normalizer {
	n := &Normalizer{lang: lang}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Language returns the language the normalizer was built for.
func (n *Normalizer) Language() Language { return n.lang }

// Clean applies the normalization passes to text. It never fails: a time or
// number that cannot be converted is left as it was. The passes are
// re-applied until the output stops changing, so Clean(Clean(t)) equals
// Clean(t).
func (n *Normalizer) Clean(text string) string {
	if text == "" {
		return ""
	}
	out := norm.NFC.String(text)
	for range maxSettleRounds {
		next := n.pass(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func (n *Normalizer) pass(text string) string {
	text = applyRules(text, n.lang.PhoneticFixes)
	text = applyRules(text, n.lang.Replacements)
	text = applyRules(text, n.extra)
	text = n.convertTimes(text)
	text = n.convertNumbers(text)

	text = spaceRunRe.ReplaceAllString(text, " ")
	text = commaRunRe.ReplaceAllString(text, ",")
	text = spaceBeforeRe.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

func applyRules(text string, rules []Rule) string {
	for _, r := range rules {
		if r.From == "" {
			continue
		}
		text = strings.ReplaceAll(text, r.From, r.To)
	}
	return text
}

// convertTimes must run before convertNumbers so "14:30" is read as a time
// rather than two separate numbers.
func (n *Normalizer) convertTimes(text string) string {
	if n.lang.SpellNumber == nil || n.lang.TimePhrase == nil {
		return text
	}
	return timeRe.ReplaceAllStringFunc(text, func(match string) string {
		sub := timeRe.FindStringSubmatch(match)
		hour, err := strconv.ParseInt(sub[1], 10, 64)
		if err != nil {
			return match
		}
		minute, err := strconv.ParseInt(sub[2], 10, 64)
		if err != nil {
			return match
		}
		hourWord, err := n.lang.SpellNumber(hour)
		if err != nil {
			return match
		}
		if minute == 0 {
			return n.lang.TimePhrase(hourWord, "")
		}
		minuteWord, err := n.lang.SpellNumber(minute)
		if err != nil {
			return match
		}
		return n.lang.TimePhrase(hourWord, minuteWord)
	})
}

func (n *Normalizer) convertNumbers(text string) string {
	if n.lang.SpellNumber == nil {
		return text
	}
	return digitsRe.ReplaceAllStringFunc(text, func(match string) string {
		v, err := strconv.ParseInt(match, 10, 64)
		if err != nil {
			return match
		}
		if n.lang.MaxNumber > 0 && v > n.lang.MaxNumber {
			return match
		}
		word, err := n.lang.SpellNumber(v)
		if err != nil {
			return match
		}
		return word
	})
}
