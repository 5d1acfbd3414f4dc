package voice

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/voxclone/pkg/provider/stt"
)

// Reference clip bounds.
const (
	maxReference = 10 * time.Second
	minSegment   = 5 * time.Second
	maxSegment   = 10 * time.Second
)

// SegmentCandidate is a recognised segment considered as reference clip.
type SegmentCandidate struct {
	Start        time.Duration
	End          time.Duration
	Text         string
	NoSpeechProb float64
	Score        int
}

// ScoreSegment rates how well seg would serve as a reference clip. ok is
// false when the segment is outside the 5–10 s window and cannot be a
// candidate at all.
//
//	duration   7–8 s: +50, 6–7 s or 8–9 s: +30, otherwise +10
//	text       40–80 runes: +30, 25–40 or 80–100 runes: +15
//	words      fewer than 5: -20
//	confidence no-speech probability below 0.1: +20
func ScoreSegment(seg stt.Segment) (score int, ok bool) {
	d := seg.Duration()
	if d < minSegment || d > maxSegment {
		return 0, false
	}
	sec := d.Seconds()
	switch {
	case sec >= 7 && sec <= 8:
		score += 50
	case sec >= 6 && sec < 7, sec > 8 && sec <= 9:
		score += 30
	default:
		score += 10
	}

	text := strings.TrimSpace(seg.Text)
	switch n := utf8.RuneCountInString(text); {
	case n >= 40 && n <= 80:
		score += 30
	case n >= 25 && n < 40, n > 80 && n <= 100:
		score += 15
	}

	if len(strings.Fields(text)) < 5 {
		score -= 20
	}
	if seg.NoSpeechProb < 0.1 {
		score += 20
	}
	return score, true
}

// SelectSegment picks the highest scoring candidate from segs; the first
// one wins a tie. When no segment is a candidate the first segment is
// returned with score 0. ok is false only when segs is empty.
func SelectSegment(segs []stt.Segment) (best SegmentCandidate, ok bool) {
	bestScore := -100
	for _, seg := range segs {
		score, eligible := ScoreSegment(seg)
		if !eligible || score <= bestScore {
			continue
		}
		bestScore = score
		best = candidate(seg, score)
		ok = true
	}
	if ok {
		return best, true
	}
	if len(segs) == 0 {
		return SegmentCandidate{}, false
	}
	return candidate(segs[0], 0), true
}

func candidate(seg stt.Segment, score int) SegmentCandidate {
	return SegmentCandidate{
		Start:        seg.Start,
		End:          seg.End,
		Text:         strings.TrimSpace(seg.Text),
		NoSpeechProb: seg.NoSpeechProb,
		Score:        score,
	}
}
