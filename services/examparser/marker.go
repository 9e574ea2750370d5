package examparser

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// DefaultMarkerSimilarity is the minimum fuzzy similarity accepted for a marker
const DefaultMarkerSimilarity = 0.8

// MatchTier records which search located a marker
type MatchTier string

const (
	MatchExact      MatchTier = "exact"
	MatchWhitespace MatchTier = "whitespace"
	MatchFuzzy      MatchTier = "fuzzy"
)

// MarkerLocator maps short verbatim fragments proposed by the supervisor onto
// byte offsets in the real text, tolerating transcription drift
type MarkerLocator struct {
	threshold float64
}

// NewMarkerLocator creates a locator; a threshold outside (0, 1] uses the default
func NewMarkerLocator(threshold float64) *MarkerLocator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultMarkerSimilarity
	}
	return &MarkerLocator{threshold: threshold}
}

// Locate returns the byte offset of marker inside haystack. Not finding it is a
// normal outcome reported through ok.
func (l *MarkerLocator) Locate(haystack, marker string) (offset int, ok bool) {
	offset, _, ok = l.locate(haystack, marker)
	return offset, ok
}

func (l *MarkerLocator) locate(haystack, marker string) (int, MatchTier, bool) {
	marker = strings.TrimSpace(marker)
	if marker == "" || haystack == "" {
		return 0, "", false
	}

	if idx := strings.Index(haystack, marker); idx != -1 {
		return idx, MatchExact, true
	}

	if idx, ok := collapsedIndex(haystack, marker); ok {
		return idx, MatchWhitespace, true
	}

	if idx, ok := l.fuzzyIndex(haystack, marker); ok {
		return idx, MatchFuzzy, true
	}

	return 0, "", false
}

// collapsedIndex searches with every whitespace run reduced to one space on both
// sides, then maps the hit back to the original text
func collapsedIndex(haystack, marker string) (int, bool) {
	collapsedMarker, _ := collapseWhitespace(marker)
	collapsedMarker = strings.TrimSpace(collapsedMarker)
	if collapsedMarker == "" {
		return 0, false
	}

	collapsed, offsets := collapseWhitespace(haystack)
	idx := strings.Index(collapsed, collapsedMarker)
	if idx == -1 {
		return 0, false
	}
	return offsets[idx], true
}

// collapseWhitespace returns s with whitespace runs replaced by a single space and,
// for each byte of the result, the byte offset it came from in s
func collapseWhitespace(s string) (string, []int) {
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s))
	inSpace := false

	for i, r := range s {
		if unicode.IsSpace(r) {
			if inSpace {
				continue
			}
			inSpace = true
			b.WriteByte(' ')
			offsets = append(offsets, i)
			continue
		}
		inSpace = false
		n := b.Len()
		b.WriteRune(r)
		for j := n; j < b.Len(); j++ {
			offsets = append(offsets, i+(j-n))
		}
	}
	return b.String(), offsets
}

// fuzzyIndex slides a marker-sized window over the whitespace-free text and
// returns the start of the most similar window, if it clears the threshold.
// A character-histogram bound skips windows that cannot reach the threshold,
// so Levenshtein only runs on plausible candidates.
func (l *MarkerLocator) fuzzyIndex(haystack, marker string) (int, bool) {
	needle := stripWhitespace(marker)
	m := len(needle)
	if m == 0 {
		return 0, false
	}

	hay := make([]rune, 0, len(haystack))
	positions := make([]int, 0, len(haystack))
	for i, r := range haystack {
		if unicode.IsSpace(r) {
			continue
		}
		hay = append(hay, r)
		positions = append(positions, i)
	}
	if len(hay) < m {
		return 0, false
	}

	want := make(map[rune]int, m)
	for _, r := range needle {
		want[r]++
	}
	have := make(map[rune]int, m)
	common := 0
	add := func(r rune) {
		if have[r] < want[r] {
			common++
		}
		have[r]++
	}
	remove := func(r rune) {
		have[r]--
		if have[r] < want[r] {
			common--
		}
	}

	needleStr := string(needle)
	minCommon := int(l.threshold * float64(m))
	bestScore := -1.0
	bestPos := -1

	for i := 0; i < m; i++ {
		add(hay[i])
	}
	for start := 0; start+m <= len(hay); start++ {
		if start > 0 {
			remove(hay[start-1])
			add(hay[start+m-1])
		}
		if common < minCommon {
			continue
		}

		dist := levenshtein.ComputeDistance(string(hay[start:start+m]), needleStr)
		score := 1 - float64(dist)/float64(m)
		if score > bestScore {
			bestScore = score
			bestPos = start
			if dist == 0 {
				break
			}
		}
	}

	if bestPos == -1 || bestScore < l.threshold {
		return 0, false
	}
	return positions[bestPos], true
}

func stripWhitespace(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			out = append(out, r)
		}
	}
	return out
}
