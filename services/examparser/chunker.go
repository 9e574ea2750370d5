package examparser

import (
	"errors"
	"log"
	"sort"
	"unicode/utf8"
)

// ErrNoAnchors is returned when no entry of a split plan can be located
var ErrNoAnchors = errors.New("no split marker could be located in the text")

// TextChunk is one window of the source text handed to a worker.
// Offsets are byte offsets into the source; EndOffset is exclusive.
type TextChunk struct {
	Order       int
	StartOffset int
	EndOffset   int
	RawText     string
}

type anchor struct {
	offset int
	entry  SplitEntry
}

// ExtractChunks resolves every plan entry to an offset and cuts the text into
// disjoint chunks between consecutive anchors. Entries that cannot be located
// are skipped; the text before the first anchor is folded into the first chunk
// so the chunks jointly cover the whole text.
func ExtractChunks(text string, plan *SplitPlan, locator *MarkerLocator) ([]TextChunk, error) {
	if plan == nil || len(plan.Entries) == 0 {
		return nil, ErrNoAnchors
	}

	anchors := make([]anchor, 0, len(plan.Entries))
	for i, entry := range plan.Entries {
		offset, tier, ok := locator.locate(text, entry.StartMarker)
		if !ok {
			log.Printf("ExamParser: Split %d (Q%d): start marker not found, skipping: %q",
				i+1, entry.StartOrdinal, entry.StartMarker)
			continue
		}
		if tier != MatchExact {
			log.Printf("ExamParser: Split %d (Q%d): marker located by %s match at offset %d",
				i+1, entry.StartOrdinal, tier, offset)
		}
		anchors = append(anchors, anchor{offset: offset, entry: entry})
	}

	if len(anchors) == 0 {
		return nil, ErrNoAnchors
	}

	sort.SliceStable(anchors, func(i, j int) bool {
		return anchors[i].offset < anchors[j].offset
	})

	chunks := make([]TextChunk, 0, len(anchors))
	for i, a := range anchors {
		end := len(text)
		if i < len(anchors)-1 {
			end = anchors[i+1].offset
		}
		if a.offset >= end {
			// duplicate marker
			continue
		}
		start := a.offset
		if len(chunks) == 0 {
			start = 0
		}

		chunks = append(chunks, TextChunk{
			Order:       len(chunks),
			StartOffset: start,
			EndOffset:   end,
			RawText:     text[start:end],
		})
		log.Printf("ExamParser: Chunk %d: %d chars starting at Q%d",
			len(chunks), utf8.RuneCountInString(text[start:end]), a.entry.StartOrdinal)
	}

	if len(chunks) == 0 {
		return nil, ErrNoAnchors
	}
	return chunks, nil
}

// SlidingWindows cuts text into fixed-size windows of size runes, each
// overlapping the previous one by overlap runes. Windows never split a rune.
func SlidingWindows(text string, size, overlap int) []TextChunk {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultFallbackWindowChars
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	// byteAt[i] is the byte offset of rune i; byteAt[n] == len(text)
	byteAt := make([]int, 0, len(text)+1)
	for i := range text {
		byteAt = append(byteAt, i)
	}
	n := len(byteAt)
	byteAt = append(byteAt, len(text))

	step := size - overlap
	var windows []TextChunk
	for start := 0; start < n; start += step {
		end := start + size
		if end > n {
			end = n
		}
		windows = append(windows, TextChunk{
			Order:       len(windows),
			StartOffset: byteAt[start],
			EndOffset:   byteAt[end],
			RawText:     text[byteAt[start]:byteAt[end]],
		})
		if end == n {
			break
		}
	}
	return windows
}
