package examparser

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sahilchouksey/exam-parser/utils"
)

// dedupKey identifies a question across overlapping windows by its index and
// the first prefixLen runes of its whitespace-stripped content
func dedupKey(rec utils.Record, prefixLen int) string {
	idx := "?"
	if n, ok := toInt(rec["index"]); ok {
		idx = fmt.Sprint(n)
	}

	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, toText(rec["content"]))

	runes := []rune(stripped)
	if len(runes) > prefixLen {
		runes = runes[:prefixLen]
	}
	return idx + "\x00" + string(runes)
}

// DedupWindows merges per-window records in window order, keeping the first
// occurrence of every (index, content prefix) key
func DedupWindows(batches [][]utils.Record, prefixLen int) []utils.Record {
	if prefixLen <= 0 {
		prefixLen = DefaultDedupPrefixRunes
	}

	seen := make(map[string]bool)
	var unique []utils.Record
	for _, batch := range batches {
		for _, rec := range batch {
			key := dedupKey(rec, prefixLen)
			if seen[key] {
				continue
			}
			seen[key] = true
			unique = append(unique, rec)
		}
	}
	return unique
}
