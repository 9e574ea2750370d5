package utils

import (
	"encoding/json"
	"log"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Record is an untyped key-value record recovered from LLM output
type Record map[string]any

// maxScanCandidates bounds how many opening brackets are tried per response
const maxScanCandidates = 64

var fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*(.*?)\\s*```")

// listKeys are the wrapper keys an LLM typically nests its record list under
var listKeys = []string{"questions", "items", "data"}

// RecoverRecords salvages a list of records from arbitrary LLM output.
//
// It never fails: malformed input yields an empty list, which callers must treat
// as "zero records extracted". Strategies, first one yielding a record wins:
//   - the whole (fence-stripped) text parses, directly or after repair
//   - the first top-level [...] span found by the bracket scanner parses
//   - the first top-level {...} span parses and is wrapped in a list
func RecoverRecords(response string) []Record {
	if strings.TrimSpace(response) == "" {
		return nil
	}

	cleaned := extractFromMarkdown(response)

	if v, ok := parseLenient(cleaned); ok {
		if records := recordsFrom(v); len(records) > 0 {
			return records
		}
	}

	for _, src := range scanSources(cleaned, response) {
		if records := scanArrays(src); len(records) > 0 {
			return records
		}
	}

	for _, src := range scanSources(cleaned, response) {
		if obj, ok := scanObject(src); ok {
			return recordsFrom(map[string]any(obj))
		}
	}

	log.Printf("[JSON Recovery] No records recovered (length=%d)", len(response))
	return nil
}

// RecoverObject salvages the first JSON object from arbitrary LLM output
func RecoverObject(response string) (Record, bool) {
	if strings.TrimSpace(response) == "" {
		return nil, false
	}

	cleaned := extractFromMarkdown(response)
	if v, ok := parseLenient(cleaned); ok {
		if obj, isObj := v.(map[string]any); isObj {
			return Record(obj), true
		}
	}

	for _, src := range scanSources(cleaned, response) {
		if obj, ok := scanObject(src); ok {
			return obj, true
		}
	}

	log.Printf("[JSON Recovery] No object recovered (length=%d)", len(response))
	return nil, false
}

// extractFromMarkdown returns the interior of the first fenced code block, or
// the trimmed input when there is none
func extractFromMarkdown(s string) string {
	if m := fencedBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}

	s = strings.TrimSpace(s)
	// Unterminated fence: the model ran out of tokens before closing it
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl != -1 && !strings.ContainsAny(s[:nl], "[{") {
			s = s[nl+1:]
		}
	}
	return strings.TrimSpace(s)
}

// scanSources lists the texts the bracket scanner should try, in order
func scanSources(cleaned, raw string) []string {
	sources := []string{cleaned}
	if normalized := normalizeFullWidth(cleaned); normalized != cleaned {
		sources = append(sources, normalized)
	}
	if strings.TrimSpace(raw) != cleaned {
		sources = append(sources, raw)
	}
	return sources
}

func scanArrays(s string) []Record {
	from := 0
	for tries := 0; tries < maxScanCandidates; tries++ {
		idx := strings.IndexByte(s[from:], '[')
		if idx == -1 {
			return nil
		}
		start := from + idx
		if span, ok := scanSpan(s, start, '[', ']'); ok {
			if v, parsed := parseLenient(span); parsed {
				if records := recordsFrom(v); len(records) > 0 {
					return records
				}
			}
		}
		from = start + 1
	}
	return nil
}

func scanObject(s string) (Record, bool) {
	from := 0
	for tries := 0; tries < maxScanCandidates; tries++ {
		idx := strings.IndexByte(s[from:], '{')
		if idx == -1 {
			return nil, false
		}
		start := from + idx
		if span, ok := scanSpan(s, start, '{', '}'); ok {
			if v, parsed := parseLenient(span); parsed {
				if obj, isObj := v.(map[string]any); isObj {
					return Record(obj), true
				}
			}
		}
		from = start + 1
	}
	return nil, false
}

type scanState int

const (
	stateNormal scanState = iota
	stateInString
	stateEscape
)

// scanSpan returns s[start:end] where end is the position at which the counter
// for open/close returns to zero. Delimiters inside string literals, or right
// after a backslash inside a string, do not move the counter.
func scanSpan(s string, start int, open, close byte) (string, bool) {
	depth := 0
	braces := 0
	state := stateNormal

	for i := start; i < len(s); i++ {
		c := s[i]
		switch state {
		case stateEscape:
			state = stateInString
			continue
		case stateInString:
			switch c {
			case '\\':
				state = stateEscape
			case '"':
				state = stateNormal
			}
			continue
		}

		switch c {
		case '"':
			state = stateInString
			continue
		case '{':
			braces++
		case '}':
			braces--
		}

		if c == open {
			depth++
		} else if c == close {
			depth--
			if depth == 0 {
				if open == '[' && braces != 0 {
					log.Printf("[JSON Recovery] Array closed with unbalanced braces (depth=%d)", braces)
				}
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// parseLenient tries a strict parse, then a single repaired parse
func parseLenient(span string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(span), &v); err == nil {
		return v, true
	}

	repaired := repairJSON(span)
	if repaired == span {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, false
	}
	log.Printf("[JSON Recovery] Parsed after syntactic repair (%d chars)", len(span))
	return v, true
}

// latexEscapable lists characters that LaTeX-flavoured content escapes with a
// single backslash, which is illegal inside a JSON string
const latexEscapable = "{}()[]_^&%$#"

// repairJSON doubles stray backslashes inside strings, drops trailing commas and
// maps full-width brackets outside strings
func repairJSON(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inString {
			switch r {
			case '\\':
				if i+1 < len(runes) && isLegalEscape(runes, i+1) {
					b.WriteRune(r)
					b.WriteRune(runes[i+1])
					i++
					continue
				}
				b.WriteString(`\\`)
				continue
			case '"':
				inString = false
			}
			b.WriteRune(r)
			continue
		}

		switch r {
		case '"':
			inString = true
		case '【':
			r = '['
		case '】':
			r = ']'
		case ',':
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			if j < len(runes) && (runes[j] == '}' || runes[j] == ']' || runes[j] == '】') {
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isLegalEscape(runes []rune, i int) bool {
	r := runes[i]
	if strings.ContainsRune(latexEscapable, r) {
		return false
	}
	switch r {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return true
	case 'u':
		if i+4 >= len(runes) {
			return false
		}
		for _, h := range runes[i+1 : i+5] {
			if !strings.ContainsRune("0123456789abcdefABCDEF", h) {
				return false
			}
		}
		return true
	}
	return false
}

// normalizeFullWidth maps 【】 to [] outside string literals
func normalizeFullWidth(s string) string {
	if !strings.ContainsAny(s, "【】") {
		return s
	}
	var b strings.Builder
	inString, escaped := false, false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case !inString && r == '【':
			r = '['
		case !inString && r == '】':
			r = ']'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// recordsFrom turns a decoded JSON value into records
func recordsFrom(v any) []Record {
	switch val := v.(type) {
	case []any:
		records := make([]Record, 0, len(val))
		for _, item := range val {
			if obj, ok := item.(map[string]any); ok {
				records = append(records, Record(obj))
			}
		}
		if len(records) == 0 {
			return nil
		}
		return records
	case map[string]any:
		for _, key := range listKeys {
			if list, ok := val[key].([]any); ok {
				return recordsFrom(list)
			}
		}
		if _, hasContent := val["content"]; hasContent {
			return []Record{val}
		}
		if _, hasIndex := val["index"]; hasIndex {
			return []Record{val}
		}

		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if list, ok := val[k].([]any); ok {
				if records := recordsFrom(list); len(records) > 0 {
					return records
				}
			}
		}
		return []Record{val}
	}
	return nil
}
