package examparser

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/sahilchouksey/exam-parser/model"
	"github.com/sahilchouksey/exam-parser/utils"
)

var digitsRe = regexp.MustCompile(`\d+`)

// Assembler merges worker output into the final question tree
type Assembler struct {
	year int
}

// NewAssembler creates an assembler that ids top-level questions as "{year}-Q{index}"
func NewAssembler(year int) *Assembler {
	return &Assembler{year: year}
}

// Assemble flattens batches in chunk order, orders the records by index and
// converts each one into a Question. A record that cannot be converted is
// logged and skipped; it never aborts the rest.
func (a *Assembler) Assemble(batches [][]utils.Record) []model.Question {
	var flat []utils.Record
	for _, batch := range batches {
		flat = append(flat, batch...)
	}
	return a.convertSiblings(flat, "", 1)
}

// convertSiblings converts one sibling list. Records are stably sorted by
// their source index (missing or unreadable counts as 0), so ties keep chunk
// order and a question split across a chunk boundary stays beside its twin.
// Indices are never renumbered; only ids are made unique, the second and later
// holders of an id getting a "_2", "_3" ... suffix.
func (a *Assembler) convertSiblings(records []utils.Record, parentID string, depth int) []model.Question {
	type slot struct {
		record utils.Record
		index  int
	}

	slots := make([]slot, len(records))
	for i, rec := range records {
		idx, _ := toInt(rec["index"])
		slots[i] = slot{record: rec, index: idx}
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].index < slots[j].index
	})

	questions := make([]model.Question, 0, len(slots))
	taken := make(map[string]int, len(slots))
	for _, s := range slots {
		id := a.questionID(parentID, s.index)
		if n := taken[id]; n > 0 {
			taken[id] = n + 1
			id = fmt.Sprintf("%s_%d", id, n+1)
		} else {
			taken[id] = 1
		}

		q, err := a.convert(s.record, s.index, id, depth)
		if err != nil {
			log.Printf("ExamParser: Skipping record at depth %d (index %d): %v", depth, s.index, err)
			continue
		}
		questions = append(questions, q)
	}
	return questions
}

// questionID is "{year}-Q{index}" at the top level and "{parent}-{index}" below
func (a *Assembler) questionID(parentID string, index int) string {
	if parentID == "" {
		return fmt.Sprintf("%d-Q%d", a.year, index)
	}
	return fmt.Sprintf("%s-%d", parentID, index)
}

// convert builds one Question; a panic while converting is reported as an error
// so the record is dropped whole rather than half-built
func (a *Assembler) convert(rec utils.Record, index int, id string, depth int) (q model.Question, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("convert panic: %v", r)
		}
	}()

	rawContent := toText(rec["content"])
	options := toOptions(rec["options"])
	rawSubs := toRecords(rec["sub_questions"])

	subQuestions := []model.Question{}
	if depth < model.MaxQuestionDepth && len(rawSubs) > 0 {
		subQuestions = a.convertSiblings(rawSubs, id, depth+1)
	}

	typeName, _ := rec["type"].(string)

	return model.Question{
		ID:           id,
		Index:        index,
		Type:         model.ParseQuestionType(typeName),
		Content:      strings.TrimSpace(rawContent),
		Options:      options,
		Score:        toScore(rec["score"]),
		Images:       CollectImageRefs(rawContent),
		OriginalText: rawContent,
		SubQuestions: subQuestions,
	}, nil
}

// toInt accepts integral numbers and strings carrying a number ("21", "Q21", "21.")
func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return 0, false
		}
		return int(val), true
	case int:
		return val, true
	case int64:
		return int(val), true
	case json.Number:
		n, err := val.Int64()
		return int(n), err == nil
	case string:
		m := digitsRe.FindString(val)
		if m == "" {
			return 0, false
		}
		n, err := strconv.Atoi(m)
		return n, err == nil
	}
	return 0, false
}

// toScore coerces a score; anything unusable or negative becomes nil
func toScore(v any) *float64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if r == '%' || unicode.IsSpace(r) {
				return -1
			}
			return r
		}, val)
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil
	}
	return &f
}

func toText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func toOptions(v any) []string {
	options := []string{}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s := strings.TrimSpace(toText(item)); s != "" {
				options = append(options, s)
			}
		}
	case string:
		if s := strings.TrimSpace(val); s != "" {
			options = append(options, s)
		}
	}
	return options
}

func toRecords(v any) []utils.Record {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	records := make([]utils.Record, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			records = append(records, utils.Record(obj))
		}
	}
	return records
}
