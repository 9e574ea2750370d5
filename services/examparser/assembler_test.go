package examparser

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/sahilchouksey/exam-parser/model"
	"github.com/sahilchouksey/exam-parser/utils"
)

func records(t *testing.T, raw string) []utils.Record {
	t.Helper()
	var list []map[string]any
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	out := make([]utils.Record, len(list))
	for i, m := range list {
		out[i] = utils.Record(m)
	}
	return out
}

func TestAssemble_Scenario(t *testing.T) {
	oracle := "```json\n{\"questions\":[{\"index\":1,\"type\":\"choice\",\"content\":\"What is 2+2?\",\"options\":[\"A) 3\",\"B) 4\"],\"score\":null,\"sub_questions\":[]}]}\n```"

	questions := NewAssembler(2024).Assemble([][]utils.Record{utils.RecoverRecords(oracle)})
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}

	q := questions[0]
	if q.ID != "2024-Q1" || q.Index != 1 || q.Type != model.QuestionTypeChoice {
		t.Errorf("unexpected question %+v", q)
	}
	if !reflect.DeepEqual(q.Options, []string{"A) 3", "B) 4"}) {
		t.Errorf("options = %v", q.Options)
	}
	if q.Score != nil {
		t.Errorf("score = %v, want nil", *q.Score)
	}
	if q.Content != "What is 2+2?" || q.OriginalText != "What is 2+2?" {
		t.Errorf("content = %q", q.Content)
	}
	if q.SubQuestions == nil || len(q.SubQuestions) != 0 || q.Images == nil {
		t.Error("empty lists should be non-nil")
	}
}

func TestAssemble_OrdersByIndexAcrossChunks(t *testing.T) {
	batches := [][]utils.Record{
		records(t, `[{"index":21,"content":"q21"},{"index":22,"content":"q22"}]`),
		records(t, `[{"index":3,"content":"q3"},{"index":1,"content":"q1"}]`),
		records(t, `[{"index":2,"content":"q2"}]`),
	}

	questions := NewAssembler(2023).Assemble(batches)
	var got []int
	for _, q := range questions {
		got = append(got, q.Index)
	}
	if want := []int{1, 2, 3, 21, 22}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if questions[3].ID != "2023-Q21" {
		t.Errorf("id = %s", questions[3].ID)
	}
}

func TestAssemble_SiblingIndexOrdering(t *testing.T) {
	batches := [][]utils.Record{
		records(t, `[{"index":2,"content":"first two"},{"content":"no index"}]`),
		records(t, `[{"index":2,"content":"second two"},{"index":"Q1","content":"string index"},{"index":-4,"content":"negative"}]`),
	}

	questions := NewAssembler(2024).Assemble(batches)
	if len(questions) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(questions))
	}

	want := []struct {
		index   int
		id      string
		content string
	}{
		{-4, "2024-Q-4", "negative"},
		{0, "2024-Q0", "no index"},
		{1, "2024-Q1", "string index"},
		{2, "2024-Q2", "first two"},
		{2, "2024-Q2_2", "second two"},
	}
	for i, w := range want {
		q := questions[i]
		if q.Index != w.index || q.ID != w.id || q.Content != w.content {
			t.Errorf("question %d = (%d, %s, %q), want (%d, %s, %q)", i, q.Index, q.ID, q.Content, w.index, w.id, w.content)
		}
	}
}

func TestAssemble_ChunkBoundaryDuplicateStaysAdjacent(t *testing.T) {
	batches := [][]utils.Record{
		records(t, `[{"index":19,"content":"q19"},{"index":20,"content":"q20 part"}]`),
		records(t, `[{"index":20,"content":"q20 rest"},{"index":21,"content":"q21"},{"index":22,"content":"q22"}]`),
	}

	questions := NewAssembler(2024).Assemble(batches)

	var got []string
	for _, q := range questions {
		got = append(got, fmt.Sprintf("%d:%s:%s", q.Index, q.ID, q.Content))
	}
	want := []string{
		"19:2024-Q19:q19",
		"20:2024-Q20:q20 part",
		"20:2024-Q20_2:q20 rest",
		"21:2024-Q21:q21",
		"22:2024-Q22:q22",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("assembled = %v, want %v", got, want)
	}
}

func TestAssemble_DuplicateSubQuestionIDs(t *testing.T) {
	raw := `[{"index":1,"content":"parent","sub_questions":[
		{"index":1,"content":"a"},{"index":1,"content":"b"},{"content":"c"}]}]`

	questions := NewAssembler(2024).Assemble([][]utils.Record{records(t, raw)})
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}

	var ids []string
	for _, sub := range questions[0].SubQuestions {
		ids = append(ids, sub.ID)
	}
	if want := []string{"2024-Q1-0", "2024-Q1-1", "2024-Q1-1_2"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("sub-question ids = %v, want %v", ids, want)
	}
}

func TestAssemble_DepthCap(t *testing.T) {
	raw := `[{"index":1,"content":"L1","sub_questions":[
		{"index":1,"content":"L2","sub_questions":[
			{"index":1,"content":"L3","sub_questions":[
				{"index":1,"content":"L4","sub_questions":[
					{"index":1,"content":"L5"}]}]}]}]}]`

	questions := NewAssembler(2024).Assemble([][]utils.Record{records(t, raw)})
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}

	l2 := questions[0].SubQuestions
	if len(l2) != 1 || l2[0].ID != "2024-Q1-1" {
		t.Fatalf("level 2 = %+v", l2)
	}
	l3 := l2[0].SubQuestions
	if len(l3) != 1 || l3[0].ID != "2024-Q1-1-1" || l3[0].Content != "L3" {
		t.Fatalf("level 3 = %+v", l3)
	}
	if l3[0].SubQuestions == nil || len(l3[0].SubQuestions) != 0 {
		t.Errorf("level 3 must have its sub_questions dropped, got %+v", l3[0].SubQuestions)
	}
}

func TestAssemble_Coercion(t *testing.T) {
	raw := `[
		{"index":1,"type":"  Choice ","content":" trimmed ","options":["A",2,null,""],"score":"10 %"},
		{"index":2,"type":"essay","content":"x","score":-3},
		{"index":3,"type":7,"content":"y","score":"ten"},
		{"index":4,"type":"PROOF","content":"z","score":2.5,"options":"single"},
		{"index":5,"type":"qa","content":"   ","options":[]},
		{"index":6,"type":"qa","content":"with image ![fig](images/p3_1.png) and <img src=\"images/p3_2.png\"> again ![fig](images/p3_1.png)"}
	]`

	questions := NewAssembler(2024).Assemble([][]utils.Record{records(t, raw)})
	if len(questions) != 6 {
		t.Fatalf("expected 6 questions (empty record kept), got %d", len(questions))
	}

	q1 := questions[0]
	if q1.Type != model.QuestionTypeChoice || q1.Content != "trimmed" || q1.OriginalText != " trimmed " {
		t.Errorf("q1 = %+v", q1)
	}
	if !reflect.DeepEqual(q1.Options, []string{"A", "2"}) {
		t.Errorf("q1 options = %v", q1.Options)
	}
	if q1.Score == nil || *q1.Score != 10 {
		t.Errorf("q1 score = %v", q1.Score)
	}

	if questions[1].Type != model.QuestionTypeOther || questions[1].Score != nil {
		t.Errorf("q2 = %+v", questions[1])
	}
	if questions[2].Type != model.QuestionTypeOther || questions[2].Score != nil {
		t.Errorf("q3 = %+v", questions[2])
	}
	if questions[3].Type != model.QuestionTypeProof || *questions[3].Score != 2.5 || !reflect.DeepEqual(questions[3].Options, []string{"single"}) {
		t.Errorf("q4 = %+v", questions[3])
	}

	if q5 := questions[4]; q5.Index != 5 || q5.Content != "" || len(q5.Options) != 0 || q5.ID != "2024-Q5" {
		t.Errorf("q5 = %+v", q5)
	}

	if want := []string{"images/p3_1.png", "images/p3_2.png"}; !reflect.DeepEqual(questions[5].Images, want) {
		t.Errorf("q6 images = %v, want %v", questions[5].Images, want)
	}
}

func TestToScore(t *testing.T) {
	tests := []struct {
		in   any
		want *float64
	}{
		{float64(5), ptr(5)},
		{3, ptr(3)},
		{json.Number("7.5"), ptr(7.5)},
		{" 12 ", ptr(12)},
		{"50%", ptr(50)},
		{"", nil},
		{"n/a", nil},
		{true, nil},
		{nil, nil},
		{float64(-1), nil},
	}
	for _, tt := range tests {
		got := toScore(tt.in)
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("toScore(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func ptr(f float64) *float64 { return &f }
