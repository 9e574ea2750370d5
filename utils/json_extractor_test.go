package utils

import (
	"encoding/json"
	"testing"
)

func TestRecoverRecords_FencedBlock(t *testing.T) {
	record := map[string]any{
		"index":   float64(3),
		"type":    "qa",
		"content": "Explain $\\frac{a}{b}$ and ![fig](images/p1.png)",
		"options": []any{},
	}
	payload, err := json.Marshal([]any{record})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	tests := []struct {
		name  string
		input string
	}{
		{"bare fence", "```json\n" + string(payload) + "\n```"},
		{"fence with prose", "Sure! Here are the questions:\n```json\n" + string(payload) + "\n```\nLet me know if you need more."},
		{"no fence", string(payload)},
		{"prose without fence", "Result: " + string(payload) + " (done)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecoverRecords(tt.input)
			if len(got) != 1 {
				t.Fatalf("expected 1 record, got %d", len(got))
			}
			if got[0]["content"] != record["content"] {
				t.Errorf("content = %q, want %q", got[0]["content"], record["content"])
			}
			if got[0]["index"] != float64(3) {
				t.Errorf("index = %v, want 3", got[0]["index"])
			}
		})
	}
}

func TestRecoverRecords_BracketInsideString(t *testing.T) {
	got := RecoverRecords(`[{"content":"a] weird [bracket"}]`)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0]["content"] != "a] weird [bracket" {
		t.Errorf("content = %q", got[0]["content"])
	}
}

func TestRecoverRecords_BracketInsideStringWithProse(t *testing.T) {
	input := `Output follows [{"content":"close } and ] inside","index":2}, {"content":"escaped \" quote ]","index":3}] trailing`
	got := RecoverRecords(input)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[1]["content"] != `escaped " quote ]` {
		t.Errorf("content = %q", got[1]["content"])
	}
}

func TestRecoverRecords_LatexEscapeRepair(t *testing.T) {
	input := `{"questions":[{"index":1,"content":"Let A = \{x \mid x > 0\} and f(x)=x\_1^2","type":"blank"}]}`
	got := RecoverRecords(input)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	want := `Let A = \{x \mid x > 0\} and f(x)=x\_1^2`
	if got[0]["content"] != want {
		t.Errorf("content = %q, want %q", got[0]["content"], want)
	}
	if got[0]["type"] != "blank" {
		t.Errorf("type = %v, want blank", got[0]["type"])
	}
}

func TestRecoverRecords_TrailingCommas(t *testing.T) {
	input := "Here you go:\n[{\"index\":1,\"content\":\"a, b\",\"options\":[\"A\",\"B\",],},]"
	got := RecoverRecords(input)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0]["content"] != "a, b" {
		t.Errorf("content = %q", got[0]["content"])
	}
	opts, ok := got[0]["options"].([]any)
	if !ok || len(opts) != 2 {
		t.Errorf("options = %v", got[0]["options"])
	}
}

func TestRecoverRecords_FullWidthBrackets(t *testing.T) {
	input := `【{"index":1,"content":"选择【正确】的答案"}】`
	got := RecoverRecords(input)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0]["content"] != "选择【正确】的答案" {
		t.Errorf("content inside string must keep full-width brackets, got %q", got[0]["content"])
	}
}

func TestRecoverRecords_ObjectFallback(t *testing.T) {
	input := `The only question is {"index":5,"content":"Prove it.","type":"proof"} thanks`
	got := RecoverRecords(input)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0]["index"] != float64(5) {
		t.Errorf("index = %v", got[0]["index"])
	}
}

func TestRecoverRecords_WrapperKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"questions", `{"questions":[{"index":1},{"index":2}]}`, 2},
		{"items", `{"items":[{"index":1}]}`, 1},
		{"data", `{"data":[{"index":1},{"index":2},{"index":3}]}`, 3},
		{"other list", `{"total":2,"result":[{"index":1},{"index":2}]}`, 2},
		{"single record with sub questions", `{"index":1,"content":"x","sub_questions":[{"index":1}]}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecoverRecords(tt.input); len(got) != tt.want {
				t.Errorf("got %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestRecoverRecords_SkipsNonObjectArrays(t *testing.T) {
	input := `notes: ["a","b"] then [{"index":9,"content":"real"}]`
	got := RecoverRecords(input)
	if len(got) != 1 || got[0]["index"] != float64(9) {
		t.Fatalf("unexpected records: %v", got)
	}
}

func TestRecoverRecords_Empty(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"I could not find any questions in this text.",
		"[1, 2, 3]",
		`[{"index":1,"content":"unterminated`,
		"```json\n```",
	}
	for _, in := range inputs {
		if got := RecoverRecords(in); len(got) != 0 {
			t.Errorf("RecoverRecords(%q) = %v, want empty", in, got)
		}
	}
}

func TestRecoverObject(t *testing.T) {
	input := "```json\n{\"total_questions\": 42, \"splits\": [{\"start_question\": 1, \"start_marker\": \"一、选择题 1. 设集合\"},]}\n```"
	obj, ok := RecoverObject(input)
	if !ok {
		t.Fatal("expected object")
	}
	if obj["total_questions"] != float64(42) {
		t.Errorf("total_questions = %v", obj["total_questions"])
	}
	splits, ok := obj["splits"].([]any)
	if !ok || len(splits) != 1 {
		t.Fatalf("splits = %v", obj["splits"])
	}

	if _, ok := RecoverObject("no json here"); ok {
		t.Error("expected no object")
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"latex braces", `{"a":"\{x\}"}`, `{"a":"\\{x\\}"}`},
		{"legal escapes kept", `{"a":"line\nnext \"q\" \\ é"}`, `{"a":"line\nnext \"q\" \\ é"}`},
		{"bad unicode escape", `{"a":"\underline{x}"}`, `{"a":"\\underline{x}"}`},
		{"trailing comma", `[1,2,]`, `[1,2]`},
		{"comma in string kept", `["a,]"]`, `["a,]"]`},
		{"full width outside", `【1】`, `[1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := repairJSON(tt.in); got != tt.want {
				t.Errorf("repairJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
