package examparser

import (
	"strings"
	"testing"
)

func TestMarkerLocator_Locate(t *testing.T) {
	haystack := "Preamble text.\n\nQuestion 1. What is the derivative of x^2?\n\nQuestion 2.   Evaluate   the\nintegral of sin(x) dx.\n\n第三题：设集合 A = {1, 2, 3}，求 A 的子集个数。"
	locator := NewMarkerLocator(0.8)

	tests := []struct {
		name     string
		marker   string
		wantAt   string // text expected at the returned offset
		wantTier MatchTier
		wantOK   bool
	}{
		{"exact", "Question 1. What is the derivative", "Question 1. What is", MatchExact, true},
		{"exact after trimming", "  Question 1. What is  ", "Question 1. What is", MatchExact, true},
		{"whitespace drift", "Question 2. Evaluate the integral of sin(x)", "Question 2.   Evaluate", MatchWhitespace, true},
		{"fuzzy punctuation drift", "Question 1: What is the derivatlve of x^2?", "Question 1. What is", MatchFuzzy, true},
		{"fuzzy cjk", "第三题:设集合A={1,2,3}，求A的子集个数", "第三题：设集合", MatchFuzzy, true},
		{"not found", "An entirely different sentence about chemistry.", "", "", false},
		{"empty marker", "   ", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, tier, ok := locator.locate(haystack, tt.marker)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", tier, tt.wantTier)
			}
			if !strings.HasPrefix(haystack[offset:], tt.wantAt) {
				t.Errorf("offset %d points at %q, want prefix %q", offset, haystack[offset:min(offset+30, len(haystack))], tt.wantAt)
			}
		})
	}
}

func TestMarkerLocator_FuzzyBelowThreshold(t *testing.T) {
	locator := NewMarkerLocator(0.95)
	if _, ok := locator.Locate("Question 1. What is the derivative of x^2?", "Question 1: Wbat is the dxrivative"); ok {
		t.Error("expected no match below threshold")
	}
}

func TestMarkerLocator_DefaultThreshold(t *testing.T) {
	if got := NewMarkerLocator(0).threshold; got != DefaultMarkerSimilarity {
		t.Errorf("threshold = %v, want %v", got, DefaultMarkerSimilarity)
	}
	if got := NewMarkerLocator(1.5).threshold; got != DefaultMarkerSimilarity {
		t.Errorf("threshold = %v, want %v", got, DefaultMarkerSimilarity)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	collapsed, offsets := collapseWhitespace("a  b\n\tc")
	if collapsed != "a b c" {
		t.Fatalf("collapsed = %q", collapsed)
	}
	want := []int{0, 1, 3, 4, 6}
	for i, w := range want {
		if offsets[i] != w {
			t.Errorf("offsets[%d] = %d, want %d", i, offsets[i], w)
		}
	}
}
