package util

import "testing"

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"ldh", "ldh", 0},
		{"cord", "card", 1},
		{"kitten", "sitting", 3},
	}
	for _, tc := range tests {
		if got := levenshteinDistance(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSuggest(t *testing.T) {
	candidates := []string{"background", "disc", "cord", "canal", "LDH"}
	tests := []struct {
		input string
		want  string
	}{
		{"ldh", "LDH"},
		{"cords", "cord"},
		{"backgrund", "background"},
		{"vertebrae_C1", ""},
	}
	for _, tc := range tests {
		if got := Suggest(tc.input, candidates); got != tc.want {
			t.Errorf("Suggest(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestUnknownError(t *testing.T) {
	got := UnknownError("label", "LDh", []string{"LDH"}).Error()
	want := `unknown label "LDh", did you mean "LDH"?`
	if got != want {
		t.Errorf("UnknownError = %q, want %q", got, want)
	}
	if got := UnknownError("axis", "w", nil).Error(); got != `unknown axis "w"` {
		t.Errorf("UnknownError without candidates = %q", got)
	}
}
