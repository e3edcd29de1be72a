package rank

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"sarah", "sara", 1},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestStringSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "Sarah", b: "Sarah", want: 1},
		{name: "case insensitive", a: "SARAH", b: "sarah", want: 1},
		{name: "one edit", a: "sarah", b: "sara", want: 0.8},
		{name: "both empty", a: "", b: "", want: 0},
		{name: "disjoint", a: "abc", b: "xyz", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StringSimilarity(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("StringSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{name: "identical", a: []string{"work", "stress"}, b: []string{"work", "stress"}, want: 1},
		{name: "partial", a: []string{"work", "stress", "deadline"}, b: []string{"work", "stress", "deadline", "gym"}, want: 0.75},
		{name: "disjoint", a: []string{"work"}, b: []string{"gym"}, want: 0},
		{name: "empty side", a: nil, b: []string{"work"}, want: 0},
		{name: "case insensitive", a: []string{"Work"}, b: []string{"work"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Jaccard(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("Jaccard(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Coffee with Sarah, then work-stress at 9am!")
	want := []string{"coffee", "with", "sarah", "then", "work", "stress", "at", "9am"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tokenize()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
