package cefr

import (
	"errors"
	"testing"
)

func TestInRange(t *testing.T) {
	tests := []struct {
		book   string
		filter string
		want   bool
	}{
		{"B2-C1", "B2", true},
		{"B2-C1", "C1", true},
		{"B2-C1", "C2", false},
		{"B2-C1", "B1", false},
		{"A1", "A1", true},
		{"A1", "A2", false},
		{"A2 - B1", "B1", true},
		{"A2 - B1", "A1", false},
		{"C1-B2", "B2", true},
		{"B1", "all", true},
		{"garbage", "all", true},
		{"X1-Y2", "B1", false},
		{"A1-C2", "D1", false},
	}
	for _, tc := range tests {
		if got := InRange(tc.book, tc.filter); got != tc.want {
			t.Fatalf("InRange(%q, %q) = %v, want %v", tc.book, tc.filter, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	for _, l := range Levels {
		got, err := Parse(" " + string(l) + "\n")
		if err != nil || got != l {
			t.Fatalf("Parse(%q) = %q, %v", l, got, err)
		}
	}
	for _, bad := range []string{"", "b1", "B3", "A1.", "Level B1"} {
		if _, err := Parse(bad); !errors.Is(err, ErrInvalidLevel) {
			t.Fatalf("Parse(%q) err = %v, want ErrInvalidLevel", bad, err)
		}
	}
}

func TestParseRange(t *testing.T) {
	r, ok := ParseRange("A2 - B1")
	if !ok || r.Start != A2 || r.End != B1 {
		t.Fatalf("ParseRange = %+v, %v", r, ok)
	}
	r, ok = ParseRange("C1")
	if !ok || r.Start != C1 || r.End != C1 {
		t.Fatalf("ParseRange single = %+v, %v", r, ok)
	}
	if _, ok := ParseRange("A2-"); ok {
		t.Fatalf("expected open range to be rejected")
	}
}
