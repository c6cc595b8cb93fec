package main

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBar(t *testing.T) {
	for _, tc := range []struct {
		v     float64
		width int
		fill  int
	}{
		{v: 0, width: 10, fill: 0},
		{v: 0.5, width: 10, fill: 5},
		{v: 1, width: 10, fill: 10},
		{v: 2, width: 10, fill: 10},
		{v: -1, width: 10, fill: 0},
		{v: 0.01, width: 10, fill: 1}, // non-zero always shows
	} {
		got := bar(tc.v, tc.width)
		if n := utf8.RuneCountInString(got); n != tc.width {
			t.Errorf("bar(%v, %v): width %v, want %v", tc.v, tc.width, n, tc.width)
		}
		if n := strings.Count(got, "█"); n != tc.fill {
			t.Errorf("bar(%v, %v): fill %v, want %v", tc.v, tc.width, n, tc.fill)
		}
	}
}

func TestSpark(t *testing.T) {
	if got := spark(nil, 10); got != "" {
		t.Errorf("empty spark: got %q", got)
	}
	got := spark([]float64{0, 0.5, 1}, 3)
	if n := utf8.RuneCountInString(got); n != 3 {
		t.Errorf("spark width: got %v, want 3", n)
	}
	runes := []rune(got)
	if runes[0] != '▁' || runes[2] != '█' {
		t.Errorf("spark levels: got %q", got)
	}

	// More samples than columns still fills exactly the requested width.
	vals := make([]float64, 500)
	if n := utf8.RuneCountInString(spark(vals, 40)); n != 40 {
		t.Errorf("downsampled spark width: got %v, want 40", n)
	}
}

func TestClamp01(t *testing.T) {
	for _, tc := range []struct {
		in   float64
		want float64
	}{
		{in: 0.5, want: 0.5},
		{in: -3, want: 0},
		{in: 7, want: 1},
		{in: math.NaN(), want: 0},
		{in: math.Inf(1), want: 0},
	} {
		if got := clamp01(tc.in); got != tc.want {
			t.Errorf("clamp01(%v): got %v, want %v", tc.in, got, tc.want)
		}
	}
}
