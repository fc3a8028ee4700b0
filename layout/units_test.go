package layout

import (
	"math"
	"testing"
)

// TestPtMmRoundTrip 验证 pt↔mm 换算的往返精度（允许极小的浮点误差）。
func TestPtMmRoundTrip(t *testing.T) {
	samples := []float64{0, 0.001, 1, 12, 14.4, 72, 96, 144, 1000}
	for _, pt := range samples {
		back := pt * PtToMm * MmToPt
		if diff := math.Abs(back - pt); diff > 1e-9 {
			t.Fatalf("pt→mm→pt 往返误差过大: in=%gpt back=%g diff=%g", pt, back, diff)
		}
	}
}

func TestLengthToPX(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"24", 24},
		{"24px", 24},
		{"18pt", 24},
		{"1in", 96},
		{"25.4mm", 96},
		{"-4", -4},
	}
	for _, c := range cases {
		l, err := ParseLength(c.in)
		if err != nil {
			t.Fatalf("ParseLength(%q) error: %v", c.in, err)
		}
		if got := l.ToPX(); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("ParseLength(%q).ToPX() = %g, want %g", c.in, got, c.want)
		}
	}
	if _, err := ParseLength("12em"); err == nil {
		t.Fatalf("expected error for unknown unit")
	}
	if _, err := ParseLength(""); err == nil {
		t.Fatalf("expected error for empty length")
	}
}

// TestLineHeightResolve 覆盖倍数、绝对值与字体度量三种行高语义。
func TestLineHeightResolve(t *testing.T) {
	factor, err := ParseLineHeight("1.5x")
	if err != nil {
		t.Fatalf("ParseLineHeight error: %v", err)
	}
	if got := factor.Resolve(20, 23, 5); got != 30 {
		t.Fatalf("1.5x of 20px: got %g", got)
	}

	abs, err := ParseLineHeight("18pt")
	if err != nil {
		t.Fatalf("ParseLineHeight error: %v", err)
	}
	if got := abs.Resolve(20, 23, 5); math.Abs(got-24) > 1e-9 {
		t.Fatalf("18pt line height: got %g want 24", got)
	}

	var metrics LineHeightSpec
	if got := metrics.Resolve(20, 23, 5); got != 28 {
		t.Fatalf("metrics line height: got %g want 28", got)
	}
	if got := metrics.Resolve(20, 0, 5); got != 25 {
		t.Fatalf("metrics without metric height should use font size: got %g", got)
	}

	for _, bad := range []string{"0x", "-3", "abc"} {
		if _, err := ParseLineHeight(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
