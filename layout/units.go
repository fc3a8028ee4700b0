package layout

import (
	"fmt"
	"strconv"
	"strings"
)

// This file defines unit-safe types and helpers for length and line-height.
// Layout works in pixels; everything else is converted at 96 dpi.

// Unit represents the original unit of a length value as written in a template.
type Unit int

const (
	UnitNone Unit = iota // unit-less numbers, treated as pixels
	UnitPX               // pixels
	UnitPT               // points
	UnitMM               // millimeters
	UnitIN               // inches
)

// DPI is the pixel density used for physical units.
const DPI = 96.0

// Conversion constants between pt and mm. The canvas backend sizes fonts in
// pt while its drawing unit is used as one pixel.
const (
	PtToMm = 0.352777
	MmToPt = 1.0 / PtToMm
)

// UnitToString returns a short string for a Unit value.
func UnitToString(u Unit) string {
	switch u {
	case UnitPX:
		return "px"
	case UnitPT:
		return "pt"
	case UnitMM:
		return "mm"
	case UnitIN:
		return "in"
	default:
		return ""
	}
}

// Length preserves a numeric value with its unit.
type Length struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

func (l Length) IsZero() bool { return l.Value == 0 }

// ToPX converts the length to pixels.
func (l Length) ToPX() float64 {
	switch l.Unit {
	case UnitPT:
		return l.Value * DPI / 72
	case UnitMM:
		return l.Value * DPI / 25.4
	case UnitIN:
		return l.Value * DPI
	default:
		return l.Value
	}
}

func (l Length) String() string {
	return strconv.FormatFloat(l.Value, 'f', -1, 64) + UnitToString(l.Unit)
}

// Px is a shorthand for a pixel length.
func Px(v float64) Length { return Length{Value: v, Unit: UnitPX} }

// ParseLength parses "12", "12px", "9pt", "10mm" or "1.5in".
func ParseLength(value string) (Length, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Length{}, fmt.Errorf("长度为空")
	}
	unit := UnitNone
	num := v
	for _, suf := range []struct {
		s string
		u Unit
	}{{"px", UnitPX}, {"pt", UnitPT}, {"mm", UnitMM}, {"in", UnitIN}} {
		if strings.HasSuffix(v, suf.s) {
			unit = suf.u
			num = strings.TrimSpace(strings.TrimSuffix(v, suf.s))
			break
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Length{}, fmt.Errorf("无法解析长度 %q", value)
	}
	return Length{Value: f, Unit: unit}, nil
}

// LineHeightKind distinguishes how the line advance of a text region is chosen.
type LineHeightKind int

const (
	// LineHeightMetrics uses the font metric line height plus the region's line gap.
	LineHeightMetrics LineHeightKind = iota
	LineHeightFactor
	LineHeightAbsolute
)

// LineHeightSpec preserves author intent: a factor of the font size (1.2x),
// an absolute length (28px), or nothing, meaning font metrics.
type LineHeightSpec struct {
	Kind   LineHeightKind `json:"kind"`
	Factor float64        `json:"factor,omitempty"`
	Len    Length         `json:"len,omitempty"`
}

// ParseLineHeight parses "1.2x" or an absolute length.
func ParseLineHeight(value string) (LineHeightSpec, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if strings.HasSuffix(v, "x") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "x"), 64)
		if err != nil || f <= 0 {
			return LineHeightSpec{}, fmt.Errorf("无法解析行高倍数 %q", value)
		}
		return LineHeightSpec{Kind: LineHeightFactor, Factor: f}, nil
	}
	l, err := ParseLength(v)
	if err != nil {
		return LineHeightSpec{}, err
	}
	if l.Value <= 0 {
		return LineHeightSpec{}, fmt.Errorf("行高必须为正数，实际 %q", value)
	}
	return LineHeightSpec{Kind: LineHeightAbsolute, Len: l}, nil
}

// Resolve computes the line advance in pixels. metricHeight is the font's
// own line height and gap the extra spacing used in metrics mode.
func (s LineHeightSpec) Resolve(fontSizePx, metricHeight, gap float64) float64 {
	switch s.Kind {
	case LineHeightFactor:
		return fontSizePx * s.Factor
	case LineHeightAbsolute:
		return s.Len.ToPX()
	default:
		if metricHeight <= 0 {
			metricHeight = fontSizePx
		}
		return metricHeight + gap
	}
}
