// Package wrap implements greedy word wrapping against a caller supplied
// width measure. It knows nothing about fonts or rendering backends.
package wrap

import (
	"errors"
	"fmt"
	"strings"
)

// heightEpsilon absorbs float drift when line heights are summed.
const heightEpsilon = 1e-9

// ErrInvalidArgument reports a precondition violation such as a non-positive
// width or line height.
var ErrInvalidArgument = errors.New("wrap: invalid argument")

// MeasureFunc returns the rendered width of s under a fixed font.
type MeasureFunc func(s string) float64

// Constraints bounds a layout call.
type Constraints struct {
	MaxWidth float64
	// MaxHeight <= 0 表示不限制高度。
	MaxHeight  float64
	LineHeight float64
}

func (c Constraints) validate() error {
	if c.MaxWidth <= 0 {
		return fmt.Errorf("%w: max width must be positive, got %g", ErrInvalidArgument, c.MaxWidth)
	}
	if c.LineHeight <= 0 {
		return fmt.Errorf("%w: line height must be positive, got %g", ErrInvalidArgument, c.LineHeight)
	}
	return nil
}

// Result is the outcome of Fit.
type Result struct {
	Lines  []string
	Widths []float64 // measured width of each line
	// Consumed counts the words placed on Lines; Total counts the input words.
	Consumed int
	Total    int
}

// Truncated reports whether the height budget dropped trailing words.
func (r Result) Truncated() bool { return r.Consumed < r.Total }

// Height returns the vertical space used by the lines.
func (r Result) Height(lineHeight float64) float64 {
	return float64(len(r.Lines)) * lineHeight
}

// Words splits text on whitespace.
func Words(text string) []string { return strings.Fields(text) }

// Join turns laid-out lines back into text.
func Join(lines []string) string { return strings.Join(lines, "\n") }

// Layout wraps text greedily and returns the lines.
func Layout(text string, measure MeasureFunc, c Constraints) ([]string, error) {
	res, err := Fit(text, measure, c)
	if err != nil {
		return nil, err
	}
	return res.Lines, nil
}

// Fit wraps text greedily. A line is never split inside a word: a word wider
// than MaxWidth still gets a line of its own. When MaxHeight is set, lines
// that would push the running offset past it are dropped with the rest of
// the words.
func Fit(text string, measure MeasureFunc, c Constraints) (Result, error) {
	if measure == nil {
		return Result{}, fmt.Errorf("%w: measure function is nil", ErrInvalidArgument)
	}
	if err := c.validate(); err != nil {
		return Result{}, err
	}

	words := Words(text)
	res := Result{Lines: []string{}, Widths: []float64{}, Total: len(words)}
	bounded := c.MaxHeight > 0
	offset := 0.0

	// commit 返回 false 表示高度预算已用尽。
	commit := func(line []string, width float64) bool {
		if bounded && offset+c.LineHeight > c.MaxHeight+heightEpsilon {
			return false
		}
		res.Lines = append(res.Lines, strings.Join(line, " "))
		res.Widths = append(res.Widths, width)
		res.Consumed += len(line)
		offset += c.LineHeight
		return true
	}

	var current []string
	currentWidth := 0.0
	for _, word := range words {
		candidate := append(current, word)
		width := measure(strings.Join(candidate, " "))
		if width > c.MaxWidth && len(current) > 0 {
			if !commit(current, currentWidth) {
				return res, nil
			}
			current = []string{word}
			currentWidth = measure(word)
			continue
		}
		current = candidate
		currentWidth = width
	}
	if len(current) > 0 {
		commit(current, currentWidth)
	}
	return res, nil
}
