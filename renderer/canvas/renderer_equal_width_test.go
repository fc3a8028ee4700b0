package canvasrenderer

import (
	"testing"

	"github.com/ByLCY/infograph/layout"
	"github.com/ByLCY/infograph/wrap"
)

// 当一行宽度与容器宽度恰好相等时，该行应保留在一行内，下一个词另起一行。
func TestLineEqualToWidthIsKept(t *testing.T) {
	r := newTestRenderer(t)
	measure, metrics, err := r.Measurer(layout.FontResource{Name: "Body", Src: "embed:go-regular"}, 24)
	if err != nil {
		t.Fatalf("Measurer error: %v", err)
	}

	first := "SAMPLE-A"
	limit := measure(first)
	if limit <= 0 {
		t.Fatalf("invalid measured width: %g", limit)
	}

	lines, err := wrap.Layout(first+" SAMPLE-B", measure, wrap.Constraints{MaxWidth: limit, LineHeight: metrics.LineHeight})
	if err != nil {
		t.Fatalf("Layout error: %v", err)
	}
	if len(lines) != 2 || lines[0] != first || lines[1] != "SAMPLE-B" {
		t.Fatalf("unexpected lines: %q", lines)
	}
}
