package canvasrenderer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/ByLCY/infograph/dsl"
	"github.com/ByLCY/infograph/fonts"
	"github.com/ByLCY/infograph/layout"
	"github.com/ByLCY/infograph/renderer"
)

func newTestRenderer(t *testing.T, opts ...func(*Options)) *Renderer {
	t.Helper()
	o := Options{BaseDir: t.TempDir(), Logger: log.New(io.Discard, "", 0)}
	for _, fn := range opts {
		fn(&o)
	}
	return NewRendererWithOptions(o)
}

func buildResult(t *testing.T, r *Renderer, src string, data any) *layout.Result {
	t.Helper()
	doc, err := dsl.ParseString(src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	tpl, err := layout.Compile(doc)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	res, err := layout.Build(tpl, data, layout.BuildOptions{Typesetter: r})
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	return res
}

const rendererTemplate = `template t {
  canvas { width: 400 height: 200 background: #ffffff }
  color Ink = #000000
  font Body { src: "missing/arial.ttf" fallback: "embed:go-regular" size: 20px }
  circle ring { cx: 60 cy: 60 r: 40 stroke: Ink stroke-width: 3 }
  text body { x: 120 y: 20 width: 260 height: 160 font: Body clip: true content: "${body}" }
}`

func TestMeasurerUsesFontMetrics(t *testing.T) {
	r := newTestRenderer(t)
	measure, metrics, err := r.Measurer(layout.FontResource{Name: "Body", Src: "embed:go-regular"}, 20)
	if err != nil {
		t.Fatalf("Measurer error: %v", err)
	}
	if metrics.LineHeight <= 0 || metrics.Ascent <= 0 {
		t.Fatalf("invalid metrics: %+v", metrics)
	}
	short, long := measure("hello"), measure("hello world")
	if short <= 0 || long <= short {
		t.Fatalf("widths should grow with text: %g, %g", short, long)
	}
	if measure("") != 0 {
		t.Fatalf("empty string should measure 0")
	}

	// 字号翻倍，宽度也翻倍
	measure2, _, err := r.Measurer(layout.FontResource{Name: "Body", Src: "embed:go-regular"}, 40)
	if err != nil {
		t.Fatalf("Measurer error: %v", err)
	}
	if diff := measure2("hello") - 2*short; diff > 1e-3*short || diff < -1e-3*short {
		t.Fatalf("expected width to scale with size: %g vs %g", measure2("hello"), 2*short)
	}

	if _, _, err := r.Measurer(layout.FontResource{Src: "embed:go-regular"}, 0); err == nil {
		t.Fatalf("expected error for zero size")
	}
}

func TestMissingFontFallsBackToDefault(t *testing.T) {
	r := newTestRenderer(t)
	measure, _, err := r.Measurer(layout.FontResource{Name: "Arial", Src: "arial.ttf"}, 20)
	if err != nil {
		t.Fatalf("expected fallback font, got error: %v", err)
	}
	if measure("abc") <= 0 {
		t.Fatalf("fallback font should measure text")
	}
}

func TestLoadFontBytesFallbackOrder(t *testing.T) {
	var logs bytes.Buffer
	r := newTestRenderer(t, func(o *Options) { o.Logger = log.New(&logs, "", 0) })

	_, location, err := r.loadFontBytes(layout.FontResource{Name: "Title", Src: "arial.ttf", Fallback: "embed:go-bold"})
	if err != nil {
		t.Fatalf("loadFontBytes: %v", err)
	}
	if location != "embed:go-bold" {
		t.Fatalf("location = %q, want embed:go-bold", location)
	}
	if logs.Len() != 0 {
		t.Fatalf("resolved fallback should not warn, got %q", logs.String())
	}

	data, location, err := r.loadFontBytes(layout.FontResource{Name: "Arial", Src: "arial.ttf", Fallback: "missing.ttf"})
	if err != nil {
		t.Fatalf("loadFontBytes: %v", err)
	}
	if location != fonts.DefaultSource || !bytes.Equal(data, fonts.Default()) {
		t.Fatalf("location = %q, want default font", location)
	}
	if !strings.Contains(logs.String(), "warning: 字体 Arial (arial.ttf) 未找到") {
		t.Fatalf("missing fallback warning, got %q", logs.String())
	}
}

func TestRenderPNG(t *testing.T) {
	r := newTestRenderer(t)
	res := buildResult(t, r, rendererTemplate, map[string]any{"body": strings.Repeat("lorem ipsum dolor ", 40)})
	tb := res.Page.Texts[0]
	if !tb.Truncated || tb.Height > 160 {
		t.Fatalf("expected clipped text box, got %d/%d height %g", tb.Consumed, tb.Total, tb.Height)
	}
	for i, ln := range tb.Lines {
		if ln.Width > tb.Width {
			t.Fatalf("line %d width %g exceeds %g", i, ln.Width, tb.Width)
		}
	}

	data, err := r.Render(res, renderer.PNG)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 200 {
		t.Fatalf("unexpected image size %v", b)
	}
	if r, g, b, _ := img.At(395, 195).RGBA(); r>>8 < 250 || g>>8 < 250 || b>>8 < 250 {
		t.Fatalf("expected white background in the corner, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestRenderPDF(t *testing.T) {
	r := newTestRenderer(t)
	res := buildResult(t, r, rendererTemplate, map[string]any{"body": "hello world"})
	data, err := r.Render(res, renderer.PDF)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	r := newTestRenderer(t)
	res := buildResult(t, r, rendererTemplate, nil)
	if _, err := r.Render(res, renderer.Format("gif")); !errors.Is(err, renderer.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := r.Render(nil, renderer.PNG); err == nil {
		t.Fatalf("expected error for nil result")
	}
}

const imageTemplate = `template img {
  canvas { width: 200 height: 200 }
  image photo { x: 0 y: 0 width: 100 height: 100 src: "built-in:photo" fit: cover }
}`

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImagePolicy(t *testing.T) {
	strict := newTestRenderer(t)
	res := buildResult(t, strict, imageTemplate, nil)
	if _, err := strict.Render(res, renderer.PNG); err == nil {
		t.Fatalf("fail policy should report the missing image")
	}

	lenient := newTestRenderer(t, func(o *Options) { o.ImagePolicy = ImageSkip })
	if _, err := lenient.Render(res, renderer.PNG); err != nil {
		t.Fatalf("skip policy should render, got %v", err)
	}

	withImage := strict.WithImages(map[string][]byte{"photo": solidPNG(t, 40, 20, color.RGBA{R: 255, A: 255})})
	data, err := withImage.Render(res, renderer.PNG)
	if err != nil {
		t.Fatalf("Render with image error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !hasRedPixel(img) {
		t.Fatalf("expected the red image to be drawn")
	}
}

func hasRedPixel(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r>>8 > 200 && g>>8 < 60 && bl>>8 < 60 {
				return true
			}
		}
	}
	return false
}

func TestFitImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	box := layout.ImageBox{Width: 100, Height: 100}

	box.Fit = "contain"
	img, dx, dy := fitImage(src, box)
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 || dx != 0 || dy != 25 {
		t.Fatalf("contain: got %v offset %g,%g", b, dx, dy)
	}

	box.Fit = "cover"
	img, dx, dy = fitImage(src, box)
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 || dx != 0 || dy != 0 {
		t.Fatalf("cover: got %v offset %g,%g", b, dx, dy)
	}

	box.Fit = "stretch"
	box.Height = 30
	img, _, _ = fitImage(src, box)
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 30 {
		t.Fatalf("stretch: got %v", b)
	}
}

func TestParseImagePolicy(t *testing.T) {
	for in, want := range map[string]ImagePolicy{"": ImageFail, "FAIL": ImageFail, "skip": ImageSkip, "best-effort": ImageSkip} {
		got, err := ParseImagePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseImagePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseImagePolicy("maybe"); err == nil {
		t.Fatalf("expected error")
	}
}
