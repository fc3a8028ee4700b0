package dsl_test

import (
	"strings"
	"testing"

	"github.com/ByLCY/infograph/dsl"
)

const sampleTemplate = `
// five-up infographic
template sections v1 {
  canvas { width: 1400 height: 800 background: #ffffff prompt: sections }

  color Ink = #000000
  # hash comments are allowed too

  font Title { src: "embed:go-bold" size: 40px }
  font Body { src: "arial.ttf"; fallback: "embed:go-regular"; size: 20px }

  text title { x: 50 y: 30 width: 1300 height: 60 font: Title content: "${title}" }
  circle ring1 {
    cx: 80
    cy: 180
    r: 90
    stroke: Ink
    stroke-width: 3
    when: "sections[0]"
  }
  text body1 { x: 80, y: 380, width: 220, height: 180, font: Body, line-gap: 5, content: "${sections[0]}" }
}
`

func TestParseTemplate(t *testing.T) {
	tpl, err := dsl.ParseString(sampleTemplate)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tpl.Name != "sections" || tpl.Version != "v1" {
		t.Fatalf("unexpected header: %s %s", tpl.Name, tpl.Version)
	}

	colors := tpl.Colors()
	if len(colors) != 1 || colors[0].Name != "Ink" || colors[0].Value != "#000000" {
		t.Fatalf("unexpected colors: %#v", colors)
	}

	all := tpl.Elements()
	if len(all) != 6 {
		t.Fatalf("expected 6 elements, got %d", len(all))
	}
	fonts := tpl.Elements("font")
	if len(fonts) != 2 || fonts[1].Name != "Body" {
		t.Fatalf("unexpected fonts: %#v", fonts)
	}
	if got := fonts[1].Props()["fallback"]; got != "embed:go-regular" {
		t.Fatalf("unexpected fallback %q", got)
	}

	canvas := tpl.Elements("canvas")
	if len(canvas) != 1 || canvas[0].Name != "" {
		t.Fatalf("expected one anonymous canvas, got %#v", canvas)
	}
	props := canvas[0].Props()
	if props["background"] != "#ffffff" || props["width"] != "1400" || props["prompt"] != "sections" {
		t.Fatalf("unexpected canvas props: %#v", props)
	}

	circle := tpl.Elements("circle")[0].Props()
	if circle["stroke-width"] != "3" || circle["when"] != "sections[0]" || circle["stroke"] != "Ink" {
		t.Fatalf("unexpected circle props: %#v", circle)
	}

	text := tpl.Elements("text")
	if len(text) != 2 {
		t.Fatalf("expected 2 text regions, got %d", len(text))
	}
	if got := text[0].Props()["content"]; got != "${title}" {
		t.Fatalf("unexpected content %q", got)
	}
	if got := text[1].Props()["line-gap"]; got != "5" {
		t.Fatalf("unexpected line-gap %q", got)
	}
}

func TestParseShortColor(t *testing.T) {
	tpl, err := dsl.ParseString(`template t { rect box { x: 1 y: 2 width: 3px height: -4 fill: #abc } }`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	props := tpl.Elements("rect")[0].Props()
	if props["fill"] != "#abc" || props["height"] != "-4" || props["width"] != "3px" {
		t.Fatalf("unexpected props: %#v", props)
	}
	if tpl.Version != "" {
		t.Fatalf("expected empty version, got %q", tpl.Version)
	}
}

func TestParseErrorsCarryPosition(t *testing.T) {
	_, err := dsl.Parse("broken.ifg", strings.NewReader("template t {\n  text a { x 10 }\n}"))
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if !strings.Contains(err.Error(), "broken.ifg:2") {
		t.Fatalf("expected error position in %q", err.Error())
	}
}

func TestParseRejectsPercentLength(t *testing.T) {
	if _, err := dsl.ParseString(`template t { rect box { width: 50% height: 1 } }`); err == nil {
		t.Fatalf("expected lexer error for percent length")
	}
}
