package dsl

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	dslLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
		{Name: "BlockComment", Pattern: `/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`},
		{Name: "LineComment", Pattern: `//[^\n]*`},
		// 先匹配长的颜色值，否则 #ffffff 会被截成 #fff。
		{Name: "Color", Pattern: `#(?:[0-9A-Fa-f]{8}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{3})\b`},
		{Name: "HashComment", Pattern: `#[^\n]*`},
		{Name: "Number", Pattern: `-?(?:\d+\.\d+|\d+)(?:px|pt|mm|in|x)?`},
		{Name: "String", Pattern: `"(?:\\.|[^"])*"`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_-]*`},
		{Name: "Symbol", Pattern: `[:;=,]`},
		{Name: "LBrace", Pattern: `{`},
		{Name: "RBrace", Pattern: `}`},
	})

	templateParser = participle.MustBuild[Template](
		participle.Lexer(dslLexer),
		participle.Elide("Whitespace", "LineComment", "BlockComment", "HashComment"),
	)
)

// Template is the root AST node of a template file.
type Template struct {
	Pos     lexer.Position `parser:"" json:"-"`
	Name    string         `parser:"'template' @Ident"`
	Version string         `parser:"@Ident?"`
	Entries []*Entry       `parser:"'{' @@* '}'"`
}

// Entry is either a named colour or a drawable/config element.
type Entry struct {
	Color   *ColorDef `parser:"  @@"`
	Element *Element  `parser:"| @@"`
}

// ColorDef declares a named colour: `color Ink = #222222`.
type ColorDef struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Name  string         `parser:"'color' @Ident"`
	Value string         `parser:"'=' @Color"`
}

// Element is `kind [name] { key: value ... }`, e.g. a canvas, font or region.
type Element struct {
	Pos        lexer.Position `parser:"" json:"-"`
	Kind       string         `parser:"@Ident"`
	Name       string         `parser:"@Ident?"`
	Properties []*Property    `parser:"'{' ( @@ ( ';' | ',' )? )* '}'"`
}

// Property is a single `key: value` pair.
type Property struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Key   string         `parser:"@Ident ':'"`
	Value *Value         `parser:"@@"`
}

// Value holds exactly one literal.
type Value struct {
	String *StringLiteral `parser:"  @String"`
	Number *string        `parser:"| @Number"`
	Color  *string        `parser:"| @Color"`
	Ident  *string        `parser:"| @Ident"`
}

// Text returns the literal as written (strings unquoted).
func (v *Value) Text() string {
	switch {
	case v == nil:
		return ""
	case v.String != nil:
		return string(*v.String)
	case v.Number != nil:
		return *v.Number
	case v.Color != nil:
		return *v.Color
	case v.Ident != nil:
		return *v.Ident
	default:
		return ""
	}
}

// Props returns the element properties as a map; later keys win.
func (e *Element) Props() map[string]string {
	out := make(map[string]string, len(e.Properties))
	for _, p := range e.Properties {
		out[strings.ToLower(p.Key)] = p.Value.Text()
	}
	return out
}

// Colors returns the colour definitions in declaration order.
func (t *Template) Colors() []*ColorDef {
	var out []*ColorDef
	for _, e := range t.Entries {
		if e.Color != nil {
			out = append(out, e.Color)
		}
	}
	return out
}

// Elements returns the elements of the given kinds, or all of them when no
// kind is given, in declaration order.
func (t *Template) Elements(kinds ...string) []*Element {
	var out []*Element
	for _, e := range t.Entries {
		if e.Element == nil {
			continue
		}
		if len(kinds) == 0 {
			out = append(out, e.Element)
			continue
		}
		for _, k := range kinds {
			if strings.EqualFold(e.Element.Kind, k) {
				out = append(out, e.Element)
				break
			}
		}
	}
	return out
}

// StringLiteral unquotes Go-style strings on capture.
type StringLiteral string

// Capture implements participle.Capture.
func (s *StringLiteral) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("string literal capture requires value")
	}
	val, err := strconv.Unquote(values[0])
	if err != nil {
		return err
	}
	*s = StringLiteral(val)
	return nil
}

// Parse parses a template from an io.Reader. name is used in error positions.
func Parse(name string, r io.Reader) (*Template, error) {
	return templateParser.Parse(name, r)
}

// ParseString parses a template from a string.
func ParseString(input string) (*Template, error) {
	return templateParser.ParseString("", input)
}
