package layout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/ByLCY/infograph/dsl"
	"github.com/ByLCY/infograph/fonts"
)

const (
	defaultFontName = "Body"
	defaultFontSize = 16.0
	defaultStroke   = 1.0
)

// ErrInvalidTemplate reports a template that parses but cannot be compiled.
var ErrInvalidTemplate = errors.New("invalid template")

var black = Color{A: 255}

// Compile 校验模板 AST 并转换为布局使用的 Template。
// 未知元素类型、缺失的必填属性、未定义的字体或颜色引用都会返回 ErrInvalidTemplate。
func Compile(doc *dsl.Template) (*Template, error) {
	if doc == nil {
		return nil, fmt.Errorf("模板为空: %w", ErrInvalidTemplate)
	}
	tpl := &Template{
		Name:    doc.Name,
		Version: doc.Version,
		Resources: ResourceSet{
			Fonts:  map[string]FontResource{},
			Colors: map[string]Color{},
		},
	}

	for _, def := range doc.Colors() {
		c, err := parseColor(def.Value)
		if err != nil {
			return nil, invalidf(def.Pos, "颜色 %s: %v", def.Name, err)
		}
		tpl.Resources.Colors[def.Name] = c
	}

	canvases := doc.Elements("canvas")
	if len(canvases) == 0 {
		return nil, invalidf(doc.Pos, "模板 %s 缺少 canvas 定义", doc.Name)
	}
	if len(canvases) > 1 {
		return nil, invalidf(canvases[1].Pos, "canvas 只能定义一次")
	}
	canvas, err := compileCanvas(canvases[0], tpl.Resources.Colors)
	if err != nil {
		return nil, err
	}
	tpl.Canvas = canvas

	var fontOrder []string
	for _, el := range doc.Elements("font") {
		font, err := compileFont(el)
		if err != nil {
			return nil, err
		}
		if _, dup := tpl.Resources.Fonts[font.Name]; dup {
			return nil, invalidf(el.Pos, "字体 %s 重复定义", font.Name)
		}
		tpl.Resources.Fonts[font.Name] = font
		fontOrder = append(fontOrder, font.Name)
	}
	if len(fontOrder) == 0 {
		tpl.Resources.Fonts[defaultFontName] = FontResource{Name: defaultFontName, Src: fonts.DefaultSource}
		fontOrder = append(fontOrder, defaultFontName)
	}

	names := map[string]bool{}
	for i, el := range doc.Elements() {
		kind := RegionKind(strings.ToLower(el.Kind))
		switch kind {
		case "canvas", "font":
			continue
		case RegionText, RegionCircle, RegionRect, RegionLine, RegionImage:
		default:
			return nil, invalidf(el.Pos, "未知的元素类型 %q", el.Kind)
		}
		p := newProps(el, kind, i, tpl.Resources.Colors)
		if names[p.name] {
			return nil, invalidf(el.Pos, "区域 %s 重复定义", p.name)
		}
		names[p.name] = true

		region, err := compileRegion(p, tpl.Resources.Fonts, fontOrder[0])
		if err != nil {
			return nil, err
		}
		tpl.Regions = append(tpl.Regions, region)
	}
	return tpl, nil
}

func compileCanvas(el *dsl.Element, colors map[string]Color) (CanvasSpec, error) {
	p := newProps(el, "canvas", 0, colors)
	spec := CanvasSpec{
		Width:      p.required("width"),
		Height:     p.required("height"),
		Background: Color{R: 255, G: 255, B: 255, A: 255},
		Prompt:     p.str("prompt"),
	}
	if c := p.color("background"); c != nil {
		spec.Background = *c
	}
	if p.err == nil && (spec.Width <= 0 || spec.Height <= 0) {
		p.fail("画布尺寸必须为正数")
	}
	return spec, p.err
}

func compileFont(el *dsl.Element) (FontResource, error) {
	if el.Name == "" {
		return FontResource{}, invalidf(el.Pos, "font 缺少名称")
	}
	p := newProps(el, "font", 0, nil)
	font := FontResource{
		Name:     el.Name,
		Src:      p.str("src"),
		Style:    p.str("style"),
		Fallback: p.str("fallback"),
		Size:     p.px("size"),
	}
	if font.Src == "" {
		p.fail("缺少 src")
	}
	return font, p.err
}

func compileRegion(p *props, fontsByName map[string]FontResource, defaultFont string) (Region, error) {
	r := Region{
		Kind:        p.kind,
		Name:        p.name,
		When:        p.str("when"),
		Stroke:      p.color("stroke"),
		StrokeWidth: p.px("stroke-width"),
		Fill:        p.color("fill"),
	}

	switch p.kind {
	case RegionText:
		r.X, r.Y = p.px("x"), p.px("y")
		r.Width = p.required("width")
		r.Height = p.px("height")
		r.Content = p.str("content")
		r.Fallback = p.str("fallback")
		r.LineGap = p.px("line-gap")
		r.Clip = p.bool("clip")
		r.Align = p.align("align")
		r.Color = black
		if c := p.color("color"); c != nil {
			r.Color = *c
		}

		r.Font = p.str("font")
		if r.Font == "" {
			r.Font = defaultFont
		}
		font, ok := fontsByName[r.Font]
		if !ok {
			p.fail("字体 %s 未定义", r.Font)
		}
		switch {
		case p.has("size"):
			r.FontSize = p.length("size")
		case font.Size > 0:
			r.FontSize = Px(font.Size)
		default:
			r.FontSize = Px(defaultFontSize)
		}
		if v := p.str("line-height"); v != "" {
			spec, err := ParseLineHeight(v)
			if err != nil {
				p.fail("line-height: %v", err)
			}
			r.LineHeight = spec
		}
		if p.err == nil {
			if r.Width <= 0 {
				p.fail("width 必须为正数")
			}
			if r.FontSize.ToPX() <= 0 {
				p.fail("字号必须为正数")
			}
			if r.Clip && r.Height <= 0 {
				p.fail("clip 需要正的 height")
			}
			if r.LineGap < 0 {
				p.fail("line-gap 不能为负数")
			}
		}

	case RegionCircle:
		r.CX, r.CY = p.px("cx"), p.px("cy")
		r.R = p.required("r")
		if p.err == nil && r.R <= 0 {
			p.fail("r 必须为正数")
		}
		defaultOutline(&r)

	case RegionRect:
		r.X, r.Y = p.px("x"), p.px("y")
		r.Width, r.Height = p.required("width"), p.required("height")
		if p.err == nil && (r.Width <= 0 || r.Height <= 0) {
			p.fail("矩形尺寸必须为正数")
		}
		defaultOutline(&r)

	case RegionLine:
		r.X, r.Y = p.required("x1"), p.required("y1")
		r.X2, r.Y2 = p.required("x2"), p.required("y2")
		if r.Stroke == nil {
			if c := p.color("color"); c != nil {
				r.Stroke = c
			} else {
				r.Stroke = &Color{A: 255}
			}
		}
		if r.StrokeWidth <= 0 {
			r.StrokeWidth = defaultStroke
		}

	case RegionImage:
		r.X, r.Y = p.px("x"), p.px("y")
		r.Width, r.Height = p.required("width"), p.required("height")
		r.Src = p.str("src")
		r.Fit = strings.ToLower(p.str("fit"))
		if r.Fit == "" {
			r.Fit = "contain"
		}
		if p.err == nil {
			if r.Src == "" {
				p.fail("缺少 src")
			}
			if r.Width <= 0 || r.Height <= 0 {
				p.fail("图片尺寸必须为正数")
			}
			if r.Fit != "cover" && r.Fit != "contain" && r.Fit != "stretch" {
				p.fail("未知的 fit 模式 %q", r.Fit)
			}
		}
	}
	return r, p.err
}

// defaultOutline 在既无描边也无填充时使用 1px 黑色描边。
func defaultOutline(r *Region) {
	if r.Stroke == nil && r.Fill == nil {
		r.Stroke = &Color{A: 255}
	}
	if r.Stroke != nil && r.StrokeWidth <= 0 {
		r.StrokeWidth = defaultStroke
	}
}

// props 读取元素属性，并记录遇到的第一个错误。
type props struct {
	pos    lexer.Position
	kind   RegionKind
	name   string
	values map[string]string
	colors map[string]Color
	err    error
}

func newProps(el *dsl.Element, kind RegionKind, index int, colors map[string]Color) *props {
	name := el.Name
	if name == "" {
		name = fmt.Sprintf("%s-%d", kind, index)
	}
	return &props{pos: el.Pos, kind: kind, name: name, values: el.Props(), colors: colors}
}

func (p *props) fail(format string, args ...any) {
	if p.err != nil {
		return
	}
	p.err = invalidf(p.pos, "%s %s: %s", p.kind, p.name, fmt.Sprintf(format, args...))
}

func (p *props) has(key string) bool {
	_, ok := p.values[key]
	return ok
}

func (p *props) str(key string) string { return strings.TrimSpace(p.values[key]) }

func (p *props) length(key string) Length {
	v, ok := p.values[key]
	if !ok {
		return Length{}
	}
	l, err := ParseLength(v)
	if err != nil {
		p.fail("%s: %v", key, err)
		return Length{}
	}
	return l
}

func (p *props) px(key string) float64 { return p.length(key).ToPX() }

func (p *props) required(key string) float64 {
	if !p.has(key) {
		p.fail("缺少必填属性 %s", key)
		return 0
	}
	return p.px(key)
}

func (p *props) bool(key string) bool {
	v := p.str(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail("%s 需要布尔值，实际 %q", key, v)
	}
	return b
}

func (p *props) align(key string) string {
	v := strings.ToLower(p.str(key))
	switch v {
	case "", "left", "start":
		return "left"
	case "center", "right":
		return v
	case "end":
		return "right"
	default:
		p.fail("未知的对齐方式 %q", v)
		return "left"
	}
}

func (p *props) color(key string) *Color {
	v := p.str(key)
	if v == "" {
		return nil
	}
	c, err := resolveColor(v, p.colors)
	if err != nil {
		p.fail("%s: %v", key, err)
		return nil
	}
	return &c
}

func resolveColor(value string, colors map[string]Color) (Color, error) {
	if c, ok := colors[value]; ok {
		return c, nil
	}
	if strings.HasPrefix(value, "#") {
		return parseColor(value)
	}
	if c, ok := namedColors[strings.ToLower(value)]; ok {
		return c, nil
	}
	return Color{}, fmt.Errorf("颜色 %s 未定义", value)
}

var namedColors = map[string]Color{
	"black": {0, 0, 0, 255},
	"white": {255, 255, 255, 255},
	"gray":  {128, 128, 128, 255},
	"red":   {255, 0, 0, 255},
	"green": {0, 128, 0, 255},
	"blue":  {0, 0, 255, 255},
}

func parseColor(value string) (Color, error) {
	value = strings.TrimPrefix(value, "#")
	switch len(value) {
	case 3:
		r := strings.Repeat(string(value[0]), 2)
		g := strings.Repeat(string(value[1]), 2)
		b := strings.Repeat(string(value[2]), 2)
		return hexColor(r, g, b, "ff")
	case 6:
		return hexColor(value[0:2], value[2:4], value[4:6], "ff")
	case 8:
		return hexColor(value[0:2], value[2:4], value[4:6], value[6:8])
	default:
		return Color{}, fmt.Errorf("颜色值 #%s 无法解析", value)
	}
}

func hexColor(r, g, b, a string) (Color, error) {
	var out [4]int
	for i, s := range []string{r, g, b, a} {
		v, err := strconv.ParseUint(s, 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("颜色分量 %s 无法解析", s)
		}
		out[i] = int(v)
	}
	return Color{R: out[0], G: out[1], B: out[2], A: out[3]}, nil
}

func invalidf(pos lexer.Position, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", pos, fmt.Sprintf(format, args...), ErrInvalidTemplate)
}
