package layout

import (
	"fmt"
	"strings"

	"github.com/ByLCY/infograph/binding"
	"github.com/ByLCY/infograph/wrap"
)

const creator = "infograph"

// Build 将数据绑定到模板并计算所有区域的最终坐标。
// 文本区域通过 Typesetter 获取测量函数，由 wrap.Fit 贪心折行。
func Build(tpl *Template, data any, opts BuildOptions) (*Result, error) {
	if tpl == nil {
		return nil, fmt.Errorf("模板为空")
	}
	if opts.Typesetter == nil {
		return nil, fmt.Errorf("layout: 缺少排版后端 Typesetter")
	}

	page := Page{
		Width:      tpl.Canvas.Width,
		Height:     tpl.Canvas.Height,
		Background: tpl.Canvas.Background,
		Texts:      []TextBox{},
	}
	cache := &measureCache{ts: opts.Typesetter, entries: map[measureKey]measured{}}

	for _, region := range tpl.Regions {
		if region.When != "" && !binding.Present(data, region.When) {
			continue
		}
		switch region.Kind {
		case RegionText:
			tb, err := composeTextBox(region, tpl.Resources, data, cache, opts.Debug)
			if err != nil {
				return nil, err
			}
			page.Texts = append(page.Texts, tb)
		case RegionCircle:
			page.Circles = append(page.Circles, Circle{
				CX:          region.CX,
				CY:          region.CY,
				R:           region.R,
				StrokeColor: region.Stroke,
				StrokeWidth: region.StrokeWidth,
				FillColor:   region.Fill,
			})
		case RegionRect:
			page.Rects = append(page.Rects, Rect{
				X:           region.X,
				Y:           region.Y,
				Width:       region.Width,
				Height:      region.Height,
				StrokeColor: region.Stroke,
				StrokeWidth: region.StrokeWidth,
				FillColor:   region.Fill,
			})
		case RegionLine:
			ln := Line{X1: region.X, Y1: region.Y, X2: region.X2, Y2: region.Y2, Width: region.StrokeWidth}
			if region.Stroke != nil {
				ln.Color = *region.Stroke
			}
			page.Lines = append(page.Lines, ln)
		case RegionImage:
			src := strings.TrimSpace(binding.Interpolate(region.Src, data))
			if src == "" {
				continue
			}
			page.Images = append(page.Images, ImageBox{
				Region: region.Name,
				Src:    src,
				X:      region.X,
				Y:      region.Y,
				Width:  region.Width,
				Height: region.Height,
				Fit:    region.Fit,
			})
		default:
			return nil, fmt.Errorf("区域 %s 的类型 %q 不受支持", region.Name, region.Kind)
		}
	}

	return &Result{
		Template:  tpl.Name,
		Prompt:    tpl.Canvas.Prompt,
		Page:      page,
		Resources: tpl.Resources,
		Meta:      collectMeta(tpl, data),
	}, nil
}

func collectMeta(tpl *Template, data any) DocumentMeta {
	meta := DocumentMeta{Title: tpl.Name, Creator: creator}
	if v, ok := binding.Lookup(data, "title"); ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			meta.Title = strings.TrimSpace(s)
		}
	}
	return meta
}

func composeTextBox(region Region, res ResourceSet, data any, cache *measureCache, debug DebugOptions) (TextBox, error) {
	content := strings.TrimSpace(binding.Interpolate(region.Content, data))
	if content == "" {
		content = region.Fallback
	}

	font, ok := res.Fonts[region.Font]
	if !ok {
		return TextBox{}, fmt.Errorf("区域 %s: 字体 %s 未定义", region.Name, region.Font)
	}
	sizePx := region.FontSize.ToPX()
	m, err := cache.get(font, sizePx)
	if err != nil {
		return TextBox{}, fmt.Errorf("区域 %s: %w", region.Name, err)
	}

	lineHeight := region.LineHeight.Resolve(sizePx, m.metrics.LineHeight, region.LineGap)
	c := wrap.Constraints{MaxWidth: region.Width, LineHeight: lineHeight}
	if region.Clip {
		c.MaxHeight = region.Height
	}
	fit, err := wrap.Fit(content, m.measure, c)
	if err != nil {
		return TextBox{}, fmt.Errorf("区域 %s 排版失败: %w", region.Name, err)
	}

	lines := make([]TextLine, len(fit.Lines))
	for i, s := range fit.Lines {
		lines[i] = TextLine{Content: s, Width: fit.Widths[i], Offset: float64(i) * lineHeight}
	}

	tb := TextBox{
		Region:     region.Name,
		Content:    content,
		X:          region.X,
		Y:          region.Y,
		Width:      region.Width,
		Height:     fit.Height(lineHeight),
		LineHeight: lineHeight,
		Ascent:     m.metrics.Ascent,
		Font:       font.Name,
		FontSize:   sizePx,
		Color:      region.Color,
		Align:      region.Align,
		Lines:      lines,
		Consumed:   fit.Consumed,
		Total:      fit.Total,
		Truncated:  fit.Truncated(),
	}
	if debug.RawUnits {
		tb.Debug = &TextBoxDebug{RawUnits: rawUnits(region)}
	}
	return tb, nil
}

func rawUnits(region Region) *RawUnits {
	size := RawLengthJSON{Value: region.FontSize.Value, Unit: UnitToString(region.FontSize.Unit)}
	var lh RawLineHeightJSON
	switch region.LineHeight.Kind {
	case LineHeightFactor:
		lh = RawLineHeightJSON{Kind: "factor", Factor: region.LineHeight.Factor}
	case LineHeightAbsolute:
		lh = RawLineHeightJSON{
			Kind:  "absolute",
			Value: region.LineHeight.Len.Value,
			Unit:  UnitToString(region.LineHeight.Len.Unit),
		}
	default:
		lh = RawLineHeightJSON{Kind: "metrics", Gap: region.LineGap}
	}
	return &RawUnits{FontSize: &size, LineHeight: &lh}
}

type measureKey struct {
	font string
	size float64
}

type measured struct {
	measure wrap.MeasureFunc
	metrics FontMetrics
}

// measureCache 在一次 Build 内复用同一字体与字号的测量函数。
type measureCache struct {
	ts      Typesetter
	entries map[measureKey]measured
}

func (c *measureCache) get(font FontResource, sizePx float64) (measured, error) {
	key := measureKey{font: font.Name, size: sizePx}
	if m, ok := c.entries[key]; ok {
		return m, nil
	}
	fn, metrics, err := c.ts.Measurer(font, sizePx)
	if err != nil {
		return measured{}, fmt.Errorf("加载字体 %s 失败: %w", font.Name, err)
	}
	m := measured{measure: fn, metrics: metrics}
	c.entries[key] = m
	return m, nil
}
