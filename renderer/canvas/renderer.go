package canvasrenderer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"
	"github.com/tdewolff/canvas/renderers/rasterizer"

	"github.com/ByLCY/infograph/fonts"
	"github.com/ByLCY/infograph/layout"
	"github.com/ByLCY/infograph/renderer"
	"github.com/ByLCY/infograph/wrap"
)

// 画布单位即像素：PNG 以每单位 1 个像素栅格化。字体接口使用 pt，
// 因此 px 字号在创建字体面时按 mm→pt 换算，使 em 大小恰好等于 px 值。
const defaultStrokeWidth = 1.0

var (
	transparent     = color.RGBA{}
	placeholderGray = color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
)

// ImagePolicy decides what happens when an image region cannot be loaded.
type ImagePolicy string

const (
	// ImageFail aborts rendering with an error.
	ImageFail ImagePolicy = "fail"
	// ImageSkip logs a warning and draws an outline placeholder instead.
	ImageSkip ImagePolicy = "skip"
)

// ParseImagePolicy accepts "fail" (or empty) and "skip".
func ParseImagePolicy(s string) (ImagePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail", "fail-fast":
		return ImageFail, nil
	case "skip", "best-effort":
		return ImageSkip, nil
	default:
		return "", fmt.Errorf("未知的图片失败策略 %q", s)
	}
}

// Renderer draws layout results via github.com/tdewolff/canvas and measures
// text for the layout engine with the same font faces.
type Renderer struct {
	baseDir    string
	resolver   fonts.Resolver
	policy     ImagePolicy
	logger     *log.Logger
	fontBlobs  map[string][]byte // built-in:<name>
	imageBlobs map[string][]byte // built-in:<name>
	families   *familyCache
}

var (
	_ renderer.Renderer = (*Renderer)(nil)
	_ layout.Typesetter = (*Renderer)(nil)
)

// Options configures the canvas renderer.
type Options struct {
	BaseDir     string
	FontDirs    []string            // searched by file name when a font path is not found
	Fonts       map[string]Resource // built-in fonts accessible via built-in:<name>
	Images      map[string]Resource // built-in images accessible via built-in:<name>
	ImagePolicy ImagePolicy
	Logger      *log.Logger
}

// Resource can be provided either by Bytes or by Path.
type Resource struct {
	Bytes []byte
	Path  string
}

type familyEntry struct {
	family *canvas.FontFamily
	style  canvas.FontStyle
}

// familyCache 在 Renderer 及其 WithImages 副本之间共享。
type familyCache struct {
	mu       sync.Mutex
	families map[string]*familyEntry
}

// NewRendererWithOptions creates a renderer with injected resources and optional baseDir.
func NewRendererWithOptions(opts Options) *Renderer {
	r := &Renderer{
		baseDir:    opts.BaseDir,
		resolver:   fonts.Resolver{BaseDir: opts.BaseDir, SearchDirs: opts.FontDirs},
		policy:     opts.ImagePolicy,
		logger:     opts.Logger,
		fontBlobs:  ingest(opts.Fonts),
		imageBlobs: ingest(opts.Images),
		families:   &familyCache{families: map[string]*familyEntry{}},
	}
	if r.policy == "" {
		r.policy = ImageFail
	}
	if r.logger == nil {
		r.logger = log.New(os.Stderr, "[renderer] ", log.LstdFlags)
	}
	return r
}

func ingest(resources map[string]Resource) map[string][]byte {
	out := map[string][]byte{}
	for name, res := range resources {
		if name == "" {
			continue
		}
		if len(res.Bytes) > 0 {
			out[name] = res.Bytes
			continue
		}
		if res.Path != "" {
			// 读取失败在真正使用时报告为资源缺失
			if data, err := os.ReadFile(res.Path); err == nil && len(data) > 0 {
				out[name] = data
			}
		}
	}
	return out
}

// WithImages returns a renderer that additionally serves the given blobs as
// built-in:<name> images. The font cache is shared with r.
func (r *Renderer) WithImages(images map[string][]byte) *Renderer {
	if len(images) == 0 {
		return r
	}
	cp := *r
	cp.imageBlobs = make(map[string][]byte, len(r.imageBlobs)+len(images))
	for k, v := range r.imageBlobs {
		cp.imageBlobs[k] = v
	}
	for k, v := range images {
		cp.imageBlobs[k] = v
	}
	return &cp
}

// Measurer 实现 layout.Typesetter：测量函数直接使用字体面的 TextWidth。
func (r *Renderer) Measurer(font layout.FontResource, sizePx float64) (wrap.MeasureFunc, layout.FontMetrics, error) {
	if sizePx <= 0 {
		return nil, layout.FontMetrics{}, fmt.Errorf("字号必须为正数，实际 %g", sizePx)
	}
	face, err := r.fontFace(font, sizePx, layout.Color{A: 255})
	if err != nil {
		return nil, layout.FontMetrics{}, err
	}
	m := face.Metrics()
	metrics := layout.FontMetrics{LineHeight: m.LineHeight, Ascent: m.Ascent, Descent: m.Descent}
	return face.TextWidth, metrics, nil
}

// Render renders the result into PNG or PDF bytes.
func (r *Renderer) Render(result *layout.Result, format renderer.Format) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	page := result.Page
	if page.Width <= 0 || page.Height <= 0 {
		return nil, fmt.Errorf("画布尺寸无效: %gx%g", page.Width, page.Height)
	}

	c := canvas.New(page.Width, page.Height)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点
	if err := r.drawPage(ctx, page, result.Resources); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch format {
	case renderer.PNG:
		img := rasterizer.Draw(c, canvas.DPMM(1.0), canvas.DefaultColorSpace)
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("编码 PNG 失败: %w", err)
		}
	case renderer.PDF:
		writer := pdf.New(&buf, page.Width, page.Height, nil)
		writer.SetInfo(result.Meta.Title, "", "", "", result.Meta.Creator)
		c.RenderTo(writer)
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("写入 PDF 失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("格式 %q: %w", format, renderer.ErrUnsupportedFormat)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawPage(ctx *canvas.Context, page layout.Page, resources layout.ResourceSet) error {
	ctx.SetStrokeColor(transparent)
	ctx.SetFillColor(colorFromLayout(page.Background))
	ctx.DrawPath(0, 0, canvas.Rectangle(page.Width, page.Height))

	// 背景形状（矩形、圆、线）在图片与文本之前绘制
	r.drawRects(ctx, page.Rects)
	r.drawCircles(ctx, page.Circles)
	r.drawLines(ctx, page.Lines)
	if err := r.drawImages(ctx, page.Images); err != nil {
		return err
	}
	for _, tb := range page.Texts {
		font, ok := resources.Fonts[tb.Font]
		if !ok {
			return fmt.Errorf("文本区域 %s 引用了未定义的字体 %s", tb.Region, tb.Font)
		}
		if err := r.drawTextBox(ctx, tb, font); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) drawTextBox(ctx *canvas.Context, tb layout.TextBox, font layout.FontResource) error {
	if len(tb.Lines) == 0 {
		return nil
	}
	face, err := r.fontFace(font, tb.FontSize, tb.Color)
	if err != nil {
		return err
	}

	// 处理水平对齐：left（默认）/center/right。
	var textAlign canvas.TextAlign
	var anchorX float64
	switch tb.Align {
	case "center":
		textAlign = canvas.Center
		anchorX = tb.X + tb.Width/2
	case "right":
		textAlign = canvas.Right
		anchorX = tb.X + tb.Width
	default:
		textAlign = canvas.Left
		anchorX = tb.X
	}

	ascent := tb.Ascent
	if ascent <= 0 {
		ascent = face.Metrics().Ascent
	}
	for _, line := range tb.Lines {
		// 基线位置：行顶部加上字体上升部
		baseline := tb.Y + line.Offset + ascent
		ctx.DrawText(anchorX, baseline, canvas.NewTextLine(face, line.Content, textAlign))
	}
	return nil
}

func (r *Renderer) drawImages(ctx *canvas.Context, images []layout.ImageBox) error {
	for _, box := range images {
		img, err := r.loadImage(box.Src)
		if err != nil {
			if r.policy != ImageSkip {
				return fmt.Errorf("图片区域 %s: %w", box.Region, err)
			}
			r.logger.Printf("warning: 跳过图片区域 %s: %v", box.Region, err)
			r.drawPlaceholder(ctx, box)
			continue
		}
		fitted, dx, dy := fitImage(img, box)
		ctx.DrawImage(box.X+dx, box.Y+dy, fitted, canvas.DPMM(1.0))
	}
	return nil
}

// fitImage 按 fit 模式缩放图片到区域像素尺寸，返回图片与在区域内的偏移。
func fitImage(img image.Image, box layout.ImageBox) (image.Image, float64, float64) {
	w, h := int(box.Width+0.5), int(box.Height+0.5)
	if w <= 0 || h <= 0 {
		return img, 0, 0
	}
	switch box.Fit {
	case "cover":
		return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos), 0, 0
	case "stretch":
		return imaging.Resize(img, w, h, imaging.Lanczos), 0, 0
	default:
		fitted := imaging.Fit(img, w, h, imaging.Lanczos)
		b := fitted.Bounds()
		return fitted, float64(w-b.Dx()) / 2, float64(h-b.Dy()) / 2
	}
}

func (r *Renderer) drawPlaceholder(ctx *canvas.Context, box layout.ImageBox) {
	ctx.SetFillColor(transparent)
	ctx.SetStrokeColor(placeholderGray)
	ctx.SetStrokeWidth(defaultStrokeWidth)
	ctx.DrawPath(box.X, box.Y, canvas.Rectangle(box.Width, box.Height))
}

// errImageNotFound 表示图片来源不存在。
var errImageNotFound = errors.New("image not found")

func (r *Renderer) loadImage(src string) (image.Image, error) {
	if name, ok := builtinName(src); ok {
		blob, ok := r.imageBlobs[name]
		if !ok {
			return nil, fmt.Errorf("内置图片 built-in:%s: %w", name, errImageNotFound)
		}
		img, _, err := image.Decode(bytes.NewReader(blob))
		if err != nil {
			return nil, fmt.Errorf("解码内置图片 built-in:%s 失败: %w", name, err)
		}
		return img, nil
	}
	if r.baseDir == "" && !filepath.IsAbs(src) {
		return nil, fmt.Errorf("未指定资源目录时不允许直接使用路径：%s（请改用 built-in:）", src)
	}
	path := src
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.baseDir, path)
	}
	img, err := imaging.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("图片 %s: %w", src, errImageNotFound)
		}
		return nil, fmt.Errorf("读取图片 %s 失败: %w", src, err)
	}
	return img, nil
}

func builtinName(src string) (string, bool) {
	for _, prefix := range []string{"built-in:", "builtin:"} {
		if strings.HasPrefix(src, prefix) {
			return strings.TrimPrefix(src, prefix), true
		}
	}
	return "", false
}

func (r *Renderer) drawLines(ctx *canvas.Context, lines []layout.Line) {
	for _, ln := range lines {
		w := ln.Width
		if w <= 0 {
			w = defaultStrokeWidth
		}
		ctx.SetStrokeColor(colorFromLayout(ln.Color))
		ctx.SetStrokeWidth(w)
		p := &canvas.Path{}
		p.MoveTo(0, 0)
		p.LineTo(ln.X2-ln.X1, ln.Y2-ln.Y1)
		ctx.DrawPath(ln.X1, ln.Y1, p)
	}
}

func (r *Renderer) drawRects(ctx *canvas.Context, rects []layout.Rect) {
	for _, rc := range rects {
		setPaint(ctx, rc.FillColor, rc.StrokeColor, rc.StrokeWidth)
		ctx.DrawPath(rc.X, rc.Y, canvas.Rectangle(rc.Width, rc.Height))
	}
}

func (r *Renderer) drawCircles(ctx *canvas.Context, circles []layout.Circle) {
	for _, c := range circles {
		setPaint(ctx, c.FillColor, c.StrokeColor, c.StrokeWidth)
		// canvas.Circle 以原点为圆心
		ctx.DrawPath(c.CX, c.CY, canvas.Circle(c.R))
	}
}

func setPaint(ctx *canvas.Context, fill, stroke *layout.Color, width float64) {
	if fill != nil {
		ctx.SetFillColor(colorFromLayout(*fill))
	} else {
		ctx.SetFillColor(transparent)
	}
	if stroke != nil {
		if width <= 0 {
			width = defaultStrokeWidth
		}
		ctx.SetStrokeColor(colorFromLayout(*stroke))
		ctx.SetStrokeWidth(width)
	} else {
		ctx.SetStrokeColor(transparent)
	}
}

func (r *Renderer) fontFace(font layout.FontResource, sizePx float64, col layout.Color) (*canvas.FontFace, error) {
	family, style, err := r.ensureFontFamily(font)
	if err != nil {
		return nil, err
	}
	return family.Face(toPt(sizePx), colorFromLayout(col), style, canvas.FontNormal), nil
}

func (r *Renderer) ensureFontFamily(font layout.FontResource) (*canvas.FontFamily, canvas.FontStyle, error) {
	key := fontCacheKey(font)
	cache := r.families
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if entry, ok := cache.families[key]; ok {
		return entry.family, entry.style, nil
	}

	style := parseFontStyle(font.Style)
	data, location, err := r.loadFontBytes(font)
	if err != nil {
		return nil, canvas.FontRegular, err
	}
	name := font.Name
	if name == "" {
		name = location
	}
	family := canvas.NewFontFamily(name)
	if err := family.LoadFont(data, 0, style); err != nil {
		// 字体文件损坏时退回默认字体
		r.logger.Printf("warning: 字体 %s (%s) 加载失败，使用 %s: %v", font.Name, location, fonts.DefaultSource, err)
		family = canvas.NewFontFamily(name)
		if err := family.LoadFont(fonts.Default(), 0, style); err != nil {
			return nil, canvas.FontRegular, fmt.Errorf("加载默认字体失败: %w", err)
		}
	}

	cache.families[key] = &familyEntry{family: family, style: style}
	return family, style, nil
}

// loadFontBytes 依次尝试 src、fallback，最后一个候选由 resolver 退回内置默认字体。
func (r *Renderer) loadFontBytes(font layout.FontResource) ([]byte, string, error) {
	var candidates []string
	for _, src := range []string{font.Src, font.Fallback} {
		if strings.TrimSpace(src) != "" {
			candidates = append(candidates, src)
		}
	}
	if len(candidates) == 0 {
		candidates = []string{""}
	}
	last := len(candidates) - 1
	for i, src := range candidates {
		if name, ok := builtinName(src); ok {
			if blob, ok := r.fontBlobs[name]; ok {
				return blob, src, nil
			}
		}
		if i < last {
			data, location, err := r.resolver.Resolve(src)
			if err == nil {
				return data, location, nil
			}
			if !errors.Is(err, fonts.ErrFontNotFound) {
				return nil, "", err
			}
			continue
		}
		data, location, fallback, err := r.resolver.ResolveOrDefault(src)
		if err != nil {
			return nil, "", err
		}
		if fallback {
			r.logger.Printf("warning: 字体 %s (%s) 未找到，使用 %s", font.Name, font.Src, fonts.DefaultSource)
		}
		return data, location, nil
	}
	return nil, "", fmt.Errorf("字体 %s: %w", font.Name, fonts.ErrFontNotFound)
}

func parseFontStyle(style string) canvas.FontStyle {
	s := strings.ToLower(style)
	result := canvas.FontRegular
	switch {
	case strings.Contains(s, "black"):
		result = canvas.FontBlack
	case strings.Contains(s, "extrabold"):
		result = canvas.FontExtraBold
	case strings.Contains(s, "semibold"), strings.Contains(s, "demibold"):
		result = canvas.FontSemiBold
	case strings.Contains(s, "bold"):
		result = canvas.FontBold
	case strings.Contains(s, "medium"):
		result = canvas.FontMedium
	case strings.Contains(s, "light"):
		result = canvas.FontLight
	}
	if strings.Contains(s, "italic") || strings.Contains(s, "oblique") {
		result |= canvas.FontItalic
	}
	return result
}

func fontCacheKey(font layout.FontResource) string {
	return fmt.Sprintf("%s|%s|%s|%s", font.Name, font.Src, font.Fallback, font.Style)
}

func colorFromLayout(c layout.Color) color.Color {
	return color.NRGBA{R: uint8(c.R), G: uint8(c.G), B: uint8(c.B), A: uint8(c.A)}
}

// toPt 将画布单位（px，按 mm 处理）转换为点(pt)。
func toPt(px float64) float64 { return px * layout.MmToPt }
