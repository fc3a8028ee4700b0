package layout

// 该文件定义模板、布局结果与资源描述，供布局计算、渲染与调试 JSON 共用。
// 所有坐标与尺寸均以像素为单位，原点在画布左上角。

// Template 是编译后的区域模板。
type Template struct {
	Name      string      `json:"name"`
	Version   string      `json:"version,omitempty"`
	Canvas    CanvasSpec  `json:"canvas"`
	Resources ResourceSet `json:"resources"`
	Regions   []Region    `json:"regions"`
}

// CanvasSpec 描述画布尺寸、背景色以及内容结构化时使用的提示词模式。
type CanvasSpec struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Background Color   `json:"background"`
	Prompt     string  `json:"prompt,omitempty"`
}

// RegionKind names a drawable region type.
type RegionKind string

const (
	RegionText   RegionKind = "text"
	RegionCircle RegionKind = "circle"
	RegionRect   RegionKind = "rect"
	RegionLine   RegionKind = "line"
	RegionImage  RegionKind = "image"
)

// Region 是模板中的一个可绘制区域。不同 Kind 只使用其中的部分字段。
type Region struct {
	Kind RegionKind `json:"kind"`
	Name string     `json:"name"`
	// When 为绑定路径，解析为空时跳过该区域。
	When string `json:"when,omitempty"`

	// text / rect / image 的盒子
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// circle
	CX float64 `json:"cx,omitempty"`
	CY float64 `json:"cy,omitempty"`
	R  float64 `json:"r,omitempty"`

	// line 使用 X/Y 作为起点
	X2 float64 `json:"x2,omitempty"`
	Y2 float64 `json:"y2,omitempty"`

	Stroke      *Color  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Fill        *Color  `json:"fill,omitempty"`

	// text
	Content    string         `json:"content,omitempty"`
	Fallback   string         `json:"fallback,omitempty"` // 插值结果为空时使用
	Font       string         `json:"font,omitempty"`
	FontSize   Length         `json:"fontSize,omitempty"`
	LineHeight LineHeightSpec `json:"lineHeight,omitempty"`
	LineGap    float64        `json:"lineGap,omitempty"`
	Align      string         `json:"align,omitempty"`
	Clip       bool           `json:"clip,omitempty"`
	Color      Color          `json:"color,omitempty"`

	// image
	Src string `json:"src,omitempty"`
	Fit string `json:"fit,omitempty"`
}

// Result 保存布局后的画布与资源信息。
type Result struct {
	Template  string       `json:"template"`
	Prompt    string       `json:"prompt,omitempty"`
	Page      Page         `json:"page"`
	Resources ResourceSet  `json:"resources"`
	Meta      DocumentMeta `json:"meta"`
}

// ResourceSet 记录模板声明的字体与颜色。
type ResourceSet struct {
	Fonts  map[string]FontResource `json:"fonts"`
	Colors map[string]Color        `json:"colors"`
}

// FontResource 描述字体资源，src 可以是文件路径或 embed:* 内置字体。
type FontResource struct {
	Name     string  `json:"name"`
	Src      string  `json:"src"`
	Style    string  `json:"style,omitempty"`
	Fallback string  `json:"fallback,omitempty"`
	Size     float64 `json:"size,omitempty"` // 默认字号（px）
}

// Color 采用 0-255 的 RGBA 数值，A 为 255 表示不透明。
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
	A int `json:"a"`
}

// Page 记录画布尺寸与最终可以直接渲染的元素。
type Page struct {
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	Background Color      `json:"background"`
	Texts      []TextBox  `json:"texts"`
	Images     []ImageBox `json:"images,omitempty"`
	Lines      []Line     `json:"lines,omitempty"`
	Rects      []Rect     `json:"rects,omitempty"`
	Circles    []Circle   `json:"circles,omitempty"`
}

// TextBox 表示一个已经排好坐标的文本块。
type TextBox struct {
	Region     string        `json:"region"`
	Content    string        `json:"content"`
	X          float64       `json:"x"`
	Y          float64       `json:"y"`
	Width      float64       `json:"width"`
	Height     float64       `json:"height"` // 实际占用高度 = 行数 * LineHeight
	LineHeight float64       `json:"lineHeight"`
	Ascent     float64       `json:"ascent"`
	Font       string        `json:"font"`
	FontSize   float64       `json:"fontSize"`
	Color      Color         `json:"color"`
	Align      string        `json:"align,omitempty"`
	Lines      []TextLine    `json:"lines"`
	Consumed   int           `json:"consumed"`
	Total      int           `json:"total"`
	Truncated  bool          `json:"truncated,omitempty"`
	Debug      *TextBoxDebug `json:"debug,omitempty"`
}

// TextLine 表示排版后的一行文本，Offset 为相对文本块顶部的偏移。
type TextLine struct {
	Content string  `json:"content"`
	Width   float64 `json:"width"`
	Offset  float64 `json:"offset"`
}

// TextBoxDebug holds optional debug info displayed only when enabled by BuildOptions.
type TextBoxDebug struct {
	RawUnits *RawUnits `json:"rawUnits,omitempty"`
}

// RawUnits describes original author-specified units for key fields.
type RawUnits struct {
	FontSize   *RawLengthJSON     `json:"fontSize,omitempty"`
	LineHeight *RawLineHeightJSON `json:"lineHeight,omitempty"`
}

// RawLengthJSON is a JSON-friendly representation of Length.
type RawLengthJSON struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// RawLineHeightJSON is a JSON-friendly representation of LineHeightSpec.
type RawLineHeightJSON struct {
	Kind   string  `json:"kind"` // "metrics" | "factor" | "absolute"
	Factor float64 `json:"factor,omitempty"`
	Value  float64 `json:"value,omitempty"`
	Unit   string  `json:"unit,omitempty"`
	Gap    float64 `json:"gap,omitempty"`
}

// ImageBox 用于描述图片位置与尺寸。
type ImageBox struct {
	Region string  `json:"region"`
	Src    string  `json:"src"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Fit    string  `json:"fit"`
}

// Line 表示一条线段。
type Line struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Color Color   `json:"color"`
	Width float64 `json:"width"` // <=0 时由渲染器给默认值
}

// Rect 表示一个矩形（不包含圆角）。
type Rect struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	StrokeColor *Color  `json:"strokeColor,omitempty"` // 为空表示不描边
	StrokeWidth float64 `json:"strokeWidth"`
	FillColor   *Color  `json:"fillColor,omitempty"` // 为空表示不填充
}

// Circle 表示一个圆。
type Circle struct {
	CX          float64 `json:"cx"`
	CY          float64 `json:"cy"`
	R           float64 `json:"r"`
	StrokeColor *Color  `json:"strokeColor,omitempty"`
	StrokeWidth float64 `json:"strokeWidth"`
	FillColor   *Color  `json:"fillColor,omitempty"`
}

// DocumentMeta 保存 PDF 元信息。
type DocumentMeta struct {
	Title   string `json:"title"`
	Creator string `json:"creator"`
}
