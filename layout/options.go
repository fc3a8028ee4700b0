package layout

import "github.com/ByLCY/infograph/wrap"

// BuildOptions 配置布局阶段所需的依赖，例如排版后端。
type BuildOptions struct {
	Typesetter Typesetter
	Debug      DebugOptions
}

// DebugOptions 控制调试相关输出。
type DebugOptions struct {
	RawUnits bool // 在调试 JSON 中输出 debug.rawUnits 影子字段
}

// FontMetrics are the vertical metrics of a font face, in pixels.
type FontMetrics struct {
	LineHeight float64
	Ascent     float64
	Descent    float64
}

// Typesetter 为给定字体与字号提供宽度测量函数与字体度量。
// 布局包本身从不加载字体。
type Typesetter interface {
	Measurer(font FontResource, sizePx float64) (wrap.MeasureFunc, FontMetrics, error)
}
