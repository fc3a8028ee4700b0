package renderer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ByLCY/infograph/layout"
)

// Format is an output encoding.
type Format string

const (
	PNG Format = "png"
	PDF Format = "pdf"
)

// ErrUnsupportedFormat is returned for formats no renderer produces.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ParseFormat accepts "png", "pdf" and their file extensions, case-insensitively.
// An empty string selects PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "png":
		return PNG, nil
	case "pdf":
		return PDF, nil
	default:
		return "", fmt.Errorf("格式 %q: %w", s, ErrUnsupportedFormat)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case PDF:
		return "application/pdf"
	case PNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string { return "." + string(f) }

// Renderer 将布局结果输出为最终文件，例如 PNG 或 PDF。
// Render 返回生成的二进制数据以及可能的错误。
type Renderer interface {
	Render(result *layout.Result, format Format) ([]byte, error)
}
