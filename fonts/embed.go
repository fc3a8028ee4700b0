// Package fonts resolves font sources to raw font bytes. Built-in fonts come
// from the Go font family; anything else is looked up on disk, and callers can
// fall back to the default font when a source cannot be found.
package fonts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// DefaultSource is used whenever a requested font cannot be found.
const DefaultSource = "embed:go-regular"

// ErrFontNotFound is returned when no candidate location yields a font.
var ErrFontNotFound = errors.New("font not found")

var builtin = map[string][]byte{
	"go-regular":    goregular.TTF,
	"go-bold":       gobold.TTF,
	"go-italic":     goitalic.TTF,
	"go-bolditalic": gobolditalic.TTF,
	"go-medium":     gomedium.TTF,
	"go-mono":       gomono.TTF,
}

// Load 返回内置字体的字节数据，name 可写为 "embed:go-bold" 或直接 "go-bold"。
func Load(name string) ([]byte, error) {
	key := strings.ToLower(strings.TrimPrefix(name, "embed:"))
	data, ok := builtin[key]
	if !ok {
		return nil, fmt.Errorf("读取内置字体 %s 失败: %w", name, ErrFontNotFound)
	}
	return data, nil
}

// Default returns the bytes of the default embedded font.
func Default() []byte { return builtin["go-regular"] }

// Names lists the embedded font names.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolver locates font files. Relative paths are tried against BaseDir
// first, then by file name inside each SearchDirs entry.
type Resolver struct {
	BaseDir    string
	SearchDirs []string
}

// Resolve returns the font bytes for src and the location they came from.
func (r Resolver) Resolve(src string) ([]byte, string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, "", fmt.Errorf("字体 src 为空: %w", ErrFontNotFound)
	}
	if strings.HasPrefix(src, "embed:") {
		data, err := Load(src)
		return data, src, err
	}

	for _, candidate := range r.candidates(src) {
		data, err := os.ReadFile(candidate)
		if err == nil {
			return data, candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("读取字体 %s 失败: %w", candidate, err)
		}
	}
	return nil, "", fmt.Errorf("字体 %s: %w", src, ErrFontNotFound)
}

// ResolveOrDefault behaves like Resolve but substitutes the default font when
// src cannot be found. fallback reports whether the substitution happened.
// Other read errors are still returned.
func (r Resolver) ResolveOrDefault(src string) (data []byte, location string, fallback bool, err error) {
	data, location, err = r.Resolve(src)
	if err == nil {
		return data, location, false, nil
	}
	if !errors.Is(err, ErrFontNotFound) {
		return nil, "", false, err
	}
	return Default(), DefaultSource, true, nil
}

func (r Resolver) candidates(src string) []string {
	if filepath.IsAbs(src) {
		return []string{src}
	}
	var out []string
	if r.BaseDir != "" {
		out = append(out, filepath.Join(r.BaseDir, src))
	} else {
		out = append(out, src)
	}
	base := filepath.Base(src)
	for _, dir := range r.SearchDirs {
		if dir == "" {
			continue
		}
		out = append(out, filepath.Join(dir, base))
	}
	return out
}
