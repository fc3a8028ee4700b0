package binding

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var exprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolate 将文本中的 ${path.to.value} 替换为 data 中的值。
// 路径不存在时替换为空字符串，模板中缺失的段落不会留下占位符。
func Interpolate(text string, data any) string {
	return interpolate(text, data, false)
}

// InterpolateStrict 与 Interpolate 相同，但保留无法解析的占位符，便于调试。
func InterpolateStrict(text string, data any) string {
	return interpolate(text, data, true)
}

func interpolate(text string, data any, keep bool) string {
	return exprPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := exprPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		path := strings.TrimSpace(groups[1])
		if val, ok := Lookup(data, path); ok && val != nil {
			return format(val)
		}
		if keep {
			return match
		}
		return ""
	})
}

// Placeholders returns the paths referenced by text, in order.
func Placeholders(text string) []string {
	var out []string
	for _, m := range exprPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// Present reports whether path resolves to a non-empty value.
func Present(data any, path string) bool {
	val, ok := Lookup(data, path)
	if !ok || val == nil {
		return false
	}
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case map[string]string:
		return len(v) > 0
	}
	return true
}

// Lookup resolves a dotted path such as "sections[2]" or "meta.author".
func Lookup(data any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if data == nil || path == "" {
		return nil, false
	}
	current := data
	for _, segment := range strings.Split(path, ".") {
		name, indexes := parseSegment(segment)
		if name != "" {
			var ok bool
			current, ok = descendMap(current, name)
			if !ok {
				return nil, false
			}
		}
		for _, idxStr := range indexes {
			idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
			if err != nil {
				return nil, false
			}
			var ok bool
			current, ok = descendArray(current, idx)
			if !ok {
				return nil, false
			}
		}
	}
	return current, true
}

func parseSegment(segment string) (string, []string) {
	name := strings.TrimSpace(segment)
	var indexes []string
	if i := strings.Index(name, "["); i != -1 {
		rest := name[i:]
		name = name[:i]
		for len(rest) > 0 && rest[0] == '[' {
			end := strings.IndexByte(rest, ']')
			if end == -1 {
				break
			}
			indexes = append(indexes, rest[1:end])
			rest = rest[end+1:]
		}
	}
	return name, indexes
}

func descendMap(current any, key string) (any, bool) {
	switch c := current.(type) {
	case map[string]any:
		val, ok := c[key]
		return val, ok
	case map[string]string:
		val, ok := c[key]
		return val, ok
	default:
		return nil, false
	}
}

func descendArray(current any, idx int) (any, bool) {
	switch c := current.(type) {
	case []any:
		if idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	case []string:
		if idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	}
	// 其余切片类型（例如 []int）走反射。
	rv := reflect.ValueOf(current)
	if rv.Kind() != reflect.Slice || idx < 0 || idx >= rv.Len() {
		return nil, false
	}
	return rv.Index(idx).Interface(), true
}

func format(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, " ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}
