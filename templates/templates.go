// Package templates is the catalogue of region templates. Built-in templates
// are embedded in the binary; a directory of *.ifg files can add to or
// override them.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ByLCY/infograph/dsl"
	"github.com/ByLCY/infograph/layout"
)

// Ext is the file extension of template files.
const Ext = ".ifg"

// DefaultName is used when a request does not name a template.
const DefaultName = "sections"

// ErrUnknownTemplate is returned when no template has the requested name.
var ErrUnknownTemplate = errors.New("unknown template")

//go:embed builtin/*.ifg
var builtinFS embed.FS

// aliases map the aspect ratio choices of the slide form to template names.
var aliases = map[string]string{
	"16:9": "slide-16x9",
	"1:1":  "slide-1x1",
	"9:16": "slide-9x16",
}

// Names lists the built-in templates.
func Names() []string {
	entries, err := fs.Glob(builtinFS, "builtin/*"+Ext)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(filepath.Base(e), Ext))
	}
	sort.Strings(names)
	return names
}

// Load compiles a built-in template.
func Load(name string) (*layout.Template, error) {
	return Catalog{}.Load(name)
}

// LoadFile parses and compiles a template file.
func LoadFile(path string) (*layout.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取模板 %s 失败: %w", path, err)
	}
	return compile(path, data)
}

// Catalog resolves template names against Dir first, then the built-ins.
type Catalog struct {
	Dir string
}

// Names lists every template available through the catalogue.
func (c Catalog) Names() ([]string, error) {
	set := map[string]bool{}
	for _, n := range Names() {
		set[n] = true
	}
	if c.Dir != "" {
		matches, err := filepath.Glob(filepath.Join(c.Dir, "*"+Ext))
		if err != nil {
			return nil, fmt.Errorf("扫描模板目录 %s 失败: %w", c.Dir, err)
		}
		for _, m := range matches {
			set[strings.TrimSuffix(filepath.Base(m), Ext)] = true
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Load compiles the named template. An empty name selects DefaultName.
func (c Catalog) Load(name string) (*layout.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("模板 %q: %w", name, ErrUnknownTemplate)
	}

	if c.Dir != "" {
		path := filepath.Join(c.Dir, name+Ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return compile(path, data)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("读取模板 %s 失败: %w", path, err)
		}
	}

	data, err := builtinFS.ReadFile("builtin/" + name + Ext)
	if err != nil {
		return nil, fmt.Errorf("模板 %q: %w", name, ErrUnknownTemplate)
	}
	return compile("builtin/"+name+Ext, data)
}

func compile(source string, data []byte) (*layout.Template, error) {
	doc, err := dsl.Parse(source, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解析模板 %s 失败: %w", source, err)
	}
	tpl, err := layout.Compile(doc)
	if err != nil {
		return nil, fmt.Errorf("编译模板 %s 失败: %w", source, err)
	}
	return tpl, nil
}
