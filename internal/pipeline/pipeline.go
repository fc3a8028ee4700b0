// Package pipeline turns raw text into a rendered infographic: structure the
// text with the model, bind it to a template, lay it out and render it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/ByLCY/infograph/content"
	"github.com/ByLCY/infograph/internal/ai"
	"github.com/ByLCY/infograph/internal/usage"
	"github.com/ByLCY/infograph/layout"
	"github.com/ByLCY/infograph/renderer"
	canvasrenderer "github.com/ByLCY/infograph/renderer/canvas"
)

// ErrEmptyText is returned when there is nothing to lay out.
var ErrEmptyText = errors.New("empty text")

// TemplateSource resolves template names.
type TemplateSource interface {
	Load(name string) (*layout.Template, error)
}

// Structurer rewrites raw text before layout. *ai.Client implements it.
type Structurer interface {
	Structure(ctx context.Context, mode ai.Mode, text string) (ai.Result, error)
}

type Request struct {
	Text     string
	Template string
	Format   renderer.Format
	// Images are served to image regions as built-in:<name>.
	Images map[string][]byte
	// Vars override the values derived from the text.
	Vars   map[string]any
	SkipAI bool
	Debug  bool
}

type Output struct {
	Data        []byte
	ContentType string
	Format      renderer.Format
	RequestID   string
	Document    content.Document
	Result      *layout.Result
	Usage       *usage.AIUsage
}

type Generator struct {
	templates TemplateSource
	ai        Structurer
	renderer  *canvasrenderer.Renderer
	logger    *log.Logger
}

type Option func(*Generator)

func WithLogger(l *log.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a generator. A nil structurer renders the text as given.
func New(templates TemplateSource, s Structurer, r *canvasrenderer.Renderer, opts ...Option) *Generator {
	g := &Generator{
		templates: templates,
		ai:        s,
		renderer:  r,
		logger:    log.New(os.Stderr, "[pipeline] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs the whole pipeline for one request.
func (g *Generator) Generate(ctx context.Context, req Request) (*Output, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	format := req.Format
	if format == "" {
		format = renderer.PNG
	}
	if _, err := renderer.ParseFormat(string(format)); err != nil {
		return nil, err
	}

	tpl, err := g.templates.Load(req.Template)
	if err != nil {
		return nil, err
	}

	out := &Output{Format: format, ContentType: format.ContentType(), RequestID: usage.NewRequestID()}

	text := req.Text
	if g.ai != nil && !req.SkipAI {
		mode, err := ai.ParseMode(tpl.Canvas.Prompt)
		if err != nil {
			return nil, fmt.Errorf("模板 %s: %w", tpl.Name, err)
		}
		res, err := g.ai.Structure(ai.WithRequestID(ctx, out.RequestID), mode, text)
		if err != nil {
			return nil, err
		}
		text, out.Usage = res.Text, res.Usage
	}

	out.Document = content.Parse(text)
	data := out.Document.Data()
	if len(req.Images) > 0 {
		if _, ok := req.Vars["image"]; !ok {
			data["image"] = "built-in:" + firstKey(req.Images)
		}
	}
	for k, v := range req.Vars {
		data[k] = v
	}

	r := g.renderer.WithImages(req.Images)
	result, err := layout.Build(tpl, data, layout.BuildOptions{
		Typesetter: r,
		Debug:      layout.DebugOptions{RawUnits: req.Debug},
	})
	if err != nil {
		return nil, fmt.Errorf("排版失败: %w", err)
	}
	out.Result = result
	for _, tb := range result.Page.Texts {
		if tb.Truncated {
			g.logger.Printf("warning: 区域 %s 放不下全部文字，已排 %d/%d 词", tb.Region, tb.Consumed, tb.Total)
		}
	}

	out.Data, err = r.Render(result, format)
	if err != nil {
		return nil, fmt.Errorf("渲染失败: %w", err)
	}
	g.logger.Printf("rendered %s with template %s (%d bytes)", format, tpl.Name, len(out.Data))
	return out, nil
}

func firstKey(m map[string][]byte) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}
