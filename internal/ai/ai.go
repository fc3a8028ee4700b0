// Package ai asks a language model to structure raw text before layout.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ByLCY/infograph/internal/config"
	"github.com/ByLCY/infograph/internal/usage"
)

// Mode selects the system prompt.
type Mode string

const (
	ModeSections Mode = "sections"
	ModeSlide    Mode = "slide"
)

var prompts = map[Mode]string{
	ModeSections: "Break the following text into structured sections, focusing on concise and clear headings, subheadings, and bullet points.",
	ModeSlide:    "Design a visually appealing layout based on the user-provided text. Ensure all elements align with the text and data. Do not add or modify user content.",
}

var (
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("empty model response")
	ErrUnknownDriver = errors.New("unknown ai driver")
)

// ParseMode maps a template prompt name to a Mode. Empty selects sections.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeSections, nil
	case ModeSections, ModeSlide:
		return m, nil
	default:
		return "", fmt.Errorf("未知的提示模式 %q", s)
	}
}

// SystemPrompt returns the instruction sent with the given mode.
func SystemPrompt(m Mode) string {
	if p, ok := prompts[m]; ok {
		return p
	}
	return prompts[ModeSections]
}

// Completion is one raw model answer.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider talks to one model backend.
type Provider interface {
	Generate(ctx context.Context, mode Mode, system, text string) (Completion, error)
}

// Result is the structured text plus the usage it cost. Usage is nil when no
// model was called.
type Result struct {
	Text  string
	Usage *usage.AIUsage
}

type Client struct {
	name     string
	settings config.ProviderSettings
	provider Provider
	recorder usage.Recorder
	logger   *log.Logger
}

type Option func(*Client)

func WithRecorder(r usage.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a client for the active provider in cfg.
func New(ctx context.Context, cfg config.AIConfig, opts ...Option) (*Client, error) {
	name, settings := cfg.Active()
	var (
		p   Provider
		err error
	)
	switch settings.Driver {
	case "", "none":
		p = nil
	case "mock":
		p = Mock{}
	case "gemini":
		p, err = newGemini(ctx, settings)
	default:
		err = fmt.Errorf("%q: %w", settings.Driver, ErrUnknownDriver)
	}
	if err != nil {
		return nil, err
	}
	return NewWithProvider(name, settings, p, opts...), nil
}

// NewWithProvider wraps an existing provider. A nil provider passes text through.
func NewWithProvider(name string, settings config.ProviderSettings, p Provider, opts ...Option) *Client {
	c := &Client{
		name:     name,
		settings: settings,
		provider: p,
		recorder: usage.Noop{},
		logger:   log.New(os.Stderr, "[ai] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether Structure calls a model.
func (c *Client) Enabled() bool { return c != nil && c.provider != nil }

func (c *Client) Name() string { return c.name }

// Structure rewrites text with the prompt of the given mode.
func (c *Client) Structure(ctx context.Context, mode Mode, text string) (Result, error) {
	if !c.Enabled() {
		return Result{Text: text}, nil
	}
	if strings.TrimSpace(text) == "" {
		return Result{Text: text}, nil
	}
	comp, err := c.provider.Generate(ctx, mode, SystemPrompt(mode), text)
	if err != nil {
		return Result{}, fmt.Errorf("调用模型 %s 失败: %w", c.name, err)
	}
	if strings.TrimSpace(comp.Text) == "" {
		return Result{}, fmt.Errorf("模型 %s: %w", c.name, ErrEmptyResponse)
	}
	if comp.TotalTokens == 0 {
		comp.TotalTokens = comp.PromptTokens + comp.CompletionTokens
	}

	u := &usage.AIUsage{
		Provider:         c.name,
		Model:            c.settings.Model,
		PromptTokens:     comp.PromptTokens,
		CompletionTokens: comp.CompletionTokens,
		TotalTokens:      comp.TotalTokens,
		Cost:             usage.Cost(comp.PromptTokens, comp.CompletionTokens, c.settings.InputCostPer1K, c.settings.OutputCostPer1K),
	}
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		u.RequestID = reqID
	}
	if err := c.recorder.Record(ctx, u); err != nil {
		// 记录失败不影响生成
		c.logger.Printf("warning: 记录用量失败: %v", err)
	}
	return Result{Text: strings.TrimSpace(comp.Text), Usage: u}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if closer, ok := c.provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type requestIDKey struct{}

// WithRequestID tags usage recorded under ctx with id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
