package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ByLCY/infograph/internal/config"
)

type gemini struct {
	client   *genai.Client
	settings config.ProviderSettings
}

func newGemini(ctx context.Context, s config.ProviderSettings) (*gemini, error) {
	if s.Key == "" {
		return nil, errors.New("缺少 GEMINI_KEY")
	}
	opts := []option.ClientOption{option.WithAPIKey(s.Key)}
	if s.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}
	if s.Model == "" {
		s.Model = "gemini-2.5-flash"
	}
	return &gemini{client: client, settings: s}, nil
}

func (g *gemini) Generate(ctx context.Context, _ Mode, system, text string) (Completion, error) {
	model := g.client.GenerativeModel(g.settings.Model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	if g.settings.Temperature > 0 {
		model.SetTemperature(float32(g.settings.Temperature))
	}
	if g.settings.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.settings.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return Completion{}, err
	}

	var comp Completion
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		comp.Text = b.String()
	}
	if md := resp.UsageMetadata; md != nil {
		comp.PromptTokens = int(md.PromptTokenCount)
		comp.CompletionTokens = int(md.CandidatesTokenCount)
		comp.TotalTokens = int(md.TotalTokenCount)
	}
	return comp, nil
}

func (g *gemini) Close() error {
	return g.client.Close()
}
