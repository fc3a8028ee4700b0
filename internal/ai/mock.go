package ai

import (
	"context"
	"strings"
)

// Mock is a deterministic provider for tests and offline runs. In sections
// mode every paragraph gets a heading made of its first words; slide mode
// returns the text unchanged. Token counts are word counts.
type Mock struct {
	// Response, when set, is returned verbatim.
	Response string
}

func (m Mock) Generate(_ context.Context, mode Mode, system, text string) (Completion, error) {
	out := m.Response
	if out == "" {
		out = text
		if mode == ModeSections {
			out = mockSections(text)
		}
	}
	prompt := len(strings.Fields(system)) + len(strings.Fields(text))
	completion := len(strings.Fields(out))
	return Completion{Text: out, PromptTokens: prompt, CompletionTokens: completion}, nil
}

func mockSections(text string) string {
	var parts []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		words := strings.Fields(para)
		if len(words) > 3 {
			words = words[:3]
		}
		parts = append(parts, "## "+strings.Join(words, " ")+"\n\n"+para)
	}
	return strings.Join(parts, "\n\n")
}
