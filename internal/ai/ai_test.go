package ai

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/infograph/internal/config"
	"github.com/ByLCY/infograph/internal/usage"
)

type stubProvider struct {
	comp  Completion
	err   error
	calls []string
}

func (s *stubProvider) Generate(_ context.Context, _ Mode, system, _ string) (Completion, error) {
	s.calls = append(s.calls, system)
	return s.comp, s.err
}

var quiet = WithLogger(log.New(io.Discard, "", 0))

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeSections, "Sections": ModeSections, " slide ": ModeSlide} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("poem")
	assert.Error(t, err)
}

func TestNoneDriverPassesThrough(t *testing.T) {
	c, err := New(context.Background(), config.AIConfig{ActiveProvider: "none"})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	res, err := c.Structure(context.Background(), ModeSections, "raw text")
	require.NoError(t, err)
	assert.Equal(t, "raw text", res.Text)
	assert.Nil(t, res.Usage)
	assert.NoError(t, c.Close())
}

func TestUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.AIConfig{ActiveProvider: "x", Providers: map[string]config.ProviderSettings{"x": {Driver: "openai"}}})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestGeminiRequiresKey(t *testing.T) {
	_, err := New(context.Background(), config.AIConfig{ActiveProvider: "gemini"})
	assert.Error(t, err)
}

func TestStructureRecordsUsage(t *testing.T) {
	rec := &usage.Memory{}
	settings := config.ProviderSettings{Model: "m1", InputCostPer1K: 1, OutputCostPer1K: 2}
	p := &stubProvider{comp: Completion{Text: "  ## Heading\n\nbody  ", PromptTokens: 1000, CompletionTokens: 500}}
	c := NewWithProvider("stub", settings, p, WithRecorder(rec), quiet)

	ctx := WithRequestID(context.Background(), "req-1")
	res, err := c.Structure(ctx, ModeSlide, "text")
	require.NoError(t, err)
	assert.Equal(t, "## Heading\n\nbody", res.Text)
	require.Len(t, p.calls, 1)
	assert.Equal(t, SystemPrompt(ModeSlide), p.calls[0])

	require.NotNil(t, res.Usage)
	assert.Equal(t, 1500, res.Usage.TotalTokens)
	assert.InDelta(t, 2.0, res.Usage.Cost, 1e-9)
	assert.Equal(t, "req-1", res.Usage.RequestID)
	assert.Equal(t, "m1", res.Usage.Model)

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "stub", entries[0].Provider)
}

func TestStructureEmptyResponse(t *testing.T) {
	c := NewWithProvider("stub", config.ProviderSettings{}, &stubProvider{comp: Completion{Text: " \n"}}, quiet)
	_, err := c.Structure(context.Background(), ModeSections, "text")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestStructureProviderError(t *testing.T) {
	boom := errors.New("boom")
	c := NewWithProvider("stub", config.ProviderSettings{}, &stubProvider{err: boom}, quiet)
	_, err := c.Structure(context.Background(), ModeSections, "text")
	assert.ErrorIs(t, err, boom)
}

func TestMockSections(t *testing.T) {
	c, err := New(context.Background(), config.AIConfig{ActiveProvider: "mock"}, quiet)
	require.NoError(t, err)
	require.True(t, c.Enabled())

	res, err := c.Structure(context.Background(), ModeSections, "Solar power is cheap now.\n\nWind keeps growing too.")
	require.NoError(t, err)
	assert.Equal(t, "## Solar power is\n\nSolar power is cheap now.\n\n## Wind keeps growing\n\nWind keeps growing too.", res.Text)
	assert.Positive(t, res.Usage.PromptTokens)

	res, err = c.Structure(context.Background(), ModeSlide, "unchanged words")
	require.NoError(t, err)
	assert.Equal(t, "unchanged words", res.Text)
}
