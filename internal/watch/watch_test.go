package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/infograph/internal/config"
	"github.com/ByLCY/infograph/internal/pipeline"
)

type fakeGenerator struct {
	mu    sync.Mutex
	texts []string
	fail  bool
}

func (f *fakeGenerator) Generate(_ context.Context, req pipeline.Request) (*pipeline.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, req.Text)
	if f.fail {
		return nil, errors.New("boom")
	}
	return &pipeline.Output{Data: []byte("rendered:" + req.Text), Format: req.Format}, nil
}

func (f *fakeGenerator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func dirs(t *testing.T) config.WatchConfig {
	root := t.TempDir()
	return config.WatchConfig{
		Inbox:    filepath.Join(root, "inbox"),
		Outbox:   filepath.Join(root, "outbox"),
		Archive:  filepath.Join(root, "archive"),
		Debounce: 20 * time.Millisecond,
	}
}

func start(t *testing.T, o *Observer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("observer did not stop")
		}
	})
}

func TestObserverProcessesExistingAndNewFiles(t *testing.T) {
	cfg := dirs(t)
	require.NoError(t, os.MkdirAll(cfg.Inbox, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Inbox, "first.txt"), []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Inbox, "ignored.pdf"), []byte("x"), 0o644))

	gen := &fakeGenerator{}
	logs := make(chan string, 100)
	o := NewObserver(cfg, gen, logs)
	start(t, o)

	firstOut := filepath.Join(cfg.Outbox, "first.png")
	require.Eventually(t, func() bool {
		_, err := os.Stat(firstOut)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(cfg.Archive, "first.txt"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Inbox, "second.md"), []byte("two"), 0o644))
	secondOut := filepath.Join(cfg.Outbox, "second.png")
	require.Eventually(t, func() bool {
		_, err := os.Stat(secondOut)
		return err == nil && !o.IsProcessing()
	}, 5*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(secondOut)
	require.NoError(t, err)
	assert.Equal(t, "rendered:two", string(data))
	_, err = os.Stat(filepath.Join(cfg.Inbox, "ignored.pdf"))
	assert.NoError(t, err)
	assert.Equal(t, 2, gen.count())

	var sawProcessing bool
	for len(logs) > 0 {
		if strings.Contains(<-logs, "Processing file: first.txt") {
			sawProcessing = true
		}
	}
	assert.True(t, sawProcessing)
}

func TestObserverKeepsFailedFiles(t *testing.T) {
	cfg := dirs(t)
	cfg.Format = "pdf"
	require.NoError(t, os.MkdirAll(cfg.Inbox, 0o755))
	input := filepath.Join(cfg.Inbox, "bad.txt")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	gen := &fakeGenerator{fail: true}
	o := NewObserver(cfg, gen, nil)
	start(t, o)

	require.Eventually(t, func() bool { return gen.count() >= 1 && !o.IsProcessing() }, 5*time.Second, 10*time.Millisecond)
	_, err := os.Stat(input)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Outbox, "bad.pdf"))
	assert.True(t, os.IsNotExist(err))
}

func TestObserverRejectsBadConfig(t *testing.T) {
	o := NewObserver(config.WatchConfig{Format: "gif"}, &fakeGenerator{}, nil)
	assert.Error(t, o.Start(context.Background()))

	o = NewObserver(config.WatchConfig{}, &fakeGenerator{}, nil)
	assert.Error(t, o.Start(context.Background()))
}
