// Package watch renders text files dropped into an inbox directory.
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ByLCY/infograph/internal/config"
	"github.com/ByLCY/infograph/internal/pipeline"
	"github.com/ByLCY/infograph/renderer"
)

// Generator renders one request. *pipeline.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Output, error)
}

type Observer struct {
	cfg         config.WatchConfig
	gen         Generator
	activeTasks int
	mu          sync.Mutex
	timers      map[string]*time.Timer
	wg          sync.WaitGroup
	LogChan     chan string
}

func NewObserver(cfg config.WatchConfig, gen Generator, logChan chan string) *Observer {
	if cfg.Format == "" {
		cfg.Format = string(renderer.PNG)
	}
	return &Observer{
		cfg:     cfg,
		gen:     gen,
		timers:  map[string]*time.Timer{},
		LogChan: logChan,
	}
}

func (o *Observer) log(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	log.Println(msg)
	if o.LogChan != nil {
		select {
		case o.LogChan <- msg:
		default:
			// 缓冲区满时直接丢弃
		}
	}
}

func (o *Observer) incrementTask() {
	o.mu.Lock()
	o.activeTasks++
	o.mu.Unlock()
}

func (o *Observer) decrementTask() {
	o.mu.Lock()
	o.activeTasks--
	o.mu.Unlock()
}

// IsProcessing reports whether a file is being rendered or waiting for its
// debounce delay.
func (o *Observer) IsProcessing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeTasks > 0 || len(o.timers) > 0
}

func isInput(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// Start watches the inbox until ctx is done. Files already in the inbox are
// processed first.
func (o *Observer) Start(ctx context.Context) error {
	format, err := renderer.ParseFormat(o.cfg.Format)
	if err != nil {
		return err
	}
	if o.cfg.Inbox == "" {
		return fmt.Errorf("inbox directory not configured")
	}
	for _, dir := range []string{o.cfg.Inbox, o.cfg.Outbox, o.cfg.Archive} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(o.cfg.Inbox); err != nil {
		return err
	}
	o.log("Watching %s for .txt/.md files", o.cfg.Inbox)

	// Initial scan
	o.scanDirectory(ctx, format)

	defer o.wg.Wait()
	defer o.stopTimers()
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && isInput(event.Name) {
				o.schedule(ctx, event.Name, format)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.log("Watcher error: %v", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// schedule delays processing until no write has been seen for the debounce
// interval, so files still being copied are not picked up half-written.
func (o *Observer) schedule(ctx context.Context, path string, format renderer.Format) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.timers[path]; ok && t.Stop() {
		t.Reset(o.cfg.Debounce)
		return
	}
	o.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(o.cfg.Debounce, func() {
		defer o.wg.Done()
		o.incrementTask()
		defer o.decrementTask()
		o.mu.Lock()
		if o.timers[path] == t {
			delete(o.timers, path)
		}
		o.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		o.processFile(ctx, path, format)
	})
	o.timers[path] = t
}

func (o *Observer) stopTimers() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for path, t := range o.timers {
		if t.Stop() {
			o.wg.Done()
		}
		delete(o.timers, path)
	}
}

func (o *Observer) scanDirectory(ctx context.Context, format renderer.Format) {
	files, err := os.ReadDir(o.cfg.Inbox)
	if err != nil {
		o.log("Failed to scan directory: %v", err)
		return
	}
	for _, f := range files {
		if !f.IsDir() && isInput(f.Name()) {
			o.incrementTask()
			o.processFile(ctx, filepath.Join(o.cfg.Inbox, f.Name()), format)
			o.decrementTask()
		}
	}
}

func (o *Observer) processFile(ctx context.Context, path string, format renderer.Format) {
	filename := filepath.Base(path)
	text, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			o.log("Failed to read %s: %v", filename, err)
		}
		return
	}
	o.log("Processing file: %s", filename)

	out, err := o.gen.Generate(ctx, pipeline.Request{
		Text:     string(text),
		Template: o.cfg.Template,
		Format:   format,
	})
	if err != nil {
		// 失败的文件留在收件箱，修改后会再次处理
		o.log("Failed to render %s: %v", filename, err)
		return
	}

	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	target := filepath.Join(o.cfg.Outbox, base+format.Ext())
	if err := os.WriteFile(target, out.Data, 0o644); err != nil {
		o.log("Failed to write %s: %v", target, err)
		return
	}
	o.log("Rendered %s to %s", filename, target)
	o.finalizeFile(path, filename)
}

func (o *Observer) finalizeFile(path, filename string) {
	if o.cfg.Archive == "" {
		return
	}
	newPath := filepath.Join(o.cfg.Archive, filename)
	if err := os.Rename(path, newPath); err != nil {
		o.log("Failed to move %s to archive: %v", filename, err)
		return
	}
	o.log("Moved %s to %s", filename, newPath)
}
