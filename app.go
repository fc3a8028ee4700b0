package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ByLCY/infograph/internal/ai"
	"github.com/ByLCY/infograph/internal/config"
	"github.com/ByLCY/infograph/internal/pipeline"
	"github.com/ByLCY/infograph/internal/usage"
	canvasrenderer "github.com/ByLCY/infograph/renderer/canvas"
	"github.com/ByLCY/infograph/templates"
)

// app wires configuration, model client, usage ledger and renderer together.
type app struct {
	cfg      *config.Config
	catalog  templates.Catalog
	recorder usage.Recorder
	client   *ai.Client
	gen      *pipeline.Generator
	store    *usage.Store
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return cfg, nil
}

func catalogFor(cfg *config.Config) templates.Catalog {
	return templates.Catalog{Dir: cfg.Application.TemplateDir}
}

// newApp builds the generator. baseDir is used to resolve relative asset
// paths when no asset_dir is configured.
func newApp(ctx context.Context, configPath, baseDir string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, catalog: catalogFor(cfg), recorder: usage.Noop{}}

	if cfg.Database.Enabled() {
		store, err := usage.Open(ctx, cfg.Database.GetConnectStr())
		if err != nil {
			// 用量记录不是渲染的前提
			log.Printf("warning: 无法连接用量数据库，不记录 AI 用量: %v", err)
		} else {
			a.store, a.recorder = store, store
		}
	}

	a.client, err = ai.New(ctx, cfg.AI, ai.WithRecorder(a.recorder))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("初始化模型客户端失败: %w", err)
	}

	policy, err := canvasrenderer.ParseImagePolicy(cfg.Application.ImagePolicy)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Application.AssetDir != "" {
		baseDir = cfg.Application.AssetDir
	}
	if baseDir == "" {
		baseDir = "."
	}
	var fontDirs []string
	if cfg.Application.FontDir != "" {
		fontDirs = append(fontDirs, cfg.Application.FontDir)
	}
	r := canvasrenderer.NewRendererWithOptions(canvasrenderer.Options{
		BaseDir:     baseDir,
		FontDirs:    fontDirs,
		ImagePolicy: policy,
		Logger:      log.New(os.Stderr, "[renderer] ", log.LstdFlags),
	})

	a.gen = pipeline.New(a.catalog, a.client, r)
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
