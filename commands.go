package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/mfridman/cli"
	"golang.org/x/sync/errgroup"

	"github.com/ByLCY/infograph/fonts"
	"github.com/ByLCY/infograph/internal/pipeline"
	"github.com/ByLCY/infograph/internal/server"
	"github.com/ByLCY/infograph/internal/watch"
	"github.com/ByLCY/infograph/layout"
	"github.com/ByLCY/infograph/renderer"
	"github.com/ByLCY/infograph/wrap"
)

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "infograph render [flags] [file]",
		ShortHelp: "Render a text file (or stdin) to PNG or PDF",
		Flags: cli.FlagsFunc(func(f *flag.FlagSet) {
			f.String("template", "", "模板名称或别名（16:9、1:1、9:16）")
			f.String("format", "", "输出格式：png 或 pdf")
			f.String("out", "", "输出路径（默认 <输入名>.<格式>）")
			f.String("debug", "", "布局调试 JSON 输出路径")
			f.String("data", "", "额外绑定到模板的 JSON 数据")
			f.Bool("no-ai", false, "不调用模型，直接使用原文")
		}),
		Exec: func(ctx context.Context, s *cli.State) error {
			text, inputPath, err := readInput(s)
			if err != nil {
				return err
			}
			var vars map[string]any
			if raw := cli.GetFlag[string](s, "data"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &vars); err != nil {
					return fmt.Errorf("解析 data JSON 失败: %w", err)
				}
			}

			a, err := newApp(ctx, cli.GetFlag[string](s, "config"), inputDir(inputPath))
			if err != nil {
				return err
			}
			defer a.Close()

			format, err := renderer.ParseFormat(orDefault(cli.GetFlag[string](s, "format"), a.cfg.Application.DefaultFormat))
			if err != nil {
				return err
			}
			debugPath := cli.GetFlag[string](s, "debug")
			out, err := a.gen.Generate(ctx, pipeline.Request{
				Text:     text,
				Template: orDefault(cli.GetFlag[string](s, "template"), a.cfg.Application.DefaultTemplate),
				Format:   format,
				Vars:     vars,
				SkipAI:   cli.GetFlag[bool](s, "no-ai"),
				Debug:    debugPath != "",
			})
			if err != nil {
				return err
			}

			if debugPath != "" {
				if err := writeDebug(out.Result, debugPath); err != nil {
					return err
				}
			}

			outPath := cli.GetFlag[string](s, "out")
			if outPath == "" {
				outPath = defaultOutput(inputPath, format)
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("创建输出目录失败: %w", err)
			}
			if err := os.WriteFile(outPath, out.Data, 0o644); err != nil {
				return fmt.Errorf("写入输出文件失败: %w", err)
			}
			fmt.Fprintf(s.Stdout, "已生成 %s：%s\n", strings.ToUpper(string(format)), outPath)
			if out.Usage != nil {
				fmt.Fprintf(s.Stdout, "tokens: %d, cost: $%.6f\n", out.Usage.TotalTokens, out.Usage.Cost)
			}
			return nil
		},
	}
}

func wrapCommand() *cli.Command {
	return &cli.Command{
		Name:      "wrap",
		Usage:     "infograph wrap [flags] [text...]",
		ShortHelp: "Word-wrap text to a terminal width (reads stdin without arguments)",
		Flags: cli.FlagsFunc(func(f *flag.FlagSet) {
			f.Int("width", 80, "每行最多的终端列数")
			f.Int("max-lines", 0, "最多输出的行数，0 表示不限")
		}),
		Exec: func(ctx context.Context, s *cli.State) error {
			text := strings.Join(s.Args, " ")
			if len(s.Args) == 0 {
				data, err := io.ReadAll(s.Stdin)
				if err != nil {
					return fmt.Errorf("读取标准输入失败: %w", err)
				}
				text = string(data)
			}

			// 每个终端列算一个单位，每行高 1
			c := wrap.Constraints{
				MaxWidth:   float64(cli.GetFlag[int](s, "width")),
				MaxHeight:  float64(cli.GetFlag[int](s, "max-lines")),
				LineHeight: 1,
			}
			measure := func(line string) float64 { return float64(runewidth.StringWidth(line)) }
			res, err := wrap.Fit(text, measure, c)
			if err != nil {
				return err
			}
			for _, line := range res.Lines {
				fmt.Fprintln(s.Stdout, line)
			}
			if res.Truncated() {
				fmt.Fprintf(s.Stderr, "truncated: %d/%d words\n", res.Consumed, res.Total)
			}
			return nil
		},
	}
}

func templatesCommand() *cli.Command {
	return &cli.Command{
		Name:      "templates",
		Usage:     "infograph templates",
		ShortHelp: "List available templates and embedded fonts",
		Exec: func(ctx context.Context, s *cli.State) error {
			cfg, err := loadConfig(cli.GetFlag[string](s, "config"))
			if err != nil {
				return err
			}
			names, err := catalogFor(cfg).Names()
			if err != nil {
				return err
			}
			for _, name := range names {
				marker := " "
				if name == cfg.Application.DefaultTemplate {
					marker = "*"
				}
				fmt.Fprintf(s.Stdout, "%s %s\n", marker, name)
			}
			embedded := fonts.Names()
			for i, name := range embedded {
				embedded[i] = "embed:" + name
			}
			fmt.Fprintf(s.Stdout, "fonts: %s\n", strings.Join(embedded, " "))
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "infograph serve [flags]",
		ShortHelp: "Serve the web form and render endpoint",
		Flags: cli.FlagsFunc(func(f *flag.FlagSet) {
			f.String("addr", "", "监听地址（默认取配置 host:port）")
			f.Bool("watch", false, "同时监视收件箱目录")
		}),
		Exec: func(ctx context.Context, s *cli.State) error {
			a, err := newApp(ctx, cli.GetFlag[string](s, "config"), "")
			if err != nil {
				return err
			}
			defer a.Close()

			addr := orDefault(cli.GetFlag[string](s, "addr"), a.cfg.Application.Addr())
			srv := server.New(a.gen, a.catalog, server.Options{
				Title:           a.cfg.Application.Name,
				DefaultTemplate: a.cfg.Application.DefaultTemplate,
				DefaultFormat:   a.cfg.Application.DefaultFormat,
				MaxUploadMB:     a.cfg.Application.MaxUploadMB,
				Usage:           a.recorder,
			})

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.ListenAndServe(ctx, addr) })
			if cli.GetFlag[bool](s, "watch") {
				g.Go(func() error { return a.observer(nil).Start(ctx) })
			}
			return g.Wait()
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "infograph watch [flags]",
		ShortHelp: "Render every .txt/.md file dropped into the inbox",
		Flags: cli.FlagsFunc(func(f *flag.FlagSet) {
			f.String("inbox", "", "收件箱目录")
			f.String("outbox", "", "输出目录")
			f.String("archive", "", "处理完成后的归档目录")
		}),
		Exec: func(ctx context.Context, s *cli.State) error {
			a, err := newApp(ctx, cli.GetFlag[string](s, "config"), "")
			if err != nil {
				return err
			}
			defer a.Close()

			w := &a.cfg.Watch
			w.Inbox = orDefault(cli.GetFlag[string](s, "inbox"), w.Inbox)
			w.Outbox = orDefault(cli.GetFlag[string](s, "outbox"), w.Outbox)
			w.Archive = orDefault(cli.GetFlag[string](s, "archive"), w.Archive)
			return a.observer(nil).Start(ctx)
		},
	}
}

func (a *app) observer(logChan chan string) *watch.Observer {
	cfg := a.cfg.Watch
	cfg.Template = orDefault(cfg.Template, a.cfg.Application.DefaultTemplate)
	cfg.Format = orDefault(cfg.Format, a.cfg.Application.DefaultFormat)
	return watch.NewObserver(cfg, a.gen, logChan)
}

func readInput(s *cli.State) (text, path string, err error) {
	if len(s.Args) > 1 {
		return "", "", fmt.Errorf("只能指定一个输入文件")
	}
	if len(s.Args) == 0 || s.Args[0] == "-" {
		data, err := io.ReadAll(s.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("读取标准输入失败: %w", err)
		}
		return string(data), "", nil
	}
	path = s.Args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("无法打开输入文件 %s: %w", path, err)
	}
	return string(data), path, nil
}

func inputDir(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Dir(path)
}

func defaultOutput(inputPath string, format renderer.Format) string {
	if inputPath == "" {
		return "infographic" + format.Ext()
	}
	return strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + format.Ext()
}

func writeDebug(result *layout.Result, debugPath string) error {
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	if err := layout.WriteDebugJSON(result, debugPath); err != nil {
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
