package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mfridman/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run 解析命令行并执行对应的子命令。
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	return cli.ParseAndRun(ctx, rootCommand(), args, &cli.RunOptions{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	})
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:      "infograph",
		Usage:     "infograph <command> [flags]",
		ShortHelp: "Turn text into infographics and slides",
		Flags: cli.FlagsFunc(func(f *flag.FlagSet) {
			f.String("config", "", "配置文件路径（默认读取 ./config.yaml，如存在）")
		}),
		SubCommands: []*cli.Command{
			renderCommand(),
			wrapCommand(),
			templatesCommand(),
			serveCommand(),
			watchCommand(),
		},
	}
}
