package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacesedan/sentiboard/config"
	"github.com/spacesedan/sentiboard/internal/logging"
	"github.com/spacesedan/sentiboard/internal/session"
)

const usage = `Usage: analyzer <command> [arguments]

Commands:
  analyze <text>     classify one text and save it
  batch <file|->     classify one text per line from a file or stdin
  stats              print the current statistics
  clear [-yes]       delete every stored result
  watch              follow live statistics until interrupted
`

func main() {
	config.LoadEnv(config.AppEnv())
	cfg := config.Load()
	logging.InitLogger(cfg.LogLevel)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.New(session.Options{Config: cfg, Logger: slog.Default()})
	if err != nil {
		slog.Error("[Main] Failed to build session", slog.String("error", err.Error()))
		os.Exit(1)
	}

	a := newApp(sess, os.Stdin, os.Stdout)
	code := a.run(ctx, os.Args[1], os.Args[2:])
	if err := sess.Close(); err != nil {
		slog.Warn("[Main] Close failed", slog.String("error", err.Error()))
	}
	os.Exit(code)
}
