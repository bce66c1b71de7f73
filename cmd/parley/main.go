// Command parley runs a spoken (or typed) conversation with an LLM, with
// barge-in: talking over the assistant cuts its reply short.
//
// Usage:
//
//	parley [-config parley.yaml] [-mode voice|text] [-debug] [-web]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sourcegraph/conc"

	"github.com/teslashibe/go-parley/internal/config"
	"github.com/teslashibe/go-parley/internal/log"
	"github.com/teslashibe/go-parley/pkg/metrics"
	"github.com/teslashibe/go-parley/pkg/speech"
	"github.com/teslashibe/go-parley/pkg/turn"
	"github.com/teslashibe/go-parley/pkg/web"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	fs := flag.NewFlagSet("parley", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file (default ./parley.yaml if present)")
	mode := fs.String("mode", "", "Conversation mode: voice or text")
	debug := fs.Bool("debug", false, "Enable debug logging")
	webUI := fs.Bool("web", false, "Serve the dashboard")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *webUI {
		cfg.Web.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log.InitWithFormat(cfg.Log.Level, cfg.Log.Format)
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPorts(ctx, cfg, stdin, stdout, logger)
	if err != nil {
		logger.Error("setup failed", "error", err)
		return 1
	}
	defer p.Close()

	engine, err := newEngine(cfg, p, logger)
	if err != nil {
		logger.Error("setup failed", "error", err)
		return 1
	}

	events, err := engine.Subscribe()
	if err != nil {
		logger.Error("subscribe failed", "error", err)
		return 1
	}

	collector := metrics.NewCollector("parley")
	observers := []turn.Observer{eventLogger(logger), collector.Observe}

	var wg conc.WaitGroup
	webCtx, stopWeb := context.WithCancel(ctx)

	if cfg.Web.Enabled {
		srv := web.NewServer(web.Config{
			Addr:    cfg.Web.Addr,
			Metrics: collector.Handler(),
			Summary: collector.Summary,
			OnStop:  engine.Stop,
			Logger:  logger,
		})
		observers = append(observers, srv.Observe)
		wg.Go(func() {
			if err := srv.Start(webCtx); err != nil {
				logger.Warn("dashboard stopped", "error", err)
			}
		})
	}

	fan := turn.Fanout(observers...)
	wg.Go(func() {
		defer events.Close()
		for {
			ev, err := events.Next(context.Background())
			if err != nil {
				return
			}
			fan(ev)
		}
	})

	logger.Info("parley ready", "mode", cfg.Mode, "session", engine.SessionID())
	runErr := engine.Start(ctx)

	stopWeb()
	wg.Wait()

	sum := collector.Summary()
	logger.Info("session summary",
		"turns", sum.Turns,
		"interruptions", sum.Interruptions,
		"fallbacks", sum.Fallbacks,
		"avg_generation", sum.AvgGeneration,
		"avg_speaking", sum.AvgSpeaking,
	)

	if runErr != nil {
		if errors.Is(runErr, speech.ErrDeviceFault) {
			logger.Error("input device failed", "error", runErr)
		} else {
			logger.Error("session failed", "error", runErr)
		}
		return 1
	}
	return 0
}

// eventLogger logs turn events at a level matching their weight.
func eventLogger(logger *slog.Logger) turn.Observer {
	l := logger.With("component", "parley.events")
	return func(ev turn.Event) {
		switch ev.Kind {
		case turn.EventUserUtterance:
			l.Info("user", "seq", ev.Seq, "text", ev.Turn.Text)
		case turn.EventAssistantUtterance:
			l.Info("assistant", "seq", ev.Seq, "text", ev.Turn.Text)
		case turn.EventStateChanged:
			l.Debug("state", "seq", ev.Seq, "from", ev.From, "to", ev.To)
		case turn.EventError:
			if ev.Fatal {
				l.Error("fatal error", "seq", ev.Seq, "error", ev.Err)
			} else {
				l.Warn("error", "seq", ev.Seq, "error", ev.Err)
			}
		}
	}
}
