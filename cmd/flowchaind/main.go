// Command flowchaind loads a Function Pool catalog, builds the topology and
// RIB, announces the bootstrap TOS flows, and serves the REST + WebSocket
// control API over HTTP on the -listen address. Compiled routes go to exabgp
// over the process's stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/upa-network/flowchaind/internal/api"
	"github.com/upa-network/flowchaind/internal/bootstrap"
	"github.com/upa-network/flowchaind/internal/config"
	"github.com/upa-network/flowchaind/internal/flowevents"
	"github.com/upa-network/flowchaind/internal/metrics"
	"github.com/upa-network/flowchaind/internal/rib"
	"github.com/upa-network/flowchaind/internal/speaker"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var (
		catalogPath = flag.String("catalog", "/etc/flowchaind/catalog.json", "Path to the Function Pool catalog")
		listen      = flag.String("listen", "127.0.0.1:8080", "REST + WebSocket API listen address")
		logLevel    = flag.String("log-level", "info", "Log level (debug/info/warn/error)")
		showVer     = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("flowchaind %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	log, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("flowchaind starting",
		zap.String("version", version),
		zap.String("catalog", *catalogPath),
		zap.String("listen", *listen),
	)

	fps, err := config.LoadFromFile(*catalogPath)
	if err != nil {
		log.Fatal("loading catalog", zap.Error(err))
	}
	log.Info("catalog loaded", zap.Int("pools", len(fps.Pools())))

	sp := speaker.New(log, os.Stdout)
	r := rib.New(fps, sp)

	if err := bootstrap.Announce(fps, sp.AsIOWriter()); err != nil {
		log.Fatal("announcing bootstrap TOS flows", zap.Error(err))
	}
	log.Info("bootstrap TOS flows announced")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc := metrics.NewCollector(log, r, time.Second)
	go mc.Run(ctx)

	ed := flowevents.New(log)

	srv := api.NewServer(log, *listen, r, fps, mc, ed)
	if err := srv.Start(); err != nil {
		log.Fatal("starting API server", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info("received signal, shutting down", zap.String("signal", sig.String()))

	cancel()
	srv.Stop()

	log.Info("flowchaind stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return cfg.Build()
}
