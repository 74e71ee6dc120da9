package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/blackorder/tailthrottle"
	"github.com/blackorder/tailthrottle/internal/config"
)

type event struct {
	seq  int
	sent time.Time
}

func main() {
	cfgPath := flag.String("config-path", ".", "Directory holding the config file")
	cfgName := flag.String("config-name", "throttle", "Config file name without extension")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))

	v := viper.New()
	var cfg config.Config
	err := config.LoadConfig(v, *cfgPath, "env", *cfgName, &cfg)
	fromFile := err == nil
	var notFound viper.ConfigFileNotFoundError
	switch {
	case errors.As(err, &notFound):
		logger.Info("no config file, using defaults and environment", "path", *cfgPath, "name", *cfgName)
		err = config.LoadEnv(v, &cfg)
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
	case err != nil:
		logger.Error(err.Error())
		os.Exit(1)
	}
	level.Set(cfg.Level())

	settings := cfg
	if fromFile {
		watchConfig(v, &cfg, logger, &level)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, settings, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

// watchConfig keeps the log level in step with the config file. Throttle
// settings are read once at startup.
func watchConfig(v *viper.Viper, cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) {
	config.Watch(v, cfg, func(next config.Config, err error) {
		if err != nil {
			logger.Warn("config reload rejected", "error", err)
			return
		}
		level.Set(next.Level())
		logger.Info("config reloaded", "log_level", next.LogLevel, "load_time", next.LoadTime)
	})
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var delivered atomic.Int64
	report := func(ctx context.Context, e event, kind string) {
		delivered.Add(1)
		logger.InfoContext(ctx, "event delivered", "seq", e.seq, "kind", kind, "lag", time.Since(e.sent))
	}

	opts := []tailthrottle.Option{
		tailthrottle.WithThreshold(cfg.Threshold),
		tailthrottle.WithLogger(func() *slog.Logger { return logger }),
	}

	// emitting holds the seq of the event being passed to emit, or 0. An
	// edge delivery for that same seq happened inside emit, on the leading
	// edge; anything else came from the deferred timer.
	var emitting atomic.Int64

	var emit func(context.Context, event)
	switch cfg.Policy {
	case config.PolicyEdge:
		opts = append(opts, tailthrottle.WithTail(cfg.Tail))
		emit = tailthrottle.WrapEdge(func(ctx context.Context, e event) {
			kind := "trailing"
			if emitting.Load() == int64(e.seq) {
				kind = "leading"
			}
			report(ctx, e, kind)
		}, opts...)
	default:
		opts = append(opts, tailthrottle.WithForceTail(cfg.ForceTail))
		emit = tailthrottle.Wrap(func(ctx context.Context, e event, pos tailthrottle.Position) {
			report(ctx, e, pos.String())
		}, opts...)
	}

	logger.Info("emitting events",
		"policy", cfg.Policy,
		"threshold", cfg.Threshold,
		"rate", cfg.EventRate,
		"burst", cfg.EventBurst,
		"count", cfg.EventCount,
	)

	limiter := rate.NewLimiter(rate.Limit(cfg.EventRate), cfg.EventBurst)
	for seq := 1; cfg.EventCount == 0 || seq <= cfg.EventCount; seq++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("pacing events: %w", err)
		}
		emitting.Store(int64(seq))
		emit(ctx, event{seq: seq, sent: time.Now()})
		emitting.Store(0)
	}

	// Let the last deferred delivery land.
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = tailthrottle.DefaultThreshold
	}
	select {
	case <-time.After(2 * threshold):
	case <-ctx.Done():
	}

	logger.Info("done", "emitted", cfg.EventCount, "delivered", delivered.Load())

	return nil
}
