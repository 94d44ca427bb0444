// Command daemon runs the media download front-end: an HTTP API that
// delegates fetching to an external tool and serves each file back once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mediadl/media-dl/internal/api"
	"github.com/mediadl/media-dl/internal/config"
	"github.com/mediadl/media-dl/internal/download"
	mdlog "github.com/mediadl/media-dl/internal/log"
	"github.com/mediadl/media-dl/internal/ratelimit"
	"github.com/mediadl/media-dl/internal/service"
	"github.com/mediadl/media-dl/internal/storage"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := config.FromEnv()

	mdlog.Configure(mdlog.Config{
		Level:   cfg.LogLevel,
		Service: "media-dl",
		Version: version,
	})
	logger := mdlog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().
			Err(err).
			Str(mdlog.FieldEvent, "startup.check_failed").
			Msg("configuration invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str(mdlog.FieldEvent, "startup").
		Str("version", version).
		Str("addr", cfg.ListenAddr).
		Str("storage_dir", cfg.StorageDir).
		Dur("file_ttl", cfg.FileTTL).
		Dur("tool_timeout", cfg.ToolTimeout).
		Msg("starting media-dl")

	invoker := download.NewInvoker(cfg.Tool, cfg.StorageDir, cfg.ToolTimeout)
	guard := storage.NewGuard(cfg.StorageDir, config.ExtensionAllowed)
	limiter := ratelimit.New(ratelimit.Config{
		GlobalRate:      rate.Limit(cfg.GlobalRPS),
		GlobalBurst:     cfg.GlobalBurst,
		PerIPRate:       rate.Limit(float64(cfg.RateLimit) / cfg.RateWindow.Seconds()),
		PerIPBurst:      cfg.RateLimit,
		CleanupInterval: 5 * time.Minute,
	})
	janitor := storage.NewJanitor(cfg.StorageDir, cfg.FileTTL, cfg.CleanupInterval)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.New(cfg, service.Default(), invoker, guard, limiter).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := janitor.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("janitor: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Str(mdlog.FieldEvent, "shutdown").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("terminated with error")
	}
	logger.Info().Msg("stopped")
}
