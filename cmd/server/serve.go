package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/obby/fs-coalescer/config"
	"github.com/obby/fs-coalescer/internal/hub"
	"github.com/obby/fs-coalescer/internal/log"
	"github.com/obby/fs-coalescer/internal/patterns"
	"github.com/obby/fs-coalescer/internal/server"
	"github.com/obby/fs-coalescer/internal/watcher"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [paths...]",
		Short: "Watch paths and serve coalesced events",
		Long: `Watch the given paths (or watch_paths from the config) and serve the
FileWatcher gRPC service plus the SSE/WebSocket HTTP endpoints until
interrupted.`,
		RunE: runServe,
	}
}

func runServe(c *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(args) > 0 {
		cfg.WatchPaths = args
	}

	log.Init(&log.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger := log.NewModuleLogger("cmd", "serve")

	matcher, err := buildMatcher(cfg)
	if err != nil {
		return err
	}

	buffer := watcher.NewEventBuffer(cfg.Debounce(), cfg.MaxWait())
	fw, err := watcher.NewFileWatcher(buffer, matcher)
	if err != nil {
		return err
	}
	defer buffer.Close()
	defer fw.Stop()

	for _, path := range cfg.WatchPaths {
		if err := fw.AddPath(path); err != nil {
			return err
		}
	}
	if err := fw.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	h := hub.NewHub()
	grpcServer := server.NewGRPCServer(server.NewFileWatcherServer(fw, h), cfg.Port)
	httpServer := server.NewHTTPServer(h, buffer, cfg.HTTPPort)

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Pump(gctx, buffer.Batches(), h)
		return nil
	})
	g.Go(grpcServer.Serve)
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.Stop(shutdownCtx)
		return httpServer.Stop(shutdownCtx)
	})

	logger.Info("File watcher service running",
		"grpc_port", cfg.Port,
		"http_port", cfg.HTTPPort,
		"paths", fw.WatchedPaths(),
	)

	return g.Wait()
}

// buildMatcher combines the configured patterns with the pattern files
// found at the root of each watched directory.
func buildMatcher(cfg *config.Config) (*patterns.Matcher, error) {
	matcher := patterns.NewMatcher()
	if err := matcher.SetWatchPatterns(cfg.WatchPatterns); err != nil {
		return nil, err
	}
	if err := matcher.SetIgnorePatterns(cfg.IgnorePatterns); err != nil {
		return nil, err
	}

	for _, root := range cfg.WatchPaths {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}

		watch, err := patterns.ReadPatternFile(filepath.Join(root, cfg.WatchFile))
		if err != nil {
			return nil, err
		}
		if err := matcher.AddWatchPatterns(watch); err != nil {
			return nil, err
		}

		ignore, err := patterns.ReadPatternFile(filepath.Join(root, cfg.IgnoreFile))
		if err != nil {
			return nil, err
		}
		if err := matcher.AddIgnorePatterns(ignore); err != nil {
			return nil, err
		}
	}
	return matcher, nil
}
