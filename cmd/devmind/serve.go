package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yaverlabs/devmind/internal/server"
	"github.com/yaverlabs/devmind/internal/watch"
)

var (
	serveProject string
	servePath    string
	serveWatch   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Serve starts the HTTP API and blocks until interrupted. With --watch
the repository at --path is re-analyzed whenever source files change.

Examples:
  devmind serve
  devmind serve --watch --path ~/src/billing --project billing`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "re-analyze on file changes")
	serveCmd.Flags().StringVar(&servePath, "path", ".", "repository to watch")
	serveCmd.Flags().StringVar(&serveProject, "project", "", "project name for watched changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close(context.Background())

	srv, err := server.New(app.registry, app.logger, app.cfg.Server)
	if err != nil {
		return err
	}

	var watcher *watch.Watcher
	if serveWatch {
		root, err := filepath.Abs(servePath)
		if err != nil {
			return fmt.Errorf("resolving watch path: %w", err)
		}
		project, err := resolveProject(serveProject, root)
		if err != nil {
			return err
		}
		pipeline := app.registry.Pipeline()
		watcher, err = watch.New(root, app.cfg.Watch, app.cfg.Analyzer.SkipDirs,
			func(ctx context.Context, paths []string) {
				if err := pipeline.ReanalyzeFiles(ctx, project, root, paths); err != nil {
					app.logger.Error(ctx, "re-analysis failed",
						zap.String("project", project), zap.Error(err))
				}
			}, app.logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		app.logger.Info(ctx, "watching repository",
			zap.String("project", project), zap.String("root", root))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()
	app.logger.Info(ctx, "server started", zap.Int("port", app.cfg.Server.Port))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			app.logger.Warn(ctx, "watcher stop failed", zap.Error(err))
		}
	}
	return srv.Shutdown(context.Background())
}
