package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"go-live-ide/internal/app"
	"go-live-ide/internal/config"
	"go-live-ide/internal/logs"
	"go-live-ide/internal/workspace"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	var (
		addr string
		dir  string
	)

	cmd := &cobra.Command{
		Use:   "serve [--addr host:port] [--dir workspace]",
		Short: "Serve the IDE until interrupted.",
		Long: heredoc.Doc(`
			Starts the IDE server. When a workspace directory is configured its
			text files are imported first, and with workspace.watch the project
			follows later changes on disk.

			Examples:
			  go-live-ide serve
			  go-live-ide serve --addr 127.0.0.1:9000 --dir ./site
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if dir != "" {
				cfg.Workspace.Dir = dir
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&dir, "dir", "", "workspace directory to import (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := logs.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	logger, closeLog, err := logs.New(logs.Options{File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closeLog()
	logs.Bridge(logger)

	ide, err := app.New(app.Options{
		Addr:            cfg.Addr,
		AllowAll:        cfg.AllowAll,
		DefaultZoom:     cfg.DefaultZoom,
		CompilerBinary:  cfg.Compiler.Binary,
		CompilerVersion: cfg.Compiler.Version,
		FontPaths:       cfg.Compiler.FontPaths,
		WorkDir:         cfg.Compiler.WorkDir,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Workspace.Dir != "" {
		imp := workspace.New(ide.Project(), cfg.Workspace.Dir, workspace.Filter{
			Include: cfg.Workspace.Include,
			Exclude: cfg.Workspace.Exclude,
		}, logger)
		if _, err := imp.Import(ctx); err != nil {
			return err
		}
		if cfg.Workspace.Watch {
			go func() {
				if err := imp.Watch(ctx); err != nil {
					logger.Error("workspace watch stopped", "error", err)
				}
			}()
		}
	}

	if err := ide.Start(); err != nil {
		return err
	}
	fmt.Printf("go-live-ide: %s\n", ide.URL())

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ide.Close(shutdownCtx)
}
