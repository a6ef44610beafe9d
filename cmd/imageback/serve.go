package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kd2675/image-back-server/internal/cache"
	"github.com/kd2675/image-back-server/internal/config"
	"github.com/kd2675/image-back-server/internal/server"
	"github.com/kd2675/image-back-server/internal/storage"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the image upload and resize server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return fmt.Errorf("failed to get config flag: %w", err)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := configureLogger(cfg.LogLevel); err != nil {
			return err
		}

		root := storage.ResolveRoot(cfg.UploadDir)
		slog.Info("image upload root resolved", "configured", cfg.UploadDir, "resolved", root)

		variantCache := cache.NewVariantCache(
			cfg.Cache.Capacity,
			time.Duration(cfg.Cache.TTLSeconds)*time.Second,
			cfg.Cache.MaxEntryBytes,
		)
		store := storage.New(root, variantCache, cfg.MaxGenerations)
		srv := server.New(cfg, store, variantCache)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			slog.Info("server starting", "addr", cfg.Addr)
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "path to the YAML configuration file")
}
