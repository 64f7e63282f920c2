package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenSimCore/internal/config"
	"github.com/KevinKickass/OpenSimCore/internal/host"
	"github.com/KevinKickass/OpenSimCore/internal/storage"
	"github.com/KevinKickass/OpenSimCore/internal/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var deviceName string

	cmd := &cobra.Command{
		Use:   "serve [description files...]",
		Short: "Run the simulated device and its control device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Simulation.DescriptionFiles = args
			}
			if deviceName != "" {
				cfg.Simulation.DeviceName = deviceName
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&deviceName, "name", "", "Device name (overrides simulation.device_name)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully", zap.String("path", configPath))

	var db host.PropertyDB
	if cfg.Database.Enabled {
		pg, err := storage.NewPostgresClient(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		logger.Info("Database connected successfully")
		db = pg
	}

	lifecycle := system.NewLifecycleManager(cfg, db, logger)
	if err := lifecycle.Start(ctx); err != nil {
		return err
	}

	logger.Info("OpenSimCore started successfully")

	// Graceful shutdown on signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("OpenSimCore stopped successfully")
	return nil
}
