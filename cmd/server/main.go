package main

import (
	"fmt"
	"os"

	"github.com/KevinKickass/OpenSimCore/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	// Override packages register their classes from init.
	_ "github.com/KevinKickass/OpenSimCore/internal/overrides/dish"
	_ "github.com/KevinKickass/OpenSimCore/internal/overrides/vds"
)

var configPath string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "opensimcore",
		Short: "Simulated device servers from declarative descriptions",
		Long: `OpenSimCore builds a simulated device and its control device from XMI,
SimDD JSON, fandango and SDD description files and serves them over REST,
WebSocket and gRPC.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to the config file")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDumpCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newTokenCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
