package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/KevinKickass/OpenSimCore/internal/config"
	"github.com/KevinKickass/OpenSimCore/internal/parsers"
	"github.com/KevinKickass/OpenSimCore/internal/system"
	"github.com/KevinKickass/OpenSimCore/internal/validate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDumpCmd() *cobra.Command {
	var (
		searchPaths []string
		format      string
		deviceName  string
	)

	cmd := &cobra.Command{
		Use:   "dump <description files...>",
		Short: "Print the interface of parsed description files",
		Long: `Print the YAML interface description of the merged description files,
or with --format fgo build the device and print its fandango export.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "yaml":
				return dumpYAML(cmd.OutOrStdout(), searchPaths, args)
			case "fgo":
				return dumpExport(cmd.Context(), cmd.OutOrStdout(), searchPaths, args, deviceName)
			}
			return fmt.Errorf("unknown format %q (want yaml or fgo)", format)
		},
	}

	cmd.Flags().StringSliceVar(&searchPaths, "search-path", []string{"."}, "Directories to search for description files")
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or fgo")
	cmd.Flags().StringVar(&deviceName, "name", "test/nodb/1", "Device name used for --format fgo")
	return cmd
}

func dumpYAML(w io.Writer, searchPaths, files []string) error {
	loader, err := parsers.NewLoader(searchPaths)
	if err != nil {
		return err
	}
	parsed, err := loader.LoadAll(files)
	if err != nil {
		return err
	}
	out, err := validate.Render(validate.FromMerged(parsers.Merge(parsed)))
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func dumpExport(ctx context.Context, w io.Writer, searchPaths, files []string, deviceName string) error {
	cfg := &config.Config{
		Simulation: config.SimulationConfig{
			DeviceName:          deviceName,
			DescriptionFiles:    files,
			SearchPaths:         searchPaths,
			ControlDeviceSuffix: "_control",
		},
	}
	sim, err := system.NewLifecycleManager(cfg, nil, zap.NewNop()).LoadSimulation(ctx)
	if err != nil {
		return err
	}
	doc, err := sim.Device.Export(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
