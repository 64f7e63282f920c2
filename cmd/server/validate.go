package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/KevinKickass/OpenSimCore/internal/parsers"
	"github.com/KevinKickass/OpenSimCore/internal/validate"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var (
		searchPaths   []string
		expected      []string
		device        []string
		bidirectional bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compare an expected interface against a device",
		Long: `Compare the expected interface (a YAML document or description files)
against a device (a fandango export, YAML document or description files).
Exits non-zero when they differ.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), searchPaths, expected, device, bidirectional)
		},
	}

	cmd.Flags().StringSliceVar(&searchPaths, "search-path", []string{"."}, "Directories to search for description files")
	cmd.Flags().StringSliceVar(&expected, "expected", nil, "Expected interface: YAML file or description files")
	cmd.Flags().StringSliceVar(&device, "device", nil, "Device interface: fandango export, YAML file or description files")
	cmd.Flags().BoolVar(&bidirectional, "bidirectional", false, "Also report members the device has but the expected interface lacks")
	cmd.MarkFlagRequired("expected")
	cmd.MarkFlagRequired("device")
	return cmd
}

func runValidate(w io.Writer, searchPaths, expected, device []string, bidirectional bool) error {
	want, err := loadDocument(searchPaths, expected)
	if err != nil {
		return fmt.Errorf("failed to load expected interface: %w", err)
	}
	got, err := loadDocument(searchPaths, device)
	if err != nil {
		return fmt.Errorf("failed to load device interface: %w", err)
	}

	report := validate.Compare(want, got, bidirectional)
	for _, line := range report.Lines() {
		fmt.Fprintln(w, line)
	}
	if !report.Valid {
		return fmt.Errorf("device does not match the expected interface (%d errors)", len(report.Errors))
	}
	fmt.Fprintln(w, "OK")
	return nil
}

// loadDocument reads a single YAML document, or merges description files.
func loadDocument(searchPaths, paths []string) (validate.Document, error) {
	if len(paths) == 1 && isYAML(paths[0]) {
		data, err := os.ReadFile(paths[0])
		if err != nil {
			return nil, err
		}
		return validate.Parse(data)
	}

	loader, err := parsers.NewLoader(searchPaths)
	if err != nil {
		return nil, err
	}
	parsed, err := loader.LoadAll(paths)
	if err != nil {
		return nil, err
	}
	return validate.FromMerged(parsers.Merge(parsed)), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
