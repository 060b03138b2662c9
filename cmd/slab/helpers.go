package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"slab/internal/diag"
	"slab/internal/driver"
)

func shouldColorize(cmd *cobra.Command) (bool, error) {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return false, fmt.Errorf("failed to get color flag: %w", err)
	}
	switch strings.ToLower(mode) {
	case "auto":
		return isTerminal(os.Stderr), nil
	case "on", "always":
		return true, nil
	case "off", "never":
		return false, nil
	}
	return false, fmt.Errorf("unsupported color mode %q (must be auto, on or off)", mode)
}

func newReporter(cmd *cobra.Command) (*diag.Reporter, error) {
	colorize, err := shouldColorize(cmd)
	if err != nil {
		return nil, err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	return diag.NewReporter(os.Stderr, colorize, quiet), nil
}

func maxDiagnostics(cmd *cobra.Command) (int, error) {
	n, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return 0, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	return n, nil
}

// addPassFlags registers the pass toggles shared by build, run and print.
func addPassFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("disable-inline", false, "skip slot inlining")
	cmd.Flags().Bool("disable-valsem", false, "skip value-semantics conversion")
	cmd.Flags().Bool("disable-abi", false, "skip calling-convention adjustment")
}

// passOptions merges manifest pass settings with command-line overrides.
func passOptions(cmd *cobra.Command, base driver.Options) (driver.Options, error) {
	opt := base
	for flag, dst := range map[string]*bool{
		"disable-inline": &opt.DisableInline,
		"disable-valsem": &opt.DisableValsem,
		"disable-abi":    &opt.DisableABI,
	} {
		v, err := cmd.Flags().GetBool(flag)
		if err != nil {
			return opt, fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
		if v {
			*dst = true
		}
	}
	return opt, nil
}
