// Package main implements the slab CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"slab/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "slab",
	Short: "Object-graph globalizing compiler and boundary runtime",
	Long:  `slab compiles stateful module images into flat programs of global cells and functions, and invokes the result through a narrow boundary ABI`,
}

func main() {
	rootCmd.Version = version.String()

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
