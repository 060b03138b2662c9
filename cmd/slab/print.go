package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"slab/internal/driver"
	"slab/internal/ir"
)

var printCmd = &cobra.Command{
	Use:   "print [flags] <image>",
	Short: "Print a module image as text",
	Long:  "Print the object graph and program of a module image, either as loaded or after compilation.",
	Args:  cobra.ExactArgs(1),
	RunE:  printExecution,
}

func init() {
	addPassFlags(printCmd)
	printCmd.Flags().String("stage", "compiled", "which program to print (loaded|compiled)")
}

func printExecution(cmd *cobra.Command, args []string) error {
	stage, err := cmd.Flags().GetString("stage")
	if err != nil {
		return fmt.Errorf("failed to get stage flag: %w", err)
	}

	switch stage {
	case "loaded":
		return printLoaded(args[0])
	case "compiled":
		return printCompiled(cmd, args[0])
	}
	return fmt.Errorf("unsupported stage %q (must be loaded or compiled)", stage)
}

// printLoaded dumps the image as it sits on disk: classes, instances and
// the pre-globalization program, object instructions included.
func printLoaded(path string) error {
	mod, err := driver.LoadImageFile(path)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(mod.Graph.Classes))
	for name := range mod.Graph.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cls := mod.Graph.Classes[name]
		fmt.Fprintf(os.Stdout, "class %s {\n", cls.Name)
		for _, a := range cls.Attrs {
			vis := ""
			if a.Private {
				vis = " (private)"
			}
			fmt.Fprintf(os.Stdout, "  attr %s : %s%s\n", a.Name, mod.Program.Types.String(a.Type), vis)
		}
		for _, m := range cls.Methods {
			vis := ""
			if m.Private {
				vis = " (private)"
			}
			fmt.Fprintf(os.Stdout, "  method %s -> %s%s\n", m.Name, m.Func, vis)
		}
		fmt.Fprintln(os.Stdout, "}")
	}
	for _, inst := range mod.Graph.Instances {
		fmt.Fprintf(os.Stdout, "instance #%d : %s\n", inst.ID, inst.Class)
	}
	fmt.Fprintln(os.Stdout)
	return ir.DumpProgram(os.Stdout, mod.Program)
}

func printCompiled(cmd *cobra.Command, path string) error {
	reporter, err := newReporter(cmd)
	if err != nil {
		return err
	}
	maxDiags, err := maxDiagnostics(cmd)
	if err != nil {
		return err
	}
	opt, err := passOptions(cmd, driver.Options{MaxDiagnostics: maxDiags})
	if err != nil {
		return err
	}
	res, diags, err := compileImage(path, opt, false)
	reporter.Report(diags)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return ir.DumpProgram(os.Stdout, res.Program)
}
