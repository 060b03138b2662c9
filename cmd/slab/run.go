package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"slab/internal/driver"
	"slab/internal/project"
	"slab/internal/vm"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [image] [-- arg ...]",
	Short: "Compile a module image and invoke an exported function",
	Long:  "Compile a module image through the full pipeline, load it into the boundary runtime and invoke an exported function with the given scalar arguments.",
	RunE:  runExecution,
}

func init() {
	addPassFlags(runCmd)
	runCmd.Flags().String("entry", "", "exported function to invoke")
}

func runExecution(cmd *cobra.Command, args []string) error {
	reporter, err := newReporter(cmd)
	if err != nil {
		return err
	}
	maxDiags, err := maxDiagnostics(cmd)
	if err != nil {
		return err
	}
	entry, err := cmd.Flags().GetString("entry")
	if err != nil {
		return fmt.Errorf("failed to get entry flag: %w", err)
	}

	imageArgs, invokeArgs := splitArgsAtDash(cmd, args)

	opt := driver.Options{MaxDiagnostics: maxDiags}
	var imagePath string
	switch {
	case len(imageArgs) > 1:
		return fmt.Errorf("run takes at most one image, got %d", len(imageArgs))
	case len(imageArgs) == 1:
		imagePath = imageArgs[0]
	default:
		manifest, found, merr := project.Load(".")
		if merr != nil {
			return merr
		}
		if !found {
			return errors.New(noSlabTomlMessage)
		}
		if manifest.Config.Run.Image == "" {
			return fmt.Errorf("%s: missing [run] section", manifest.Path)
		}
		imagePath = manifest.RunImage()
		if entry == "" {
			entry = manifest.Config.Run.Entry
		}
		opt = manifest.PipelineOptions()
		opt.MaxDiagnostics = maxDiags
	}
	if entry == "" {
		return fmt.Errorf("no entry function: pass --entry or set [run].entry in slab.toml")
	}
	opt, err = passOptions(cmd, opt)
	if err != nil {
		return err
	}

	res, diags, err := compileImage(imagePath, opt, false)
	reporter.Report(diags)
	if err != nil {
		return fmt.Errorf("%s: %w", imagePath, err)
	}

	handle, err := vm.Load(res.Program)
	if err != nil {
		return fmt.Errorf("%s: %w", imagePath, err)
	}
	meta, err := handle.Metadata(entry)
	if err != nil {
		return err
	}

	inputs := make([]vm.Value, 0, len(invokeArgs))
	for _, raw := range invokeArgs {
		v, perr := parseScalarArg(raw)
		if perr != nil {
			return perr
		}
		inputs = append(inputs, v)
	}
	if len(inputs) != int(meta.NumInputs) {
		return fmt.Errorf("%s takes %d inputs, got %d", entry, meta.NumInputs, len(inputs))
	}

	outputs := make([]vm.Value, meta.NumOutputs)
	if err := handle.Invoke(entry, inputs, outputs); err != nil {
		return err
	}
	for _, out := range outputs {
		fmt.Fprintln(os.Stdout, formatValue(out))
	}
	return nil
}

// splitArgsAtDash separates positional arguments from invocation arguments
// after "--".
func splitArgsAtDash(cmd *cobra.Command, args []string) ([]string, []string) {
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		return args[:at], args[at:]
	}
	return args, nil
}

// parseScalarArg reads one invocation argument: none, a bool, an int or a
// float. Tensor inputs have no literal syntax on the command line.
func parseScalarArg(raw string) (vm.Value, error) {
	switch strings.ToLower(raw) {
	case "none":
		return vm.None(), nil
	case "true":
		return vm.Bool(true), nil
	case "false":
		return vm.Bool(false), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return vm.Int(i), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return vm.Float(f), nil
	}
	return vm.Value{}, fmt.Errorf("cannot parse argument %q (expected none, bool, int or float)", raw)
}

func formatValue(v vm.Value) string {
	switch v.Kind() {
	case vm.VKNone:
		return "none"
	case vm.VKBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case vm.VKInt:
		i, _ := v.AsInt()
		return strconv.FormatInt(i, 10)
	case vm.VKFloat:
		f, _ := v.AsFloat()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case vm.VKTensor:
		ref, _ := v.AsTensor()
		t := ref.Get()
		var sb strings.Builder
		sb.WriteString("tensor<")
		for i, e := range t.Extents() {
			if i > 0 {
				sb.WriteByte('x')
			}
			fmt.Fprintf(&sb, "%d", e)
		}
		sb.WriteString(">[")
		for i, x := range t.Data() {
			if i > 0 {
				sb.WriteString(", ")
			}
			if i >= 16 {
				sb.WriteString("...")
				break
			}
			fmt.Fprintf(&sb, "%g", x)
		}
		sb.WriteString("]")
		return sb.String()
	}
	return "<?>"
}
