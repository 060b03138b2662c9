package main

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"slab/internal/diag"
	"slab/internal/driver"
	"slab/internal/project"
)

const noSlabTomlMessage = "no slab.toml found\nplease specify module images explicitly, e.g.:\n  slab build path/to/module.slabmod"

var buildCmd = &cobra.Command{
	Use:   "build [flags] [image ...]",
	Short: "Compile module images into flat programs",
	Long:  "Compile one or more module images through the full pass pipeline, using slab.toml when no image is named.",
	RunE:  buildExecution,
}

func init() {
	addPassFlags(buildCmd)
	buildCmd.Flags().Bool("emit-ir", false, "dump the program after every pass")
	buildCmd.Flags().Bool("timings", false, "show per-pass timing")
	buildCmd.Flags().Int("jobs", 4, "maximum images compiled concurrently")
}

func buildExecution(cmd *cobra.Command, args []string) error {
	reporter, err := newReporter(cmd)
	if err != nil {
		return err
	}
	maxDiags, err := maxDiagnostics(cmd)
	if err != nil {
		return err
	}
	emitIR, err := cmd.Flags().GetBool("emit-ir")
	if err != nil {
		return fmt.Errorf("failed to get emit-ir flag: %w", err)
	}
	showTimings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if jobs < 1 || emitIR {
		// Interleaved dumps are useless, so emit-ir builds run serially.
		jobs = 1
	}

	baseOpt := driver.Options{MaxDiagnostics: maxDiags}
	images := args
	if len(images) == 0 {
		manifest, found, merr := project.Load(".")
		if merr != nil {
			return merr
		}
		if !found {
			return errors.New(noSlabTomlMessage)
		}
		images = manifest.Images()
		if len(images) == 0 {
			return fmt.Errorf("%s: [build].images is empty", manifest.Path)
		}
		baseOpt = manifest.PipelineOptions()
		baseOpt.MaxDiagnostics = maxDiags
	}
	opt, err := passOptions(cmd, baseOpt)
	if err != nil {
		return err
	}

	var mu sync.Mutex // serializes reporter and stdout across images
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(jobs)
	for _, path := range images {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res, diags, err := compileImage(path, opt, emitIR)
			mu.Lock()
			defer mu.Unlock()
			reporter.Report(diags)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(os.Stdout, "built %s: %d cells, %d functions\n",
				path, len(res.Program.Cells), len(res.Program.Funcs))
			if showTimings {
				for _, pt := range res.Timings {
					fmt.Fprintf(os.Stdout, "  %-16s %s\n", pt.Name, pt.Elapsed)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// compileImage loads one image and runs the pipeline over it. Each image
// gets its own program and diagnostic bag, so images compile concurrently
// without sharing.
func compileImage(path string, opt driver.Options, emitIR bool) (*driver.Result, *diag.Bag, error) {
	mod, err := driver.LoadImageFile(path)
	if err != nil {
		return nil, nil, err
	}
	if emitIR {
		opt.DumpIR = os.Stdout
	}
	res, err := driver.Compile(mod, opt)
	var diags *diag.Bag
	if res != nil {
		diags = res.Diags
	}
	if err != nil {
		return nil, diags, err
	}
	return res, diags, nil
}
