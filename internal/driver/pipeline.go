// Package driver sequences the compilation pipeline from a loaded module
// image to a flat, boundary-ready program, and owns the on-disk module
// image format.
package driver

import (
	"fmt"
	"io"
	"time"

	"slab/internal/abi"
	"slab/internal/diag"
	"slab/internal/globalize"
	"slab/internal/ident"
	"slab/internal/inline"
	"slab/internal/ir"
	"slab/internal/og"
	"slab/internal/valsem"
)

// Options selects which refinement passes run after globalization.
// Globalization itself always runs; everything downstream assumes a flat
// program.
type Options struct {
	// DisableInline skips slot inlining and dead-cell pruning.
	DisableInline bool
	// DisableValsem skips the value-semantics conversion.
	DisableValsem bool
	// DisableABI skips the calling-convention adjustment. A program compiled
	// without it keeps internal signatures on exported functions.
	DisableABI bool

	// DumpIR, when non-nil, receives a program dump after every pass.
	DumpIR io.Writer

	// MaxDiagnostics caps the diagnostic bag. Zero means the default.
	MaxDiagnostics int
}

const defaultMaxDiagnostics = 256

// PhaseTiming records the wall time one pass took.
type PhaseTiming struct {
	Name    string
	Elapsed time.Duration
}

// Result is the output of a successful or failed compilation. Diags is
// populated either way.
type Result struct {
	Program *ir.Program
	Naming  *ident.Naming
	Diags   *diag.Bag
	Timings []PhaseTiming
}

// Compile runs the full pipeline over a loaded module. On error the result
// still carries the diagnostics gathered so far.
func Compile(mod *og.Module, opt Options) (*Result, error) {
	maxDiags := opt.MaxDiagnostics
	if maxDiags <= 0 {
		maxDiags = defaultMaxDiagnostics
	}
	res := &Result{Diags: diag.NewBag(maxDiags)}

	phase := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		res.Timings = append(res.Timings, PhaseTiming{Name: name, Elapsed: time.Since(start)})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if res.Program != nil {
			if verr := ir.Validate(res.Program, ir.ValidateOptions{}); verr != nil {
				return fmt.Errorf("%s left an invalid program: %w", name, verr)
			}
		}
		if opt.DumpIR != nil {
			fmt.Fprintf(opt.DumpIR, "// after %s\n", name)
			switch {
			case res.Program != nil:
				_ = ir.DumpProgram(opt.DumpIR, res.Program)
			case res.Naming != nil:
				// Before globalization there is no program yet; dump the
				// assigned names instead.
				for _, id := range res.Naming.Order {
					fmt.Fprintf(opt.DumpIR, "instance %s\n", res.Naming.InstanceName[id])
				}
			}
		}
		return nil
	}

	if err := phase("identify", func() error {
		naming, err := ident.Assign(mod.Graph)
		res.Naming = naming
		return err
	}); err != nil {
		return res, err
	}

	if err := phase("globalize", func() error {
		p, err := globalize.Run(mod, res.Naming, res.Diags)
		res.Program = p
		return err
	}); err != nil {
		return res, err
	}

	if !opt.DisableInline {
		if err := phase("inline-slots", func() error {
			p, err := inline.Run(res.Program, res.Diags)
			if err == nil {
				res.Program = p
			}
			return err
		}); err != nil {
			return res, err
		}
	}

	if !opt.DisableValsem {
		if err := phase("value-semantics", func() error {
			p, err := valsem.Run(res.Program, res.Diags)
			if err == nil {
				res.Program = p
			}
			return err
		}); err != nil {
			return res, err
		}
	}

	if !opt.DisableABI {
		if err := phase("adjust-abi", func() error {
			p, err := abi.Run(res.Program, res.Diags)
			if err == nil {
				res.Program = p
			}
			return err
		}); err != nil {
			return res, err
		}
	}

	res.Diags.Sort()
	return res, nil
}
