package vm

import (
	"errors"
	"fmt"

	"fortio.org/safecast"

	"slab/internal/ir"
)

// MaxArity bounds input and output counts per invocation.
const MaxArity = 20

// ErrFunctionNotFound reports a name absent from the exported function
// table. Callers routinely probe for optional entry points, so this is a
// recoverable result, never an abort.
var ErrFunctionNotFound = errors.New("function not found")

// TypeBoundViolationError reports an argument failing its declared bound at
// the calling-convention boundary. It is a runtime condition reported to
// the invoker, not a compiler failure.
type TypeBoundViolationError struct {
	Func  string
	Bound string
}

func (e *TypeBoundViolationError) Error() string {
	return fmt.Sprintf("argument does not satisfy type bound %s in %s", e.Bound, e.Func)
}

// FunctionMetadata describes the arity of one exported function.
type FunctionMetadata struct {
	NumInputs  int32
	NumOutputs int32
}

// Handle is the opaque program handle callers invoke through. It owns the
// mutable runtime state of the program's global cells; the exported table
// and the program itself are immutable after Load.
type Handle struct {
	prog    *ir.Program
	exports map[string]ir.FuncID
	cells   []Value
}

// Load materializes a compiled program: builds the exported function table
// and initializes cell storage from the initializers.
func Load(p *ir.Program) (*Handle, error) {
	if p == nil {
		return nil, fmt.Errorf("vm: nil program")
	}
	h := &Handle{
		prog:    p,
		exports: make(map[string]ir.FuncID),
		cells:   make([]Value, len(p.Cells)),
	}
	for _, f := range p.Funcs {
		if !f.Exported() {
			continue
		}
		if prev, ok := h.exports[f.ExportedName]; ok {
			return nil, fmt.Errorf("vm: exported name %q claimed by both %s and %s",
				f.ExportedName, p.Func(prev).Name, f.Name)
		}
		h.exports[f.ExportedName] = f.ID
	}
	for _, c := range p.Cells {
		if c.Init.Kind == ir.ConstCellRef {
			return nil, fmt.Errorf("vm: cell %s still refers to another cell at load time", c.Name)
		}
		v, err := materializeConst(c.Init)
		if err != nil {
			return nil, fmt.Errorf("vm: cell %s: %w", c.Name, err)
		}
		h.cells[c.ID] = v
	}
	return h, nil
}

// Metadata reports the arity of the exported function name.
func (h *Handle) Metadata(name string) (FunctionMetadata, error) {
	fid, ok := h.exports[name]
	if !ok {
		return FunctionMetadata{}, fmt.Errorf("%q: %w", name, ErrFunctionNotFound)
	}
	f := h.prog.Func(fid)
	nin, err := safecast.Conv[int32](len(f.Params))
	if err != nil {
		return FunctionMetadata{}, fmt.Errorf("vm: input arity overflow: %w", err)
	}
	nout, err := safecast.Conv[int32](len(f.Results))
	if err != nil {
		return FunctionMetadata{}, fmt.Errorf("vm: output arity overflow: %w", err)
	}
	return FunctionMetadata{NumInputs: nin, NumOutputs: nout}, nil
}

// Invoke runs the exported function name. Callers must have sized inputs
// and outputs per Metadata; this layer does not re-validate arity beyond
// the hard ceiling. Element i of outputs receives declared output i.
func (h *Handle) Invoke(name string, inputs []Value, outputs []Value) error {
	if len(inputs) > MaxArity || len(outputs) > MaxArity {
		return fmt.Errorf("vm: arity exceeds ceiling %d", MaxArity)
	}
	fid, ok := h.exports[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrFunctionNotFound)
	}
	results, err := h.call(h.prog.Func(fid), inputs)
	if err != nil {
		return err
	}
	copy(outputs, results)
	return nil
}
