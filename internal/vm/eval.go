package vm

import (
	"fmt"

	"fortio.org/safecast"

	"slab/internal/ir"
	"slab/internal/types"
)

// maxCallDepth bounds recursion through compiled functions.
const maxCallDepth = 256

type frame struct {
	fn     *ir.Func
	locals []Value
	depth  int
}

// call executes one function. Tensor references held in frame locals are
// borrowed: the frame never retains or releases, and fresh tensors escape
// through the returned values.
func (h *Handle) call(f *ir.Func, args []Value) ([]Value, error) {
	return h.callDepth(f, args, 0)
}

func (h *Handle) callDepth(f *ir.Func, args []Value, depth int) ([]Value, error) {
	if depth >= maxCallDepth {
		return nil, fmt.Errorf("vm: call depth exceeded (%d) in %s", maxCallDepth, f.Name)
	}
	if len(args) != len(f.Params) {
		return nil, fmt.Errorf("vm: %s called with %d args, want %d", f.Name, len(args), len(f.Params))
	}
	fr := &frame{fn: f, locals: make([]Value, len(f.Locals)), depth: depth}
	copy(fr.locals, args)

	bb := f.Entry
	for steps := 0; ; steps++ {
		if steps > 1_000_000 {
			return nil, fmt.Errorf("vm: runaway execution in %s", f.Name)
		}
		block := &f.Blocks[bb]
		for ii := range block.Instrs {
			if err := h.exec(fr, &block.Instrs[ii]); err != nil {
				return nil, err
			}
		}
		switch block.Term.Kind {
		case ir.TermReturn:
			out := make([]Value, len(block.Term.Return.Values))
			for i, o := range block.Term.Return.Values {
				v, err := h.operand(fr, o)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		case ir.TermGoto:
			bb = block.Term.Goto.Target
		case ir.TermIf:
			cond, err := h.operand(fr, block.Term.If.Cond)
			if err != nil {
				return nil, err
			}
			cv, err := cond.AsBool()
			if err != nil {
				return nil, fmt.Errorf("vm: %s: branch condition: %w", f.Name, err)
			}
			if cv {
				bb = block.Term.If.Then
			} else {
				bb = block.Term.If.Else
			}
		default:
			return nil, fmt.Errorf("vm: %s: fell off an unterminated block", f.Name)
		}
	}
}

func (h *Handle) exec(fr *frame, in *ir.Instr) error {
	switch in.Kind {
	case ir.InstrNop:
		return nil

	case ir.InstrConst:
		v, err := materializeConst(in.Const.Value)
		if err != nil {
			return err
		}
		fr.locals[in.Const.Dst] = v
		return nil

	case ir.InstrCopy:
		v, err := h.operand(fr, in.Copy.Src)
		if err != nil {
			return err
		}
		fr.locals[in.Copy.Dst] = v
		return nil

	case ir.InstrCellLoad:
		cell := h.prog.Cell(in.CellLoad.Cell)
		v := h.cells[in.CellLoad.Cell]
		if v.Kind() == VKTensor && !h.prog.Types.IsAliasable(cell.Type) {
			// A value-semantic load is a snapshot; give it its own buffer so
			// later writes through aliases of the cell's tensor stay
			// invisible.
			t, err := v.AsTensor()
			if err != nil {
				return err
			}
			v = TensorValue(cloneTensor(t.Get()))
		}
		fr.locals[in.CellLoad.Dst] = v
		return nil

	case ir.InstrCellStore:
		v, err := h.operand(fr, in.CellStore.Src)
		if err != nil {
			return err
		}
		h.cells[in.CellStore.Cell] = v
		return nil

	case ir.InstrCall:
		callee := h.prog.Func(in.Call.Callee.Func)
		if callee == nil {
			return fmt.Errorf("vm: call of missing function %q", in.Call.Callee.Name)
		}
		args := make([]Value, len(in.Call.Args))
		for i, o := range in.Call.Args {
			v, err := h.operand(fr, o)
			if err != nil {
				return err
			}
			args[i] = v
		}
		results, err := h.callDepth(callee, args, fr.depth+1)
		if err != nil {
			return err
		}
		for i, d := range in.Call.Dsts {
			fr.locals[d] = results[i]
		}
		return nil

	case ir.InstrPrimOp:
		return h.execPrimOp(fr, in)

	case ir.InstrToValue:
		src, err := h.operand(fr, in.ToValue.Src)
		if err != nil {
			return err
		}
		t, err := src.AsTensor()
		if err != nil {
			return fmt.Errorf("vm: to_value: %w", err)
		}
		fr.locals[in.ToValue.Dst] = TensorValue(cloneTensor(t.Get()))
		return nil

	case ir.InstrToAlias:
		src, err := h.operand(fr, in.ToAlias.Src)
		if err != nil {
			return err
		}
		t, err := src.AsTensor()
		if err != nil {
			return fmt.Errorf("vm: to_alias: %w", err)
		}
		fr.locals[in.ToAlias.Dst] = TensorValue(cloneTensor(t.Get()))
		return nil

	case ir.InstrOverwrite:
		target := fr.locals[in.Overwrite.Target]
		tt, err := target.AsTensor()
		if err != nil {
			return fmt.Errorf("vm: overwrite: %w", err)
		}
		src, err := h.operand(fr, in.Overwrite.Src)
		if err != nil {
			return err
		}
		st, err := src.AsTensor()
		if err != nil {
			return fmt.Errorf("vm: overwrite: %w", err)
		}
		dst, from := tt.Get(), st.Get()
		if len(dst.Data()) != len(from.Data()) {
			return fmt.Errorf("vm: overwrite with mismatched element count (%d into %d)",
				len(from.Data()), len(dst.Data()))
		}
		copy(dst.Data(), from.Data())
		return nil

	case ir.InstrBoundCast:
		src, err := h.operand(fr, in.BoundCast.Src)
		if err != nil {
			return err
		}
		if src.Kind() == VKTensor {
			t, _ := src.AsTensor()
			if !tensorSatisfies(h.prog.Types, t.Get(), in.BoundCast.Type) {
				return &TypeBoundViolationError{
					Func:  fr.fn.Name,
					Bound: h.prog.Types.String(in.BoundCast.Type),
				}
			}
		}
		fr.locals[in.BoundCast.Dst] = src
		return nil
	}

	return fmt.Errorf("vm: %s: unexpected instruction kind %d", fr.fn.Name, in.Kind)
}

func (h *Handle) operand(fr *frame, o ir.Operand) (Value, error) {
	if o.Kind == ir.OperandConst {
		return materializeConst(o.Const)
	}
	if int(o.Local) >= len(fr.locals) {
		return Value{}, fmt.Errorf("vm: %s: local %%%d out of range", fr.fn.Name, o.Local)
	}
	return fr.locals[o.Local], nil
}

func (h *Handle) execPrimOp(fr *frame, in *ir.Instr) error {
	args := make([]Value, len(in.PrimOp.Args))
	for i, o := range in.PrimOp.Args {
		v, err := h.operand(fr, o)
		if err != nil {
			return err
		}
		args[i] = v
	}
	v, err := applyPrimOp(in.PrimOp.Op, args)
	if err != nil {
		return fmt.Errorf("vm: %s: %w", fr.fn.Name, err)
	}
	fr.locals[in.PrimOp.Dst] = v
	return nil
}

func applyPrimOp(op ir.PrimOpKind, args []Value) (Value, error) {
	if op == ir.OpNeg {
		if len(args) != 1 {
			return Value{}, fmt.Errorf("%s expects 1 operand, got %d", op, len(args))
		}
		switch args[0].Kind() {
		case VKInt:
			i, _ := args[0].AsInt()
			return Int(-i), nil
		case VKFloat:
			f, _ := args[0].AsFloat()
			return Float(-f), nil
		case VKTensor:
			t, _ := args[0].AsTensor()
			return mapTensor(t.Get(), func(a float32) float32 { return -a })
		}
		return Value{}, fmt.Errorf("%s of %s", op, args[0].Kind())
	}

	if len(args) != 2 {
		return Value{}, fmt.Errorf("%s expects 2 operands, got %d", op, len(args))
	}
	a, b := args[0], args[1]
	if a.Kind() != b.Kind() {
		return Value{}, fmt.Errorf("%s of mismatched kinds %s and %s", op, a.Kind(), b.Kind())
	}
	switch a.Kind() {
	case VKInt:
		x, _ := a.AsInt()
		y, _ := b.AsInt()
		switch op {
		case ir.OpAdd:
			return Int(x + y), nil
		case ir.OpSub:
			return Int(x - y), nil
		case ir.OpMul:
			return Int(x * y), nil
		}
	case VKFloat:
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		switch op {
		case ir.OpAdd:
			return Float(x + y), nil
		case ir.OpSub:
			return Float(x - y), nil
		case ir.OpMul:
			return Float(x * y), nil
		}
	case VKTensor:
		xt, _ := a.AsTensor()
		yt, _ := b.AsTensor()
		return zipTensors(op, xt.Get(), yt.Get())
	}
	return Value{}, fmt.Errorf("%s of %s", op, a.Kind())
}

func mapTensor(t *Tensor, f func(float32) float32) (Value, error) {
	out := cloneTensor(t)
	data := out.Get().Data()
	for i := range data {
		data[i] = f(data[i])
	}
	return TensorValue(out), nil
}

func zipTensors(op ir.PrimOpKind, a, b *Tensor) (Value, error) {
	if len(a.Data()) != len(b.Data()) {
		return Value{}, fmt.Errorf("%s of tensors with %d and %d elements", op, len(a.Data()), len(b.Data()))
	}
	out := cloneTensor(a)
	data := out.Get().Data()
	bd := b.Data()
	for i := range data {
		switch op {
		case ir.OpAdd:
			data[i] += bd[i]
		case ir.OpSub:
			data[i] -= bd[i]
		case ir.OpMul:
			data[i] *= bd[i]
		default:
			out.Release()
			return Value{}, fmt.Errorf("%s is not an elementwise operation", op)
		}
	}
	return TensorValue(out), nil
}

// tensorSatisfies checks the runtime shape of t against a declared bound.
func tensorSatisfies(in *types.Interner, t *Tensor, bound types.TypeID) bool {
	bt, ok := in.Lookup(bound)
	if !ok || bt.Kind != types.KindTensor {
		return false
	}
	if t.ElementType() != bt.Elem {
		return false
	}
	if bt.Rank < 0 {
		return true
	}
	if t.Rank() != bt.Rank {
		return false
	}
	for i, d := range bt.Dims {
		if d == types.DynamicDim {
			continue
		}
		if int64(t.Extent(i)) != d {
			return false
		}
	}
	return true
}

// materializeConst builds a runtime value from a literal.
func materializeConst(c ir.Const) (Value, error) {
	switch c.Kind {
	case ir.ConstNone:
		return None(), nil
	case ir.ConstBool:
		return Bool(c.BoolValue), nil
	case ir.ConstInt:
		return Int(c.IntValue), nil
	case ir.ConstFloat:
		return Float(c.FloatValue), nil
	case ir.ConstTensor:
		if c.Tensor == nil {
			return Value{}, fmt.Errorf("nil tensor literal")
		}
		extents := make([]int32, len(c.Tensor.Dims))
		for i, d := range c.Tensor.Dims {
			e, err := safecast.Conv[int32](d)
			if err != nil {
				return Value{}, fmt.Errorf("tensor extent overflow: %w", err)
			}
			extents[i] = e
		}
		ref, err := NewTensor(extents, c.Tensor.Elem, c.Tensor.Data)
		if err != nil {
			return Value{}, err
		}
		return TensorValue(ref), nil
	case ir.ConstCellRef:
		return Value{}, fmt.Errorf("cell reference constant reached the runtime")
	}
	return Value{}, fmt.Errorf("unsupported constant kind %d", c.Kind)
}
