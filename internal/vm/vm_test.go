package vm

import (
	"errors"
	"testing"

	"slab/internal/ir"
	"slab/internal/types"
)

func TestRef_Lifecycle(t *testing.T) {
	ref, err := NewTensor([]int32{2, 2}, types.F32, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}
	if got := ref.DebugRefCount(); got != 1 {
		t.Fatalf("fresh count = %d, want 1", got)
	}

	second := ref.Retain()
	if got := ref.DebugRefCount(); got != 2 {
		t.Fatalf("count after retain = %d, want 2", got)
	}

	ref.Release()
	if ref.Valid() {
		t.Fatalf("released handle still valid")
	}
	if got := second.DebugRefCount(); got != 1 {
		t.Fatalf("count after first release = %d, want 1", got)
	}
	if second.Get().Data() == nil {
		t.Fatalf("buffer destroyed while a reference remains")
	}

	tensor := second.Get()
	second.Release()
	if tensor.Data() != nil {
		t.Fatalf("buffer survived the last release")
	}

	// Releasing an already released handle is a no-op.
	ref.Release()
	second.Release()
}

func TestNewTensor_RejectsBadShape(t *testing.T) {
	if _, err := NewTensor([]int32{2, 3}, types.F32, []float32{1, 2}); err == nil {
		t.Fatalf("data shorter than extents accepted")
	}
	if _, err := NewTensor([]int32{-1}, types.F32, nil); err == nil {
		t.Fatalf("negative extent accepted")
	}
}

func TestValue_Variants(t *testing.T) {
	v := Int(42)
	if got, err := v.AsInt(); err != nil || got != 42 {
		t.Fatalf("AsInt = %d, %v", got, err)
	}
	_, err := v.AsBool()
	var wv *WrongVariantError
	if !errors.As(err, &wv) {
		t.Fatalf("error = %v, want WrongVariantError", err)
	}
	if wv.Want != VKBool || wv.Got != VKInt {
		t.Fatalf("variant error = %+v", wv)
	}
	if !None().IsNone() {
		t.Fatalf("None is not none")
	}
}

func TestValue_TensorOwnership(t *testing.T) {
	ref, err := NewTensor([]int32{1}, types.F32, []float32{7})
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}
	v := TensorValue(ref)
	w := v.Retain()
	if got := ref.DebugRefCount(); got != 2 {
		t.Fatalf("count after value retain = %d, want 2", got)
	}
	w.Release()
	v.Release()
	if ref.Get().Data() != nil {
		t.Fatalf("buffer survived releasing every owner")
	}
}

// branchProgram selects between two constants, exercising both conditional
// and unconditional transfers.
func branchProgram(t *testing.T) *ir.Program {
	t.Helper()
	in := types.NewInterner()
	b := in.Builtins()

	p := ir.NewProgram(in)
	f := &ir.Func{
		Name:         "sign",
		ExportedName: "sign",
		Params:       []ir.Param{{Name: "pos", Type: b.Bool}},
		Results:      []types.TypeID{b.Int},
	}
	pos := f.NewLocal("pos", b.Bool)
	out := f.NewLocal("out", b.Int)
	f.Blocks = []ir.Block{
		{Term: ir.Terminator{Kind: ir.TermIf, If: ir.IfTerm{
			Cond: ir.UseOf(pos, b.Bool), Then: 1, Else: 2,
		}}},
		{
			Instrs: []ir.Instr{{Kind: ir.InstrConst, Const: ir.ConstInstr{
				Dst: out, Value: ir.IntConst(1, b.Int),
			}}},
			Term: ir.Terminator{Kind: ir.TermGoto, Goto: ir.GotoTerm{Target: 3}},
		},
		{
			Instrs: []ir.Instr{{Kind: ir.InstrConst, Const: ir.ConstInstr{
				Dst: out, Value: ir.IntConst(-1, b.Int),
			}}},
			Term: ir.Terminator{Kind: ir.TermGoto, Goto: ir.GotoTerm{Target: 3}},
		},
		{Term: ir.Terminator{
			Kind:   ir.TermReturn,
			Return: ir.ReturnTerm{Values: []ir.Operand{ir.UseOf(out, b.Int)}},
		}},
	}
	if _, err := p.AddFunc(f); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	return p
}

func TestInvoke_Branches(t *testing.T) {
	h, err := Load(branchProgram(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, tc := range []struct {
		arg  bool
		want int64
	}{
		{arg: true, want: 1},
		{arg: false, want: -1},
	} {
		outputs := make([]Value, 1)
		if err := h.Invoke("sign", []Value{Bool(tc.arg)}, outputs); err != nil {
			t.Fatalf("Invoke(%v): %v", tc.arg, err)
		}
		got, err := outputs[0].AsInt()
		if err != nil || got != tc.want {
			t.Fatalf("sign(%v) = %d, %v; want %d", tc.arg, got, err, tc.want)
		}
	}
}

func TestInvoke_UnknownFunction(t *testing.T) {
	h, err := Load(branchProgram(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := h.Invoke("absent", nil, nil); !errors.Is(err, ErrFunctionNotFound) {
		t.Fatalf("Invoke error = %v, want ErrFunctionNotFound", err)
	}
	if _, err := h.Metadata("absent"); !errors.Is(err, ErrFunctionNotFound) {
		t.Fatalf("Metadata error = %v, want ErrFunctionNotFound", err)
	}
}

func TestInvoke_ArityCeiling(t *testing.T) {
	h, err := Load(branchProgram(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	inputs := make([]Value, MaxArity+1)
	for i := range inputs {
		inputs[i] = None()
	}
	if err := h.Invoke("sign", inputs, nil); err == nil {
		t.Fatalf("arity above ceiling accepted")
	}
}

func TestLoad_RejectsDuplicateExports(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	p := ir.NewProgram(in)
	for _, name := range []string{"first", "second"} {
		f := &ir.Func{Name: name, ExportedName: "entry", Results: []types.TypeID{b.Int}}
		out := f.NewLocal("out", b.Int)
		f.Blocks = []ir.Block{{
			Instrs: []ir.Instr{{Kind: ir.InstrConst, Const: ir.ConstInstr{
				Dst: out, Value: ir.IntConst(0, b.Int),
			}}},
			Term: ir.Terminator{
				Kind:   ir.TermReturn,
				Return: ir.ReturnTerm{Values: []ir.Operand{ir.UseOf(out, b.Int)}},
			},
		}}
		if _, err := p.AddFunc(f); err != nil {
			t.Fatalf("AddFunc: %v", err)
		}
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("duplicate exported name accepted")
	}
}

func TestLoad_RejectsUnfoldedCellRef(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	p := ir.NewProgram(in)
	base, err := p.AddCell(&ir.Cell{Name: "base", Type: b.Int, Init: ir.IntConst(1, b.Int)})
	if err != nil {
		t.Fatalf("AddCell: %v", err)
	}
	if _, err := p.AddCell(&ir.Cell{
		Name: "ref", Type: b.Int, Init: ir.CellRefConst(base, b.Int), Exported: true,
	}); err != nil {
		t.Fatalf("AddCell: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("cell-of-cell initializer accepted at load time")
	}
}

func TestMaterializeConst(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()

	v, err := materializeConst(ir.IntConst(9, b.Int))
	if err != nil {
		t.Fatalf("materializeConst: %v", err)
	}
	if got, err := v.AsInt(); err != nil || got != 9 {
		t.Fatalf("int const = %d, %v", got, err)
	}

	lit := &ir.TensorLit{Elem: types.F32, Dims: []int64{2}, Data: []float32{3, 4}}
	tv, err := materializeConst(ir.TensorConst(lit, b.Int))
	if err != nil {
		t.Fatalf("materializeConst tensor: %v", err)
	}
	ref, err := tv.AsTensor()
	if err != nil {
		t.Fatalf("tensor const: %v", err)
	}
	if ref.Get().Rank() != 1 || ref.Get().Data()[1] != 4 {
		t.Fatalf("tensor const = rank %d data %v", ref.Get().Rank(), ref.Get().Data())
	}
	tv.Release()

	if _, err := materializeConst(ir.CellRefConst(0, b.Int)); err == nil {
		t.Fatalf("cell reference materialized")
	}
}
