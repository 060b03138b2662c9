package inline

import (
	"strings"
	"testing"

	"slab/internal/diag"
	"slab/internal/globalize"
	"slab/internal/ident"
	"slab/internal/ir"
	"slab/internal/og"
	"slab/internal/testkit"
	"slab/internal/types"
)

func flatten(t *testing.T, mod *og.Module) *ir.Program {
	t.Helper()
	naming, err := ident.Assign(mod.Graph)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	p, err := globalize.Run(mod, naming, diag.NewBag(64))
	if err != nil {
		t.Fatalf("globalize: %v", err)
	}
	return p
}

func run(t *testing.T, p *ir.Program) *ir.Program {
	t.Helper()
	out, err := Run(p, diag.NewBag(64))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out
}

func dump(t *testing.T, p *ir.Program) string {
	t.Helper()
	var sb strings.Builder
	if err := ir.DumpProgram(&sb, p); err != nil {
		t.Fatalf("DumpProgram: %v", err)
	}
	return sb.String()
}

func firstFunc(t *testing.T, p *ir.Program, name string) *ir.Func {
	t.Helper()
	id, ok := p.FuncByName[name]
	if !ok {
		t.Fatalf("no func %q", name)
	}
	return p.Func(id)
}

// The shared pair's child value is never stored, so its loads fold to the
// initializer and the private cell disappears.
func TestRun_SubstitutesWriteOnceCell(t *testing.T) {
	p := run(t, flatten(t, testkit.MustSharedPairModule()))
	if err := testkit.CheckFlatProgram(p); err != nil {
		t.Fatalf("flat program check: %v", err)
	}
	if len(p.Cells) != 0 {
		t.Fatalf("have %d cells, want private write-once cell pruned", len(p.Cells))
	}

	get := firstFunc(t, p, "Root.a.get")
	var folded *ir.Instr
	for bi := range get.Blocks {
		for ii := range get.Blocks[bi].Instrs {
			in := &get.Blocks[bi].Instrs[ii]
			if in.Kind == ir.InstrCellLoad {
				t.Fatalf("cell load survived substitution")
			}
			if in.Kind == ir.InstrConst {
				folded = in
			}
		}
	}
	if folded == nil {
		t.Fatalf("no folded constant in Root.a.get")
	}
	if folded.Const.Value.Kind != ir.ConstInt || folded.Const.Value.IntValue != 7 {
		t.Fatalf("folded constant = %+v, want int 7", folded.Const.Value)
	}
}

// The counter stores into its cell, so nothing may fold.
func TestRun_MutatedCellUntouched(t *testing.T) {
	p := run(t, flatten(t, testkit.MustCounterModule()))
	if _, ok := p.CellByName["C.count"]; !ok {
		t.Fatalf("mutated cell C.count pruned")
	}
	bump := firstFunc(t, p, "C.bump")
	loads, stores := 0, 0
	for bi := range bump.Blocks {
		for _, in := range bump.Blocks[bi].Instrs {
			switch in.Kind {
			case ir.InstrCellLoad:
				loads++
			case ir.InstrCellStore:
				stores++
			}
		}
	}
	if loads != 1 || stores != 1 {
		t.Fatalf("loads=%d stores=%d, want the mutated cell left alone", loads, stores)
	}
}

// twoCellProgram builds a flat program with one exported and one internal
// write-once cell, both read exactly once.
func twoCellProgram(t *testing.T) *ir.Program {
	t.Helper()
	in := types.NewInterner()
	intT := in.Builtins().Int
	p := ir.NewProgram(in)

	if _, err := p.AddCell(&ir.Cell{
		Name: "K", Type: intT, Init: ir.IntConst(5, intT), Exported: true,
	}); err != nil {
		t.Fatalf("AddCell: %v", err)
	}
	if _, err := p.AddCell(&ir.Cell{
		Name: "d", Type: intT, Init: ir.IntConst(2, intT),
	}); err != nil {
		t.Fatalf("AddCell: %v", err)
	}

	f := &ir.Func{Name: "sum", ExportedName: "sum", Results: []types.TypeID{intT}}
	a := f.NewLocal("a", intT)
	b := f.NewLocal("b", intT)
	s := f.NewLocal("s", intT)
	f.Blocks = []ir.Block{{
		Instrs: []ir.Instr{
			{Kind: ir.InstrCellLoad, CellLoad: ir.CellLoadInstr{Dst: a, Cell: 0}},
			{Kind: ir.InstrCellLoad, CellLoad: ir.CellLoadInstr{Dst: b, Cell: 1}},
			{Kind: ir.InstrPrimOp, PrimOp: ir.PrimOpInstr{
				Dst: s, Op: ir.OpAdd,
				Args: []ir.Operand{ir.UseOf(a, intT), ir.UseOf(b, intT)},
			}},
		},
		Term: ir.Terminator{
			Kind:   ir.TermReturn,
			Return: ir.ReturnTerm{Values: []ir.Operand{ir.UseOf(s, intT)}},
		},
	}}
	if _, err := p.AddFunc(f); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	return p
}

func TestRun_ExportedCellKeptInternalPruned(t *testing.T) {
	p := run(t, twoCellProgram(t))

	if len(p.Cells) != 1 || p.Cells[0].Name != "K" {
		t.Fatalf("cells after prune = %v, want only exported K", names(p))
	}
	if p.Cells[0].ID != 0 {
		t.Fatalf("surviving cell renumbered to %d, want 0", p.Cells[0].ID)
	}
	if _, ok := p.CellByName["K"]; !ok {
		t.Fatalf("index not rebuilt after prune")
	}

	f := firstFunc(t, p, "sum")
	for bi := range f.Blocks {
		for _, in := range f.Blocks[bi].Instrs {
			if in.Kind == ir.InstrCellLoad {
				t.Fatalf("write-once load survived in sum")
			}
		}
	}
}

// A cell whose initializer refers to another write-once cell folds through
// the chain until a literal remains.
func TestRun_CellRefChainFolds(t *testing.T) {
	in := types.NewInterner()
	intT := in.Builtins().Int
	p := ir.NewProgram(in)

	base, err := p.AddCell(&ir.Cell{Name: "base", Type: intT, Init: ir.IntConst(9, intT)})
	if err != nil {
		t.Fatalf("AddCell: %v", err)
	}
	ref, err := p.AddCell(&ir.Cell{Name: "ref", Type: intT, Init: ir.CellRefConst(base, intT)})
	if err != nil {
		t.Fatalf("AddCell: %v", err)
	}

	f := &ir.Func{Name: "read", ExportedName: "read", Results: []types.TypeID{intT}}
	v := f.NewLocal("v", intT)
	f.Blocks = []ir.Block{{
		Instrs: []ir.Instr{
			{Kind: ir.InstrCellLoad, CellLoad: ir.CellLoadInstr{Dst: v, Cell: ref}},
		},
		Term: ir.Terminator{
			Kind:   ir.TermReturn,
			Return: ir.ReturnTerm{Values: []ir.Operand{ir.UseOf(v, intT)}},
		},
	}}
	if _, err := p.AddFunc(f); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}

	out := run(t, p)
	if len(out.Cells) != 0 {
		t.Fatalf("cells after folding = %v, want none", names(out))
	}
	rf := firstFunc(t, out, "read")
	instr := rf.Blocks[0].Instrs[0]
	if instr.Kind != ir.InstrConst || instr.Const.Value.IntValue != 9 {
		t.Fatalf("chain folded to %+v, want const int 9", instr)
	}
}

func TestRun_Idempotent(t *testing.T) {
	once := run(t, flatten(t, testkit.MustCounterModule()))
	twice := run(t, once)
	if dump(t, once) != dump(t, twice) {
		t.Fatalf("second run changed the program")
	}
}

func TestRun_InputNotMutated(t *testing.T) {
	p := flatten(t, testkit.MustSharedPairModule())
	before := dump(t, p)
	run(t, p)
	if dump(t, p) != before {
		t.Fatalf("input program mutated")
	}
}

func names(p *ir.Program) []string {
	out := make([]string, 0, len(p.Cells))
	for _, c := range p.Cells {
		out = append(out, c.Name)
	}
	return out
}
