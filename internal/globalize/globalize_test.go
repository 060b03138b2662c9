package globalize

import (
	"errors"
	"strings"
	"testing"

	"slab/internal/diag"
	"slab/internal/ident"
	"slab/internal/ir"
	"slab/internal/og"
	"slab/internal/testkit"
	"slab/internal/types"
)

func runModule(t *testing.T, mod *og.Module) (*ir.Program, *diag.Bag) {
	t.Helper()
	naming, err := ident.Assign(mod.Graph)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	bag := diag.NewBag(64)
	p, err := Run(mod, naming, bag)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return p, bag
}

func runModuleErr(t *testing.T, mod *og.Module) error {
	t.Helper()
	naming, err := ident.Assign(mod.Graph)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	_, err = Run(mod, naming, diag.NewBag(64))
	if err == nil {
		t.Fatalf("Run succeeded, want error")
	}
	return err
}

func mustCell(t *testing.T, p *ir.Program, name string) *ir.Cell {
	t.Helper()
	id, ok := p.CellByName[name]
	if !ok {
		t.Fatalf("no cell %q, have %v", name, cellNames(p))
	}
	return p.Cell(id)
}

func mustFunc(t *testing.T, p *ir.Program, name string) *ir.Func {
	t.Helper()
	id, ok := p.FuncByName[name]
	if !ok {
		t.Fatalf("no func %q", name)
	}
	return p.Func(id)
}

func cellNames(p *ir.Program) []string {
	names := make([]string, 0, len(p.Cells))
	for _, c := range p.Cells {
		names = append(names, c.Name)
	}
	return names
}

func countInstrs(f *ir.Func, kind ir.InstrKind) int {
	n := 0
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			if f.Blocks[bi].Instrs[ii].Kind == kind {
				n++
			}
		}
	}
	return n
}

func TestRun_Counter(t *testing.T) {
	p, _ := runModule(t, testkit.MustCounterModule())
	if err := testkit.CheckFlatProgram(p); err != nil {
		t.Fatalf("flat program check: %v", err)
	}

	cell := mustCell(t, p, "C.count")
	if !cell.Exported {
		t.Fatalf("cell C.count not exported")
	}
	if cell.Init.Kind != ir.ConstInt || cell.Init.IntValue != 3 {
		t.Fatalf("cell C.count init = %+v, want int 3", cell.Init)
	}

	bump := mustFunc(t, p, "C.bump")
	if bump.ExportedName != "bump" {
		t.Fatalf("C.bump exported name = %q, want %q", bump.ExportedName, "bump")
	}
	if len(bump.Params) != 0 {
		t.Fatalf("C.bump keeps %d params, want receiver dropped", len(bump.Params))
	}
	if len(bump.Results) != 1 || bump.Results[0] != p.Types.Builtins().Int {
		t.Fatalf("C.bump results = %v, want one int", bump.Results)
	}
	if got := countInstrs(bump, ir.InstrCellLoad); got != 1 {
		t.Fatalf("C.bump has %d cell loads, want 1", got)
	}
	if got := countInstrs(bump, ir.InstrCellStore); got != 1 {
		t.Fatalf("C.bump has %d cell stores, want 1", got)
	}
}

// The root holds one child under two attributes. Identity keying must yield
// exactly one cell and one function for the child, both named by the first
// discovery path.
func TestRun_SharedChildMonomorphizedOnce(t *testing.T) {
	p, _ := runModule(t, testkit.MustSharedPairModule())
	if err := testkit.CheckFlatProgram(p); err != nil {
		t.Fatalf("flat program check: %v", err)
	}

	val := mustCell(t, p, "Root.a.val")
	if val.Exported {
		t.Fatalf("private cell Root.a.val is exported")
	}
	if _, ok := p.CellByName["Root.b.val"]; ok {
		t.Fatalf("shared child duplicated as Root.b.val")
	}
	if len(p.Cells) != 1 {
		t.Fatalf("have cells %v, want only Root.a.val", cellNames(p))
	}

	total := mustFunc(t, p, "Root.total")
	if total.ExportedName != "total" {
		t.Fatalf("Root.total exported name = %q", total.ExportedName)
	}
	get := mustFunc(t, p, "Root.a.get")
	if get.ExportedName != "" {
		t.Fatalf("private method exported as %q", get.ExportedName)
	}
	if _, ok := p.FuncByName["Root.b.get"]; ok {
		t.Fatalf("shared child method duplicated as Root.b.get")
	}

	// Both call sites in total resolve to the same instantiation.
	var callees []ir.FuncID
	for bi := range total.Blocks {
		for _, in := range total.Blocks[bi].Instrs {
			if in.Kind == ir.InstrCall {
				callees = append(callees, in.Call.Callee.Func)
			}
		}
	}
	if len(callees) != 2 || callees[0] != callees[1] {
		t.Fatalf("callees = %v, want two calls to one function", callees)
	}
	if callees[0] != get.ID {
		t.Fatalf("calls target func %d, want Root.a.get (%d)", callees[0], get.ID)
	}
}

// errModule assembles a one-instance module around a single method body so
// each rejection case stays small.
func errModule(t *testing.T, build func(in *types.Interner, classC types.TypeID, p *ir.Program) string) *og.Module {
	t.Helper()
	in := types.NewInterner()
	intT := in.Builtins().Int
	classC := in.Intern(types.MakeClass("C"))

	p := ir.NewProgram(in)
	bodyName := build(in, classC, p)

	g := og.NewGraph()
	cls := &og.Class{
		Name:  "C",
		Attrs: []og.AttrDecl{{Name: "count", Type: intT}},
	}
	if bodyName != "" {
		cls.Methods = []og.MethodDecl{{Name: "m", Func: bodyName}}
	}
	if err := g.AddClass(cls); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	root, err := g.NewInstance("C")
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	root.SetSlot("count", og.IntValue(0))
	return &og.Module{Graph: g, Program: p}
}

func TestRun_UnresolvedReceivers(t *testing.T) {
	tests := []struct {
		name   string
		build  func(in *types.Interner, classC types.TypeID, p *ir.Program) string
		detail string
	}{
		{
			name: "module value passed as call argument",
			build: func(in *types.Interner, classC types.TypeID, p *ir.Program) string {
				free := &ir.Func{
					Name:   "inspect",
					Params: []ir.Param{{Name: "obj", Type: classC}},
				}
				free.NewLocal("obj", classC)
				free.Blocks = []ir.Block{{Term: ir.Terminator{Kind: ir.TermReturn}}}
				freeID, err := p.AddFunc(free)
				if err != nil {
					panic(err)
				}

				body := &ir.Func{
					Name:   "m_body",
					Params: []ir.Param{{Name: "self", Type: classC}},
				}
				self := body.NewLocal("self", classC)
				body.Blocks = []ir.Block{{
					Instrs: []ir.Instr{{Kind: ir.InstrCall, Call: ir.CallInstr{
						Callee: ir.Callee{Func: freeID, Name: "inspect"},
						Args:   []ir.Operand{ir.UseOf(self, classC)},
					}}},
					Term: ir.Terminator{Kind: ir.TermReturn},
				}}
				if _, err := p.AddFunc(body); err != nil {
					panic(err)
				}
				return "m_body"
			},
			detail: "call argument",
		},
		{
			name: "object operation outside a method body",
			build: func(in *types.Interner, classC types.TypeID, p *ir.Program) string {
				intT := in.Builtins().Int
				free := &ir.Func{
					Name:    "peek",
					Params:  []ir.Param{{Name: "obj", Type: classC}},
					Results: []types.TypeID{intT},
				}
				obj := free.NewLocal("obj", classC)
				out := free.NewLocal("out", intT)
				free.Blocks = []ir.Block{{
					Instrs: []ir.Instr{{Kind: ir.InstrAttrGet, AttrGet: ir.AttrGetInstr{
						Dst: out, Object: ir.UseOf(obj, classC), Attr: "count",
					}}},
					Term: ir.Terminator{
						Kind:   ir.TermReturn,
						Return: ir.ReturnTerm{Values: []ir.Operand{ir.UseOf(out, intT)}},
					},
				}}
				if _, err := p.AddFunc(free); err != nil {
					panic(err)
				}
				return ""
			},
			detail: "outside a method body",
		},
		{
			name: "module value returned from a method",
			build: func(in *types.Interner, classC types.TypeID, p *ir.Program) string {
				body := &ir.Func{
					Name:    "m_body",
					Params:  []ir.Param{{Name: "self", Type: classC}},
					Results: []types.TypeID{classC},
				}
				self := body.NewLocal("self", classC)
				body.Blocks = []ir.Block{{
					Term: ir.Terminator{
						Kind:   ir.TermReturn,
						Return: ir.ReturnTerm{Values: []ir.Operand{ir.UseOf(self, classC)}},
					},
				}}
				if _, err := p.AddFunc(body); err != nil {
					panic(err)
				}
				return "m_body"
			},
			detail: "returned from a method",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := runModuleErr(t, errModule(t, tc.build))
			var ure *UnresolvedReceiverError
			if !errors.As(err, &ure) {
				t.Fatalf("error %v, want UnresolvedReceiverError", err)
			}
			if !strings.Contains(ure.Detail, tc.detail) {
				t.Fatalf("detail %q does not mention %q", ure.Detail, tc.detail)
			}
		})
	}
}

// Writing a module-typed attribute after load time would rewire the graph
// under the flattened program's feet, so globalization rejects it.
func TestRun_ModuleTypedAttrWriteRejected(t *testing.T) {
	in := types.NewInterner()
	classRoot := in.Intern(types.MakeClass("Root"))
	classChild := in.Intern(types.MakeClass("Child"))

	p := ir.NewProgram(in)
	body := &ir.Func{
		Name:   "reset_body",
		Params: []ir.Param{{Name: "self", Type: classRoot}},
	}
	self := body.NewLocal("self", classRoot)
	c := body.NewLocal("c", classChild)
	body.Blocks = []ir.Block{{
		Instrs: []ir.Instr{
			{Kind: ir.InstrAttrGet, AttrGet: ir.AttrGetInstr{
				Dst: c, Object: ir.UseOf(self, classRoot), Attr: "a",
			}},
			{Kind: ir.InstrAttrSet, AttrSet: ir.AttrSetInstr{
				Object: ir.UseOf(self, classRoot), Attr: "a", Src: ir.UseOf(c, classChild),
			}},
		},
		Term: ir.Terminator{Kind: ir.TermReturn},
	}}
	if _, err := p.AddFunc(body); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}

	g := og.NewGraph()
	if err := g.AddClass(&og.Class{
		Name:    "Root",
		Attrs:   []og.AttrDecl{{Name: "a", Type: classChild}},
		Methods: []og.MethodDecl{{Name: "reset", Func: "reset_body"}},
	}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if err := g.AddClass(&og.Class{Name: "Child"}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	root, err := g.NewInstance("Root")
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	child, err := g.NewInstance("Child")
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	root.SetSlot("a", og.InstanceValue(child.ID))

	err = runModuleErr(t, &og.Module{Graph: g, Program: p})
	var ure *UnresolvedReceiverError
	if !errors.As(err, &ure) {
		t.Fatalf("error %v, want UnresolvedReceiverError", err)
	}
	if !strings.Contains(ure.Detail, "module-typed attribute") {
		t.Fatalf("detail %q does not mention the attribute write", ure.Detail)
	}
}

// A null module reference is legal to load and carry; only a use through it
// is an error.
func TestRun_NullReferenceLegalUntilUsed(t *testing.T) {
	build := func(call bool) *og.Module {
		in := types.NewInterner()
		intT := in.Builtins().Int
		classC := in.Intern(types.MakeClass("C"))

		p := ir.NewProgram(in)
		body := &ir.Func{
			Name:    "m_body",
			Params:  []ir.Param{{Name: "self", Type: classC}},
			Results: []types.TypeID{intT},
		}
		self := body.NewLocal("self", classC)
		next := body.NewLocal("next", classC)
		out := body.NewLocal("out", intT)
		instrs := []ir.Instr{
			{Kind: ir.InstrAttrGet, AttrGet: ir.AttrGetInstr{
				Dst: next, Object: ir.UseOf(self, classC), Attr: "next",
			}},
		}
		if call {
			instrs = append(instrs, ir.Instr{Kind: ir.InstrMethodCall, MethodCall: ir.MethodCallInstr{
				Dsts: []ir.LocalID{out}, Object: ir.UseOf(next, classC), Method: "m",
			}})
		} else {
			instrs = append(instrs, ir.Instr{Kind: ir.InstrConst, Const: ir.ConstInstr{
				Dst: out, Value: ir.IntConst(0, intT),
			}})
		}
		body.Blocks = []ir.Block{{
			Instrs: instrs,
			Term: ir.Terminator{
				Kind:   ir.TermReturn,
				Return: ir.ReturnTerm{Values: []ir.Operand{ir.UseOf(out, intT)}},
			},
		}}
		if _, err := p.AddFunc(body); err != nil {
			panic(err)
		}

		g := og.NewGraph()
		if err := g.AddClass(&og.Class{
			Name:    "C",
			Attrs:   []og.AttrDecl{{Name: "next", Type: classC}},
			Methods: []og.MethodDecl{{Name: "m", Func: "m_body"}},
		}); err != nil {
			panic(err)
		}
		root, err := g.NewInstance("C")
		if err != nil {
			panic(err)
		}
		root.SetSlot("next", og.NullInstanceValue())
		return &og.Module{Graph: g, Program: p}
	}

	p, _ := runModule(t, build(false))
	if err := testkit.CheckFlatProgram(p); err != nil {
		t.Fatalf("flat program check: %v", err)
	}

	err := runModuleErr(t, build(true))
	var ure *UnresolvedReceiverError
	if !errors.As(err, &ure) {
		t.Fatalf("error %v, want UnresolvedReceiverError", err)
	}
	if !strings.Contains(ure.Detail, "unknown receiver") {
		t.Fatalf("detail %q does not mention the unknown receiver", ure.Detail)
	}
}

func TestRun_EmitsDiagnostics(t *testing.T) {
	_, bag := runModule(t, testkit.MustCounterModule())
	if bag.Len() == 0 {
		t.Fatalf("no diagnostics emitted")
	}
	if bag.HasErrors() {
		t.Fatalf("unexpected error diagnostics: %v", bag.Items())
	}
}
