// Package testkit holds module fixtures and whole-program invariant checks
// shared by pass and runtime tests.
package testkit

import (
	"fmt"

	"slab/internal/ir"
	"slab/internal/og"
	"slab/internal/types"
)

// CounterModule builds the canonical single-instance module: class C with a
// public int attribute "count" initialized to 3 and a public method "bump"
// that increments it and returns the new value.
func CounterModule() (*og.Module, error) {
	in := types.NewInterner()
	intT := in.Builtins().Int
	classC := in.Intern(types.MakeClass("C"))

	p := ir.NewProgram(in)
	bump := &ir.Func{
		Name:    "c_bump",
		Params:  []ir.Param{{Name: "self", Type: classC}},
		Results: []types.TypeID{intT},
	}
	self := bump.NewLocal("self", classC)
	loaded := bump.NewLocal("loaded", intT)
	bumped := bump.NewLocal("bumped", intT)
	bump.Blocks = []ir.Block{{
		Instrs: []ir.Instr{
			{Kind: ir.InstrAttrGet, AttrGet: ir.AttrGetInstr{
				Dst: loaded, Object: ir.UseOf(self, classC), Attr: "count",
			}},
			{Kind: ir.InstrPrimOp, PrimOp: ir.PrimOpInstr{
				Dst: bumped, Op: ir.OpAdd,
				Args: []ir.Operand{
					ir.UseOf(loaded, intT),
					ir.ConstOf(ir.IntConst(1, intT)),
				},
			}},
			{Kind: ir.InstrAttrSet, AttrSet: ir.AttrSetInstr{
				Object: ir.UseOf(self, classC), Attr: "count", Src: ir.UseOf(bumped, intT),
			}},
		},
		Term: ir.Terminator{
			Kind:   ir.TermReturn,
			Return: ir.ReturnTerm{Values: []ir.Operand{ir.UseOf(bumped, intT)}},
		},
	}}
	if _, err := p.AddFunc(bump); err != nil {
		return nil, err
	}

	g := og.NewGraph()
	if err := g.AddClass(&og.Class{
		Name:    "C",
		Attrs:   []og.AttrDecl{{Name: "count", Type: intT}},
		Methods: []og.MethodDecl{{Name: "bump", Func: "c_bump"}},
	}); err != nil {
		return nil, err
	}
	root, err := g.NewInstance("C")
	if err != nil {
		return nil, err
	}
	root.SetSlot("count", og.IntValue(3))

	return &og.Module{Graph: g, Program: p}, nil
}

// SharedPairModule builds a module whose root holds the same child instance
// under two attributes. Globalization must key by identity, so the child's
// state and method monomorphize exactly once.
func SharedPairModule() (*og.Module, error) {
	in := types.NewInterner()
	intT := in.Builtins().Int
	classRoot := in.Intern(types.MakeClass("Root"))
	classChild := in.Intern(types.MakeClass("Child"))

	p := ir.NewProgram(in)

	get := &ir.Func{
		Name:    "child_get",
		Params:  []ir.Param{{Name: "self", Type: classChild}},
		Results: []types.TypeID{intT},
	}
	getSelf := get.NewLocal("self", classChild)
	getVal := get.NewLocal("val", intT)
	get.Blocks = []ir.Block{{
		Instrs: []ir.Instr{
			{Kind: ir.InstrAttrGet, AttrGet: ir.AttrGetInstr{
				Dst: getVal, Object: ir.UseOf(getSelf, classChild), Attr: "val",
			}},
		},
		Term: ir.Terminator{
			Kind:   ir.TermReturn,
			Return: ir.ReturnTerm{Values: []ir.Operand{ir.UseOf(getVal, intT)}},
		},
	}}
	if _, err := p.AddFunc(get); err != nil {
		return nil, err
	}

	total := &ir.Func{
		Name:    "root_total",
		Params:  []ir.Param{{Name: "self", Type: classRoot}},
		Results: []types.TypeID{intT},
	}
	totalSelf := total.NewLocal("self", classRoot)
	aRef := total.NewLocal("a", classChild)
	aVal := total.NewLocal("a_val", intT)
	bRef := total.NewLocal("b", classChild)
	bVal := total.NewLocal("b_val", intT)
	sum := total.NewLocal("sum", intT)
	total.Blocks = []ir.Block{{
		Instrs: []ir.Instr{
			{Kind: ir.InstrAttrGet, AttrGet: ir.AttrGetInstr{
				Dst: aRef, Object: ir.UseOf(totalSelf, classRoot), Attr: "a",
			}},
			{Kind: ir.InstrMethodCall, MethodCall: ir.MethodCallInstr{
				Dsts: []ir.LocalID{aVal}, Object: ir.UseOf(aRef, classChild), Method: "get",
			}},
			{Kind: ir.InstrAttrGet, AttrGet: ir.AttrGetInstr{
				Dst: bRef, Object: ir.UseOf(totalSelf, classRoot), Attr: "b",
			}},
			{Kind: ir.InstrMethodCall, MethodCall: ir.MethodCallInstr{
				Dsts: []ir.LocalID{bVal}, Object: ir.UseOf(bRef, classChild), Method: "get",
			}},
			{Kind: ir.InstrPrimOp, PrimOp: ir.PrimOpInstr{
				Dst: sum, Op: ir.OpAdd,
				Args: []ir.Operand{ir.UseOf(aVal, intT), ir.UseOf(bVal, intT)},
			}},
		},
		Term: ir.Terminator{
			Kind:   ir.TermReturn,
			Return: ir.ReturnTerm{Values: []ir.Operand{ir.UseOf(sum, intT)}},
		},
	}}
	if _, err := p.AddFunc(total); err != nil {
		return nil, err
	}

	g := og.NewGraph()
	if err := g.AddClass(&og.Class{
		Name:    "Root",
		Attrs:   []og.AttrDecl{{Name: "a", Type: classChild}, {Name: "b", Type: classChild}},
		Methods: []og.MethodDecl{{Name: "total", Func: "root_total"}},
	}); err != nil {
		return nil, err
	}
	if err := g.AddClass(&og.Class{
		Name:    "Child",
		Attrs:   []og.AttrDecl{{Name: "val", Type: intT, Private: true}},
		Methods: []og.MethodDecl{{Name: "get", Func: "child_get", Private: true}},
	}); err != nil {
		return nil, err
	}
	root, err := g.NewInstance("Root")
	if err != nil {
		return nil, err
	}
	child, err := g.NewInstance("Child")
	if err != nil {
		return nil, err
	}
	child.SetSlot("val", og.IntValue(7))
	root.SetSlot("a", og.InstanceValue(child.ID))
	root.SetSlot("b", og.InstanceValue(child.ID))

	return &og.Module{Graph: g, Program: p}, nil
}

// MustCounterModule is CounterModule for tests that treat fixture failure
// as a fatal setup bug.
func MustCounterModule() *og.Module {
	m, err := CounterModule()
	if err != nil {
		panic(fmt.Errorf("testkit: counter fixture: %w", err))
	}
	return m
}

// MustSharedPairModule is SharedPairModule with fixture failure fatal.
func MustSharedPairModule() *og.Module {
	m, err := SharedPairModule()
	if err != nil {
		panic(fmt.Errorf("testkit: shared pair fixture: %w", err))
	}
	return m
}
