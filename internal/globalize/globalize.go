// Package globalize flattens the object graph into global storage cells and
// per-receiver monomorphized functions. The output program carries no module
// instance, class descriptor, or slot construct; the residual check aborts
// compilation if one survives.
package globalize

import (
	"fmt"

	"slab/internal/diag"
	"slab/internal/ident"
	"slab/internal/ir"
	"slab/internal/og"
	"slab/internal/types"
)

// UnresolvedReceiverError reports a method call or attribute access whose
// receiver instance cannot be determined statically.
type UnresolvedReceiverError struct {
	Func   string
	Detail string
}

func (e *UnresolvedReceiverError) Error() string {
	return fmt.Sprintf("unresolved receiver in %s: %s", e.Func, e.Detail)
}

// ResidualObjectGraphError reports an object-graph construct surviving
// globalization. It indicates malformed input or a bug in an earlier stage.
type ResidualObjectGraphError struct {
	Subject string
	Detail  string
}

func (e *ResidualObjectGraphError) Error() string {
	return fmt.Sprintf("residual object-graph construct in %s: %s", e.Subject, e.Detail)
}

// methodKey keys monomorphization by receiver identity, never by path.
type methodKey struct {
	Instance og.InstanceID
	Method   string
}

type globalizer struct {
	mod    *og.Module
	naming *ident.Naming
	bag    *diag.Bag

	out *ir.Program

	cellBySlot map[ident.SlotKey]ir.CellID
	funcByKey  map[methodKey]ir.FuncID
	freeFuncs  map[ir.FuncID]ir.FuncID // source id -> output id
	boundFuncs map[ir.FuncID]struct{}  // source funcs referenced as methods
}

// Run produces a flat program from the module. The input is not mutated.
func Run(mod *og.Module, naming *ident.Naming, bag *diag.Bag) (*ir.Program, error) {
	if mod == nil || mod.Graph == nil || mod.Program == nil {
		return nil, fmt.Errorf("globalize: nil module")
	}
	g := &globalizer{
		mod:        mod,
		naming:     naming,
		bag:        bag,
		out:        ir.NewProgram(mod.Program.Types),
		cellBySlot: make(map[ident.SlotKey]ir.CellID),
		funcByKey:  make(map[methodKey]ir.FuncID),
		freeFuncs:  make(map[ir.FuncID]ir.FuncID),
		boundFuncs: make(map[ir.FuncID]struct{}),
	}
	if err := g.emitCells(); err != nil {
		return nil, err
	}
	g.indexBoundFuncs()
	if err := g.copyFreeFuncs(); err != nil {
		return nil, err
	}
	if err := g.emitMethods(); err != nil {
		return nil, err
	}
	if err := checkResidual(g.out); err != nil {
		return nil, err
	}
	return g.out, nil
}

// emitCells creates one cell per reachable (instance, attribute) pair in
// tracker order. Slots holding instance references become no cell; the
// nested instance's own attributes do.
func (g *globalizer) emitCells() error {
	for _, id := range g.naming.Order {
		inst := g.mod.Graph.Instance(id)
		cls := g.mod.Graph.ClassOf(inst)
		if cls == nil {
			return fmt.Errorf("globalize: instance %d has unknown class %q", id, inst.Class)
		}
		for _, attr := range cls.Attrs {
			if g.out.Types.IsClass(attr.Type) {
				continue
			}
			slot := inst.Slot(attr.Name)
			if slot == nil {
				return fmt.Errorf("globalize: instance %s lacks slot %q", g.naming.InstanceName[id], attr.Name)
			}
			init, err := constFromSlotValue(g.out, slot.Value, attr.Type)
			if err != nil {
				return fmt.Errorf("globalize: slot %s.%s: %w", g.naming.InstanceName[id], attr.Name, err)
			}
			key := ident.SlotKey{Instance: id, Attr: attr.Name}
			cell := &ir.Cell{
				Name:     g.naming.CellName[key],
				Type:     attr.Type,
				Init:     init,
				Exported: !attr.Private,
			}
			cellID, err := g.out.AddCell(cell)
			if err != nil {
				return err
			}
			g.cellBySlot[key] = cellID
			g.bag.Infof(diag.GlobEmittedCell, cell.Name, "emitted storage cell")
		}
	}
	return nil
}

func (g *globalizer) indexBoundFuncs() {
	for _, cls := range g.mod.Graph.Classes {
		for _, m := range cls.Methods {
			if fid, ok := g.mod.Program.FuncByName[m.Func]; ok {
				g.boundFuncs[fid] = struct{}{}
			}
		}
	}
}

// copyFreeFuncs carries functions not bound as any class method into the
// output unchanged except for callee renumbering.
func (g *globalizer) copyFreeFuncs() error {
	for _, f := range g.mod.Program.Funcs {
		if f == nil {
			continue
		}
		if _, bound := g.boundFuncs[f.ID]; bound {
			continue
		}
		clone := ir.CloneFunc(f)
		newID, err := g.out.AddFunc(clone)
		if err != nil {
			return err
		}
		g.freeFuncs[f.ID] = newID
	}
	// Renumber calls between free functions; a free function body with any
	// object-graph construct has no statically known receiver.
	for oldID, newID := range g.freeFuncs {
		src := g.mod.Program.Func(oldID)
		dst := g.out.Func(newID)
		if err := g.rewireFreeCalls(dst, src.Name); err != nil {
			return err
		}
	}
	return nil
}

func (g *globalizer) rewireFreeCalls(f *ir.Func, name string) error {
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			in := &f.Blocks[bi].Instrs[ii]
			if in.IsObjectInstr() {
				return &UnresolvedReceiverError{
					Func:   name,
					Detail: "object-graph operation outside a method body",
				}
			}
			if in.Kind != ir.InstrCall {
				continue
			}
			mapped, ok := g.freeFuncs[in.Call.Callee.Func]
			if !ok {
				return &UnresolvedReceiverError{
					Func:   name,
					Detail: fmt.Sprintf("direct call of method body %q", in.Call.Callee.Name),
				}
			}
			in.Call.Callee.Func = mapped
		}
	}
	return nil
}

// emitMethods monomorphizes every method once per distinct receiver
// instance, in tracker order.
func (g *globalizer) emitMethods() error {
	for _, id := range g.naming.Order {
		inst := g.mod.Graph.Instance(id)
		cls := g.mod.Graph.ClassOf(inst)
		for _, m := range cls.Methods {
			if _, err := g.ensureMethod(id, m.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureMethod returns the monomorphized function for (instance, method),
// emitting it on first use. Registration happens before the body rewrite so
// recursive methods resolve to their own instantiation.
func (g *globalizer) ensureMethod(instID og.InstanceID, method string) (ir.FuncID, error) {
	key := methodKey{Instance: instID, Method: method}
	if fid, ok := g.funcByKey[key]; ok {
		return fid, nil
	}

	inst := g.mod.Graph.Instance(instID)
	cls := g.mod.Graph.ClassOf(inst)
	if cls == nil {
		return ir.NoFuncID, fmt.Errorf("globalize: instance %d has unknown class %q", instID, inst.Class)
	}
	decl := cls.Method(method)
	if decl == nil {
		return ir.NoFuncID, fmt.Errorf("globalize: class %s has no method %q", cls.Name, method)
	}
	srcID, ok := g.mod.Program.FuncByName[decl.Func]
	if !ok {
		return ir.NoFuncID, fmt.Errorf("globalize: method %s.%s targets missing function %q", cls.Name, method, decl.Func)
	}
	src := g.mod.Program.Func(srcID)
	if len(src.Params) == 0 || !g.out.Types.IsClass(src.Params[0].Type) {
		return ir.NoFuncID, fmt.Errorf("globalize: method body %q lacks a receiver parameter", decl.Func)
	}

	instName := g.naming.InstanceName[instID]
	clone := ir.CloneFunc(src)
	clone.Name = instName + "." + method
	if instID == g.naming.Root && !decl.Private {
		clone.ExportedName = method
	}

	fid, err := g.out.AddFunc(clone)
	if err != nil {
		return ir.NoFuncID, err
	}
	g.funcByKey[key] = fid

	if err := g.rewriteBody(clone, instID); err != nil {
		return ir.NoFuncID, err
	}
	g.bag.Infof(diag.GlobEmittedFunc, clone.Name, "monomorphized for receiver %s", instName)
	return fid, nil
}

// constFromSlotValue lowers a slot literal into a cell initializer.
func constFromSlotValue(p *ir.Program, v og.Value, declared types.TypeID) (ir.Const, error) {
	b := p.Types.Builtins()
	switch v.Kind {
	case og.VNone:
		return ir.NoneConst(b.None), nil
	case og.VBool:
		return ir.BoolConst(v.Bool, b.Bool), nil
	case og.VInt:
		return ir.IntConst(v.Int, b.Int), nil
	case og.VFloat:
		return ir.FloatConst(v.Float, b.Float), nil
	case og.VTensor:
		if v.Tensor == nil {
			return ir.Const{}, fmt.Errorf("nil tensor literal")
		}
		return ir.TensorConst(v.Tensor, declared), nil
	case og.VInstance:
		return ir.Const{}, fmt.Errorf("instance reference cannot initialize a cell")
	}
	return ir.Const{}, fmt.Errorf("unsupported slot value kind %d", v.Kind)
}
