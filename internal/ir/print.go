package ir

import (
	"fmt"
	"io"
	"strings"
)

// DumpProgram writes a deterministic human-readable rendering of the
// program: cells first, then functions, both in id order.
func DumpProgram(w io.Writer, p *Program) error {
	if w == nil || p == nil {
		return nil
	}
	for _, c := range p.Cells {
		if c == nil {
			continue
		}
		vis := "internal"
		if c.Exported {
			vis = "exported"
		}
		if _, err := fmt.Fprintf(w, "cell @%s : %s = %s (%s)\n", c.Name, p.Types.String(c.Type), c.Init, vis); err != nil {
			return err
		}
	}
	for _, f := range p.Funcs {
		if f == nil {
			continue
		}
		if err := dumpFunc(w, p, f); err != nil {
			return err
		}
	}
	return nil
}

// Dump renders the program into a string.
func Dump(p *Program) string {
	var sb strings.Builder
	_ = DumpProgram(&sb, p)
	return sb.String()
}

func dumpFunc(w io.Writer, p *Program, f *Func) error {
	var sig strings.Builder
	sig.WriteString("func ")
	sig.WriteString(f.Name)
	sig.WriteByte('(')
	for i, prm := range f.Params {
		if i > 0 {
			sig.WriteString(", ")
		}
		fmt.Fprintf(&sig, "%%%d: %s", i, p.Types.String(prm.Type))
	}
	sig.WriteString(") -> (")
	for i, r := range f.Results {
		if i > 0 {
			sig.WriteString(", ")
		}
		sig.WriteString(p.Types.String(r))
	}
	sig.WriteByte(')')
	if f.Exported() {
		fmt.Fprintf(&sig, " exported %q", f.ExportedName)
	}
	if _, err := fmt.Fprintf(w, "%s {\n", sig.String()); err != nil {
		return err
	}
	for bi := range f.Blocks {
		if _, err := fmt.Fprintf(w, "bb%d:\n", bi); err != nil {
			return err
		}
		for ii := range f.Blocks[bi].Instrs {
			in := &f.Blocks[bi].Instrs[ii]
			if in.Kind == InstrNop {
				continue
			}
			if _, err := fmt.Fprintf(w, "  %s\n", instrString(p, in)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "  %s\n", termString(&f.Blocks[bi].Term)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

func instrString(p *Program, in *Instr) string {
	switch in.Kind {
	case InstrConst:
		return fmt.Sprintf("%%%d = const %s", in.Const.Dst, in.Const.Value)
	case InstrCopy:
		return fmt.Sprintf("%%%d = copy %s", in.Copy.Dst, operandString(in.Copy.Src))
	case InstrCellLoad:
		return fmt.Sprintf("%%%d = cell.load @%s", in.CellLoad.Dst, cellName(p, in.CellLoad.Cell))
	case InstrCellStore:
		return fmt.Sprintf("cell.store @%s, %s", cellName(p, in.CellStore.Cell), operandString(in.CellStore.Src))
	case InstrCall:
		return fmt.Sprintf("%s = call @%s(%s)", dstList(in.Call.Dsts), in.Call.Callee.Name, operandList(in.Call.Args))
	case InstrPrimOp:
		return fmt.Sprintf("%%%d = %s %s", in.PrimOp.Dst, in.PrimOp.Op, operandList(in.PrimOp.Args))
	case InstrToValue:
		return fmt.Sprintf("%%%d = to_value %s", in.ToValue.Dst, operandString(in.ToValue.Src))
	case InstrToAlias:
		return fmt.Sprintf("%%%d = to_alias %s", in.ToAlias.Dst, operandString(in.ToAlias.Src))
	case InstrOverwrite:
		return fmt.Sprintf("overwrite %%%d, %s", in.Overwrite.Target, operandString(in.Overwrite.Src))
	case InstrBoundCast:
		return fmt.Sprintf("%%%d = bound.cast %s to %s", in.BoundCast.Dst, operandString(in.BoundCast.Src), p.Types.String(in.BoundCast.Type))
	case InstrAttrGet:
		return fmt.Sprintf("%%%d = attr.get %s, %q", in.AttrGet.Dst, operandString(in.AttrGet.Object), in.AttrGet.Attr)
	case InstrAttrSet:
		return fmt.Sprintf("attr.set %s, %q, %s", operandString(in.AttrSet.Object), in.AttrSet.Attr, operandString(in.AttrSet.Src))
	case InstrMethodCall:
		return fmt.Sprintf("%s = method.call %s, %q(%s)", dstList(in.MethodCall.Dsts), operandString(in.MethodCall.Object), in.MethodCall.Method, operandList(in.MethodCall.Args))
	}
	return "nop"
}

func termString(t *Terminator) string {
	switch t.Kind {
	case TermReturn:
		return "return " + operandList(t.Return.Values)
	case TermGoto:
		return fmt.Sprintf("goto bb%d", t.Goto.Target)
	case TermIf:
		return fmt.Sprintf("if %s then bb%d else bb%d", operandString(t.If.Cond), t.If.Then, t.If.Else)
	}
	return "<unterminated>"
}

func cellName(p *Program, id CellID) string {
	if c := p.Cell(id); c != nil {
		return c.Name
	}
	return fmt.Sprintf("cell#%d", id)
}

func operandString(o Operand) string {
	if o.Kind == OperandConst {
		return o.Const.String()
	}
	return fmt.Sprintf("%%%d", o.Local)
}

func operandList(ops []Operand) string {
	parts := make([]string, len(ops))
	for i := range ops {
		parts[i] = operandString(ops[i])
	}
	return strings.Join(parts, ", ")
}

func dstList(dsts []LocalID) string {
	if len(dsts) == 0 {
		return "_"
	}
	parts := make([]string, len(dsts))
	for i, d := range dsts {
		parts[i] = fmt.Sprintf("%%%d", d)
	}
	return strings.Join(parts, ", ")
}
