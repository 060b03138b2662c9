package ir

import (
	"errors"
	"fmt"
)

// ValidateOptions configures program validation.
type ValidateOptions struct {
	// AllowObjectConstructs permits object-graph instructions and
	// class-typed locals. Set before globalization, clear after.
	AllowObjectConstructs bool
}

// Validate checks program invariants. Returns a joined error when any
// invariant is violated.
func Validate(p *Program, opt ValidateOptions) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, c := range p.Cells {
		if c == nil {
			continue
		}
		if err := validateCell(p, c, opt); err != nil {
			errs = append(errs, fmt.Errorf("cell %s: %w", c.Name, err))
		}
	}
	for _, f := range p.Funcs {
		if f == nil {
			continue
		}
		if err := validateFunc(p, f, opt); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

func validateCell(p *Program, c *Cell, opt ValidateOptions) error {
	var errs []error
	if c.Type == 0 {
		errs = append(errs, fmt.Errorf("missing type bound"))
	}
	if !opt.AllowObjectConstructs && p.Types.IsClass(c.Type) {
		errs = append(errs, fmt.Errorf("class-typed cell in flat program"))
	}
	if c.Init.Kind == ConstCellRef {
		if p.Cell(c.Init.Cell) == nil {
			errs = append(errs, fmt.Errorf("initializer refers to missing cell %d", c.Init.Cell))
		}
	} else if c.Init.Type != 0 && !p.Types.Refines(c.Init.Type, c.Type) {
		errs = append(errs, fmt.Errorf("initializer type %s does not satisfy bound %s",
			p.Types.String(c.Init.Type), p.Types.String(c.Type)))
	}
	return errors.Join(errs...)
}

func validateFunc(p *Program, f *Func, opt ValidateOptions) error {
	var errs []error

	if len(f.Params) > len(f.Locals) {
		errs = append(errs, fmt.Errorf("%d params but only %d locals", len(f.Params), len(f.Locals)))
	}
	if int(f.Entry) >= len(f.Blocks) {
		errs = append(errs, fmt.Errorf("entry bb%d does not exist", f.Entry))
	}

	blockExists := func(id BlockID) bool { return int(id) < len(f.Blocks) }
	localExists := func(id LocalID) bool { return int(id) < len(f.Locals) }

	checkOperand := func(where string, o Operand) {
		if o.Kind == OperandUse && !localExists(o.Local) {
			errs = append(errs, fmt.Errorf("%s: local %%%d out of range", where, o.Local))
		}
		if !opt.AllowObjectConstructs && p.Types.IsClass(o.Type) {
			errs = append(errs, fmt.Errorf("%s: class-typed operand in flat program", where))
		}
	}

	for bi := range f.Blocks {
		bb := &f.Blocks[bi]
		for ii := range bb.Instrs {
			in := &bb.Instrs[ii]
			where := fmt.Sprintf("bb%d[%d]", bi, ii)
			if !opt.AllowObjectConstructs && in.IsObjectInstr() {
				errs = append(errs, fmt.Errorf("%s: residual object-graph instruction", where))
			}
			for _, o := range in.Operands() {
				checkOperand(where, o)
			}
			for _, d := range in.Dsts() {
				if !localExists(d) {
					errs = append(errs, fmt.Errorf("%s: dst local %%%d out of range", where, d))
				}
			}
			switch in.Kind {
			case InstrCellLoad:
				if p.Cell(in.CellLoad.Cell) == nil {
					errs = append(errs, fmt.Errorf("%s: load of missing cell %d", where, in.CellLoad.Cell))
				}
			case InstrCellStore:
				if p.Cell(in.CellStore.Cell) == nil {
					errs = append(errs, fmt.Errorf("%s: store to missing cell %d", where, in.CellStore.Cell))
				}
			case InstrCall:
				callee := p.Func(in.Call.Callee.Func)
				if callee == nil {
					errs = append(errs, fmt.Errorf("%s: call of missing function %q", where, in.Call.Callee.Name))
					break
				}
				if len(in.Call.Args) != len(callee.Params) {
					errs = append(errs, fmt.Errorf("%s: call of %s with %d args, want %d",
						where, callee.Name, len(in.Call.Args), len(callee.Params)))
				}
				if len(in.Call.Dsts) != len(callee.Results) {
					errs = append(errs, fmt.Errorf("%s: call of %s with %d dsts, want %d",
						where, callee.Name, len(in.Call.Dsts), len(callee.Results)))
				}
			case InstrOverwrite:
				if !localExists(in.Overwrite.Target) {
					errs = append(errs, fmt.Errorf("%s: overwrite target %%%d out of range", where, in.Overwrite.Target))
				} else if !p.Types.IsAliasable(f.Locals[in.Overwrite.Target].Type) {
					errs = append(errs, fmt.Errorf("%s: overwrite of non-aliasable target", where))
				}
			}
		}

		switch bb.Term.Kind {
		case TermNone:
			errs = append(errs, fmt.Errorf("bb%d: unterminated block", bi))
		case TermReturn:
			if len(bb.Term.Return.Values) != len(f.Results) {
				errs = append(errs, fmt.Errorf("bb%d: return of %d values, want %d",
					bi, len(bb.Term.Return.Values), len(f.Results)))
			}
			for _, o := range bb.Term.Return.Values {
				checkOperand(fmt.Sprintf("bb%d return", bi), o)
			}
		case TermGoto:
			if !blockExists(bb.Term.Goto.Target) {
				errs = append(errs, fmt.Errorf("bb%d: goto target bb%d does not exist", bi, bb.Term.Goto.Target))
			}
		case TermIf:
			checkOperand(fmt.Sprintf("bb%d if", bi), bb.Term.If.Cond)
			if !blockExists(bb.Term.If.Then) {
				errs = append(errs, fmt.Errorf("bb%d: then target bb%d does not exist", bi, bb.Term.If.Then))
			}
			if !blockExists(bb.Term.If.Else) {
				errs = append(errs, fmt.Errorf("bb%d: else target bb%d does not exist", bi, bb.Term.If.Else))
			}
		}
	}

	if !opt.AllowObjectConstructs {
		for li, l := range f.Locals {
			if p.Types.IsClass(l.Type) {
				errs = append(errs, fmt.Errorf("local %%%d: class-typed local in flat program", li))
			}
		}
		for pi, prm := range f.Params {
			if p.Types.IsClass(prm.Type) {
				errs = append(errs, fmt.Errorf("param %%%d: class-typed param in flat program", pi))
			}
		}
		for ri, r := range f.Results {
			if p.Types.IsClass(r) {
				errs = append(errs, fmt.Errorf("result %d: class-typed result in flat program", ri))
			}
		}
	}

	return errors.Join(errs...)
}
