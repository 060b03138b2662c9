package testkit

import (
	"fmt"

	"slab/internal/ir"
	"slab/internal/types"
)

// CheckFlatProgram verifies a globalized program: structurally valid, no
// object-graph instruction, no class-typed cell, local, parameter or
// result anywhere.
func CheckFlatProgram(p *ir.Program) error {
	if err := ir.Validate(p, ir.ValidateOptions{}); err != nil {
		return fmt.Errorf("invalid program: %w", err)
	}
	for _, c := range p.Cells {
		if p.Types.IsClass(c.Type) {
			return fmt.Errorf("cell %s has class type", c.Name)
		}
	}
	for _, f := range p.Funcs {
		for _, prm := range f.Params {
			if p.Types.IsClass(prm.Type) {
				return fmt.Errorf("%s: class-typed parameter %s", f.Name, prm.Name)
			}
		}
		for i, r := range f.Results {
			if p.Types.IsClass(r) {
				return fmt.Errorf("%s: class-typed result %d", f.Name, i)
			}
		}
		for i, l := range f.Locals {
			if p.Types.IsClass(l.Type) {
				return fmt.Errorf("%s: class-typed local %%%d", f.Name, i)
			}
		}
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Instrs {
				if f.Blocks[bi].Instrs[ii].IsObjectInstr() {
					return fmt.Errorf("%s: object-graph instruction in bb%d", f.Name, bi)
				}
			}
		}
	}
	return nil
}

// CheckBoundarySignatures verifies that every exported function carries the
// erased boundary form: tensor parameters and results are unranked and
// value-semantic.
func CheckBoundarySignatures(p *ir.Program) error {
	for _, f := range p.Funcs {
		if !f.Exported() {
			continue
		}
		for _, prm := range f.Params {
			if err := checkErased(p, prm.Type); err != nil {
				return fmt.Errorf("%s: parameter %s: %w", f.ExportedName, prm.Name, err)
			}
		}
		for i, r := range f.Results {
			if err := checkErased(p, r); err != nil {
				return fmt.Errorf("%s: result %d: %w", f.ExportedName, i, err)
			}
		}
	}
	return nil
}

func checkErased(p *ir.Program, id types.TypeID) error {
	tt, ok := p.Types.Lookup(id)
	if !ok {
		return fmt.Errorf("invalid type")
	}
	if !tt.IsTensor() {
		return nil
	}
	if tt.Aliasable {
		return fmt.Errorf("aliasable tensor %s crosses the boundary", tt)
	}
	if tt.IsRanked() {
		return fmt.Errorf("ranked tensor %s crosses the boundary", tt)
	}
	return nil
}
