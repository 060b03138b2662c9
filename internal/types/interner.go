package types

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for primitive types.
type Builtins struct {
	Invalid TypeID
	None    TypeID
	Bool    TypeID
	Int     TypeID
	Float   TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
type Interner struct {
	types    []Type
	index    map[string]TypeID
	builtins Builtins
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index: make(map[string]TypeID, 16),
	}
	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	in.builtins.None = in.Intern(Type{Kind: KindNone})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool})
	in.builtins.Int = in.Intern(Type{Kind: KindInt})
	in.builtins.Float = in.Intern(Type{Kind: KindFloat})
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey(t)
	if id, ok := in.index[key]; ok {
		return id
	}
	return in.internRaw(t)
}

// internRaw adds the descriptor to the storage without consulting the map.
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[typeKey(t)] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// String renders a TypeID for printing and error context.
func (in *Interner) String(id TypeID) string {
	tt, ok := in.Lookup(id)
	if !ok {
		return "<invalid>"
	}
	return tt.String()
}

// Erase returns the least refined boundary form of id: tensors lose rank and
// shape refinement and become value-semantic. Non-tensor types erase to
// themselves.
func (in *Interner) Erase(id TypeID) TypeID {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindTensor {
		return id
	}
	return in.Intern(MakeUnrankedTensor(tt.Elem, false))
}

// WithAliasable returns id with the tensor aliasable flag set to aliasable.
func (in *Interner) WithAliasable(id TypeID, aliasable bool) TypeID {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindTensor || tt.Aliasable == aliasable {
		return id
	}
	tt.Aliasable = aliasable
	return in.Intern(tt)
}

// Refines reports whether a value of type from may be used where bound is
// declared, ignoring aliasability. An unranked bound accepts every tensor of
// the same element kind; a ranked bound requires matching rank and extents
// wherever the bound's extent is concrete.
func (in *Interner) Refines(from, bound TypeID) bool {
	ft, ok := in.Lookup(from)
	if !ok {
		return false
	}
	bt, ok := in.Lookup(bound)
	if !ok {
		return false
	}
	if ft.Kind != bt.Kind {
		return false
	}
	if ft.Kind != KindTensor {
		if ft.Kind == KindClass {
			return ft.Class == bt.Class
		}
		return true
	}
	if ft.Elem != bt.Elem {
		return false
	}
	if bt.Rank < 0 {
		return true
	}
	if ft.Rank != bt.Rank {
		return false
	}
	for i := range bt.Dims {
		if bt.Dims[i] == DynamicDim {
			continue
		}
		if ft.Dims[i] != bt.Dims[i] {
			return false
		}
	}
	return true
}

// IsTensor reports whether id names a tensor type.
func (in *Interner) IsTensor(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == KindTensor
}

// IsAliasable reports whether id names an aliasable tensor type.
func (in *Interner) IsAliasable(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == KindTensor && tt.Aliasable
}

// IsClass reports whether id names a module-class reference type.
func (in *Interner) IsClass(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == KindClass
}

// Table returns a copy of the interned descriptors in id order, suitable
// for serialization. NewInternerFromTable reverses it.
func (in *Interner) Table() []Type {
	out := make([]Type, len(in.types))
	copy(out, in.types)
	return out
}

// NewInternerFromTable rebuilds an interner from a serialized Table. Every
// TypeID embedded alongside the table stays valid because descriptors are
// re-interned in the original order.
func NewInternerFromTable(table []Type) (*Interner, error) {
	in := NewInterner()
	for i, t := range table {
		id := TypeID(i)
		if int(id) < len(in.types) {
			if typeKey(in.types[id]) != typeKey(t) {
				return nil, fmt.Errorf("types: table entry %d does not match builtin %s", i, in.types[id])
			}
			continue
		}
		got := in.internRaw(t)
		if got != id {
			return nil, fmt.Errorf("types: table entry %d re-interned as %d", i, got)
		}
	}
	return in, nil
}

// typeKey builds a canonical string key for structural interning. Dims force
// a variable-length component, so a string key replaces a fixed struct key.
func typeKey(t Type) string {
	var sb strings.Builder
	sb.WriteByte(byte('0' + t.Kind))
	switch t.Kind {
	case KindClass:
		sb.WriteString(t.Class)
	case KindTensor:
		if t.Aliasable {
			sb.WriteByte('a')
		} else {
			sb.WriteByte('v')
		}
		sb.WriteString(strconv.FormatInt(int64(t.Elem), 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(int64(t.Rank), 10))
		for _, d := range t.Dims {
			sb.WriteByte('x')
			sb.WriteString(strconv.FormatInt(d, 10))
		}
	}
	return sb.String()
}
