// Package og models the stateful object graph that globalization consumes:
// class descriptors, a module-instance arena, and slot values. Instance
// identity is arena id equality, never structural equality.
package og

import (
	"fmt"

	"slab/internal/ir"
	"slab/internal/types"
)

// AttrDecl declares one attribute of a class.
type AttrDecl struct {
	Name    string
	Type    types.TypeID
	Private bool
}

// MethodDecl declares one method of a class. Func names the target function
// symbol in the module's program; the function's first parameter is the
// receiver.
type MethodDecl struct {
	Name    string
	Func    string
	Private bool
}

// Class is the immutable schema shared by all instances of one class name.
// Exactly one descriptor exists per name; instances refer to it by name.
type Class struct {
	Name    string
	Attrs   []AttrDecl
	Methods []MethodDecl
}

// Attr returns the declaration for name, or nil.
func (c *Class) Attr(name string) *AttrDecl {
	for i := range c.Attrs {
		if c.Attrs[i].Name == name {
			return &c.Attrs[i]
		}
	}
	return nil
}

// Method returns the declaration for name, or nil.
func (c *Class) Method(name string) *MethodDecl {
	for i := range c.Methods {
		if c.Methods[i].Name == name {
			return &c.Methods[i]
		}
	}
	return nil
}

// InstanceID identifies a module instance in the graph arena.
type InstanceID uint32

// NoInstanceID is the invalid instance sentinel. Slot values of kind
// VInstance holding it represent a null module reference.
const NoInstanceID InstanceID = ^InstanceID(0)

// ValueKind discriminates slot values.
type ValueKind uint8

const (
	// VNone is the unit slot value.
	VNone ValueKind = iota
	// VBool is a boolean slot value.
	VBool
	// VInt is an integer slot value.
	VInt
	// VFloat is a floating-point slot value.
	VFloat
	// VTensor is a dense tensor literal slot value.
	VTensor
	// VInstance is a reference to another module instance (or null).
	VInstance
)

// Value is a slot value: a scalar, a tensor literal, or an instance
// reference.
type Value struct {
	Kind ValueKind

	Bool     bool
	Int      int64
	Float    float64
	Tensor   *ir.TensorLit
	Instance InstanceID
}

// NoneValue builds the unit slot value.
func NoneValue() Value { return Value{Kind: VNone} }

// BoolValue builds a boolean slot value.
func BoolValue(v bool) Value { return Value{Kind: VBool, Bool: v} }

// IntValue builds an integer slot value.
func IntValue(v int64) Value { return Value{Kind: VInt, Int: v} }

// FloatValue builds a floating-point slot value.
func FloatValue(v float64) Value { return Value{Kind: VFloat, Float: v} }

// TensorValue builds a tensor literal slot value.
func TensorValue(t *ir.TensorLit) Value { return Value{Kind: VTensor, Tensor: t} }

// InstanceValue builds an instance reference slot value.
func InstanceValue(id InstanceID) Value { return Value{Kind: VInstance, Instance: id} }

// NullInstanceValue builds a null module reference slot value.
func NullInstanceValue() Value { return Value{Kind: VInstance, Instance: NoInstanceID} }

// Slot pairs an attribute name with its current value. Slots are kept in
// class attribute order so traversal is deterministic.
type Slot struct {
	Name  string
	Value Value
}

// Instance is one node of the object graph.
type Instance struct {
	ID    InstanceID
	Class string
	Slots []Slot
}

// Slot returns the slot for name, or nil.
func (i *Instance) Slot(name string) *Slot {
	for s := range i.Slots {
		if i.Slots[s].Name == name {
			return &i.Slots[s]
		}
	}
	return nil
}

// SetSlot sets or appends the slot for name.
func (i *Instance) SetSlot(name string, v Value) {
	if s := i.Slot(name); s != nil {
		s.Value = v
		return
	}
	i.Slots = append(i.Slots, Slot{Name: name, Value: v})
}

// Graph is the arena of classes and instances loaded from literal data.
type Graph struct {
	Classes   map[string]*Class
	Instances []*Instance
}

// NewGraph constructs an empty graph.
func NewGraph() *Graph {
	return &Graph{Classes: make(map[string]*Class)}
}

// AddClass registers a class descriptor. Duplicate names are rejected: the
// descriptor is referenced by name and must never be duplicated.
func (g *Graph) AddClass(c *Class) error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("og: class without a name")
	}
	if _, ok := g.Classes[c.Name]; ok {
		return fmt.Errorf("og: duplicate class %q", c.Name)
	}
	g.Classes[c.Name] = c
	return nil
}

// NewInstance allocates an instance of className in the arena.
func (g *Graph) NewInstance(className string) (*Instance, error) {
	if _, ok := g.Classes[className]; !ok {
		return nil, fmt.Errorf("og: unknown class %q", className)
	}
	inst := &Instance{ID: InstanceID(len(g.Instances)), Class: className}
	g.Instances = append(g.Instances, inst)
	return inst, nil
}

// Instance returns the instance for id, or nil.
func (g *Graph) Instance(id InstanceID) *Instance {
	if id == NoInstanceID || int(id) >= len(g.Instances) {
		return nil
	}
	return g.Instances[id]
}

// ClassOf returns the descriptor of the instance's class, or nil.
func (g *Graph) ClassOf(inst *Instance) *Class {
	if inst == nil {
		return nil
	}
	return g.Classes[inst.Class]
}

// Module is a loaded compilation unit before globalization: the object
// graph plus the program holding method and free-function bodies.
type Module struct {
	Graph   *Graph
	Program *ir.Program
}
