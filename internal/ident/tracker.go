// Package ident assigns canonical global names to every module instance
// reachable from the object graph's unique root. Naming is depth-first and
// path-based, stable across runs, and keyed by instance identity: an
// instance shared through two slot paths gets exactly one name.
package ident

import (
	"fmt"
	"strings"

	"slab/internal/og"
)

// SlotKey identifies one (instance, attribute) pair.
type SlotKey struct {
	Instance og.InstanceID
	Attr     string
}

// Naming is the total, deterministic naming of the reachable graph.
type Naming struct {
	Root og.InstanceID

	// Order lists reachable instances in depth-first preorder from the root.
	Order []og.InstanceID

	InstanceName map[og.InstanceID]string
	CellName     map[SlotKey]string
}

// CycleError reports a reference cycle among module instances. The
// globalization algorithm unrolls the graph and requires a DAG.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("object graph contains a cycle: %s", strings.Join(e.Path, " -> "))
}

// MultipleRootsError reports that the graph does not have exactly one
// instance free of incoming references.
type MultipleRootsError struct {
	Roots []string
}

func (e *MultipleRootsError) Error() string {
	if len(e.Roots) == 0 {
		return "object graph has no root instance"
	}
	return fmt.Sprintf("object graph has %d root instances: %s", len(e.Roots), strings.Join(e.Roots, ", "))
}

// Assign names every reachable instance and (instance, attribute) pair.
// Fails with MultipleRootsError unless exactly one instance has no incoming
// reference, and with CycleError when instance reachability is cyclic. A
// non-empty graph with no root at all is necessarily cyclic.
func Assign(g *og.Graph) (*Naming, error) {
	if g == nil || len(g.Instances) == 0 {
		return nil, &MultipleRootsError{}
	}

	root, err := findRoot(g)
	if err != nil {
		return nil, err
	}

	n := &Naming{
		Root:         root,
		InstanceName: make(map[og.InstanceID]string, len(g.Instances)),
		CellName:     make(map[SlotKey]string),
	}
	taken := make(map[string]struct{}, len(g.Instances))

	const (
		white = 0 // unvisited
		grey  = 1 // on the DFS stack
		black = 2 // finished
	)
	colors := make([]uint8, len(g.Instances))
	var path []string

	var visit func(id og.InstanceID, name string) error
	visit = func(id og.InstanceID, name string) error {
		inst := g.Instance(id)
		if inst == nil {
			return fmt.Errorf("ident: missing instance %d", id)
		}
		switch colors[id] {
		case grey:
			return &CycleError{Path: append(append([]string{}, path...), name)}
		case black:
			return nil
		}
		colors[id] = grey
		path = append(path, name)

		name = disambiguate(taken, name)
		n.InstanceName[id] = name
		n.Order = append(n.Order, id)

		cls := g.ClassOf(inst)
		if cls == nil {
			return fmt.Errorf("ident: instance %d has unknown class %q", id, inst.Class)
		}
		// Walk slots in class attribute order for reproducible output.
		for _, attr := range cls.Attrs {
			n.CellName[SlotKey{Instance: id, Attr: attr.Name}] = name + "." + attr.Name
			slot := inst.Slot(attr.Name)
			if slot == nil || slot.Value.Kind != og.VInstance {
				continue
			}
			child := slot.Value.Instance
			if child == og.NoInstanceID {
				continue
			}
			if colors[child] == black {
				continue // shared child keeps its first name
			}
			if err := visit(child, name+"."+attr.Name); err != nil {
				return err
			}
		}

		colors[id] = black
		path = path[:len(path)-1]
		return nil
	}

	rootInst := g.Instance(root)
	if err := visit(root, rootInst.Class); err != nil {
		return nil, err
	}

	// Every non-root instance carries an incoming reference, so anything the
	// DFS did not reach sits on a cycle detached from the root.
	for id := range g.Instances {
		if colors[id] == white {
			return nil, &CycleError{Path: []string{describeInstance(g, og.InstanceID(id))}}
		}
	}

	return n, nil
}

// findRoot returns the unique instance without incoming references.
func findRoot(g *og.Graph) (og.InstanceID, error) {
	incoming := make([]int, len(g.Instances))
	for _, inst := range g.Instances {
		for _, slot := range inst.Slots {
			if slot.Value.Kind != og.VInstance || slot.Value.Instance == og.NoInstanceID {
				continue
			}
			if int(slot.Value.Instance) < len(incoming) {
				incoming[slot.Value.Instance]++
			}
		}
	}
	var roots []og.InstanceID
	for id := range g.Instances {
		if incoming[id] == 0 {
			roots = append(roots, og.InstanceID(id))
		}
	}
	if len(roots) == 1 {
		return roots[0], nil
	}
	if len(roots) == 0 {
		// Every instance carries an incoming reference, so some reference
		// chain closes on itself.
		return og.NoInstanceID, traceCycle(g)
	}
	names := make([]string, len(roots))
	for i, id := range roots {
		names[i] = describeInstance(g, id)
	}
	return og.NoInstanceID, &MultipleRootsError{Roots: names}
}

// traceCycle walks the whole graph and reports the first reference chain
// that revisits an instance already on the walk stack.
func traceCycle(g *og.Graph) *CycleError {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	colors := make([]uint8, len(g.Instances))
	var path []string
	var found *CycleError

	var visit func(id og.InstanceID) bool
	visit = func(id og.InstanceID) bool {
		inst := g.Instance(id)
		if inst == nil {
			return false
		}
		switch colors[id] {
		case grey:
			found = &CycleError{Path: append(append([]string{}, path...), describeInstance(g, id))}
			return true
		case black:
			return false
		}
		colors[id] = grey
		path = append(path, describeInstance(g, id))
		for _, slot := range inst.Slots {
			if slot.Value.Kind != og.VInstance || slot.Value.Instance == og.NoInstanceID {
				continue
			}
			if visit(slot.Value.Instance) {
				return true
			}
		}
		colors[id] = black
		path = path[:len(path)-1]
		return false
	}

	for id := range g.Instances {
		if colors[id] == white && visit(og.InstanceID(id)) {
			return found
		}
	}
	return &CycleError{}
}

// disambiguate reserves name, suffixing a monotonically increasing counter
// on collision.
func disambiguate(taken map[string]struct{}, name string) string {
	if _, ok := taken[name]; !ok {
		taken[name] = struct{}{}
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if _, ok := taken[candidate]; !ok {
			taken[candidate] = struct{}{}
			return candidate
		}
	}
}

func describeInstance(g *og.Graph, id og.InstanceID) string {
	inst := g.Instance(id)
	if inst == nil {
		return fmt.Sprintf("instance#%d", id)
	}
	return fmt.Sprintf("%s#%d", inst.Class, id)
}
