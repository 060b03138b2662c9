package driver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"slab/internal/ir"
	"slab/internal/og"
	"slab/internal/types"
)

// Schema version for the module image format. Increment on any change to
// the encoded shape.
const imageSchemaVersion uint16 = 1

// moduleImage is the serialized form of a loaded module: the type table,
// the object graph, and the program bodies. Lookup maps and the interner
// are rebuilt on decode.
type moduleImage struct {
	Schema uint16

	Types     []types.Type
	Classes   []*og.Class
	Instances []*og.Instance

	Cells []*ir.Cell
	Funcs []*ir.Func
}

// EncodeImage writes the module to w in the image format.
func EncodeImage(w io.Writer, mod *og.Module) error {
	if mod == nil || mod.Graph == nil || mod.Program == nil {
		return fmt.Errorf("image: incomplete module")
	}
	img := moduleImage{
		Schema:    imageSchemaVersion,
		Types:     mod.Program.Types.Table(),
		Instances: mod.Graph.Instances,
		Cells:     mod.Program.Cells,
		Funcs:     mod.Program.Funcs,
	}
	// Class maps iterate in random order; emit sorted by name so identical
	// modules produce identical bytes.
	for _, name := range sortedClassNames(mod.Graph) {
		img.Classes = append(img.Classes, mod.Graph.Classes[name])
	}
	return msgpack.NewEncoder(w).Encode(&img)
}

// DecodeImage reads a module image from r and rebuilds the in-memory
// module, including the type interner and name lookup maps.
func DecodeImage(r io.Reader) (*og.Module, error) {
	var img moduleImage
	if err := msgpack.NewDecoder(r).Decode(&img); err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	if img.Schema != imageSchemaVersion {
		return nil, fmt.Errorf("image: schema %d, this build reads %d", img.Schema, imageSchemaVersion)
	}

	interner, err := types.NewInternerFromTable(img.Types)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}

	g := og.NewGraph()
	for _, c := range img.Classes {
		if err := g.AddClass(c); err != nil {
			return nil, fmt.Errorf("image: %w", err)
		}
	}
	g.Instances = img.Instances
	for i, inst := range g.Instances {
		if inst == nil {
			return nil, fmt.Errorf("image: nil instance %d", i)
		}
		if inst.ID != og.InstanceID(i) {
			return nil, fmt.Errorf("image: instance %d carries id %d", i, inst.ID)
		}
		if _, ok := g.Classes[inst.Class]; !ok {
			return nil, fmt.Errorf("image: instance %d of unknown class %q", i, inst.Class)
		}
	}

	p := ir.NewProgram(interner)
	p.Cells = img.Cells
	p.Funcs = img.Funcs
	p.RebuildIndex()

	return &og.Module{Graph: g, Program: p}, nil
}

// LoadImageFile reads a module image from disk.
func LoadImageFile(path string) (*og.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	mod, err := DecodeImage(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mod, nil
}

// SaveImageFile writes a module image to disk atomically.
func SaveImageFile(path string, mod *og.Module) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := EncodeImage(f, mod); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func sortedClassNames(g *og.Graph) []string {
	names := make([]string, 0, len(g.Classes))
	for name := range g.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
