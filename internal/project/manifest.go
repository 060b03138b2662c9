// Package project loads the slab.toml manifest that names a project's
// module images, run entry point and pass options.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"slab/internal/driver"
)

// ManifestName is the file the loader searches for.
const ManifestName = "slab.toml"

// Manifest is a parsed slab.toml plus its location.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Config mirrors the slab.toml sections.
type Config struct {
	Package PackageConfig `toml:"package"`
	Build   BuildConfig   `toml:"build"`
	Run     RunConfig     `toml:"run"`
	Passes  PassesConfig  `toml:"passes"`
}

// PackageConfig is the [package] section.
type PackageConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// BuildConfig is the [build] section: the module images a build compiles.
type BuildConfig struct {
	Images []string `toml:"images"`
}

// RunConfig is the [run] section: the image to compile and the exported
// function to invoke.
type RunConfig struct {
	Image string `toml:"image"`
	Entry string `toml:"entry"`
}

// PassesConfig is the [passes] section. Passes are on unless disabled.
type PassesConfig struct {
	DisableInline bool `toml:"disable_inline"`
	DisableValsem bool `toml:"disable_valsem"`
	DisableABI    bool `toml:"disable_abi"`
}

// PipelineOptions translates the [passes] section for the driver.
func (m *Manifest) PipelineOptions() driver.Options {
	return driver.Options{
		DisableInline: m.Config.Passes.DisableInline,
		DisableValsem: m.Config.Passes.DisableValsem,
		DisableABI:    m.Config.Passes.DisableABI,
	}
}

// Images returns the build image paths resolved against the project root.
func (m *Manifest) Images() []string {
	out := make([]string, len(m.Config.Build.Images))
	for i, rel := range m.Config.Build.Images {
		out[i] = m.resolve(rel)
	}
	return out
}

// RunImage returns the run image path resolved against the project root.
func (m *Manifest) RunImage() string {
	return m.resolve(m.Config.Run.Image)
}

func (m *Manifest) resolve(rel string) string {
	rel = filepath.FromSlash(strings.TrimSpace(rel))
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(m.Root, rel)
}

// Find walks upward from startDir looking for slab.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load searches upward from startDir and parses the manifest it finds. The
// second result is false when no manifest exists.
func Load(startDir string) (*Manifest, bool, error) {
	path, ok, err := Find(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	m, err := LoadFile(path)
	if err != nil {
		return nil, true, err
	}
	return m, true, nil
}

// LoadFile parses one manifest file.
func LoadFile(path string) (*Manifest, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("package") {
		return nil, fmt.Errorf("%s: missing [package]", path)
	}
	if strings.TrimSpace(cfg.Package.Name) == "" {
		return nil, fmt.Errorf("%s: missing [package].name", path)
	}
	if meta.IsDefined("run") {
		if strings.TrimSpace(cfg.Run.Image) == "" {
			return nil, fmt.Errorf("%s: [run] requires image", path)
		}
		if strings.TrimSpace(cfg.Run.Entry) == "" {
			return nil, fmt.Errorf("%s: [run] requires entry", path)
		}
	}
	return &Manifest{
		Path:   path,
		Root:   filepath.Dir(path),
		Config: cfg,
	}, nil
}
