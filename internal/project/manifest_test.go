package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

const fullManifest = `
[package]
name = "demo"
version = "0.2.0"

[build]
images = ["images/counter.slabimg", "images/pair.slabimg"]

[run]
image = "images/counter.slabimg"
entry = "bump"

[passes]
disable_inline = true
disable_abi = true
`

func TestLoadFile_Full(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, fullManifest)

	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if m.Root != dir {
		t.Fatalf("root = %q, want %q", m.Root, dir)
	}
	if m.Config.Package.Name != "demo" || m.Config.Package.Version != "0.2.0" {
		t.Fatalf("package = %+v", m.Config.Package)
	}

	images := m.Images()
	if len(images) != 2 {
		t.Fatalf("images = %v", images)
	}
	want := filepath.Join(dir, "images", "counter.slabimg")
	if images[0] != want {
		t.Fatalf("image[0] = %q, want %q", images[0], want)
	}
	if m.RunImage() != want {
		t.Fatalf("run image = %q, want %q", m.RunImage(), want)
	}
	if m.Config.Run.Entry != "bump" {
		t.Fatalf("run entry = %q", m.Config.Run.Entry)
	}

	opt := m.PipelineOptions()
	if !opt.DisableInline || opt.DisableValsem || !opt.DisableABI {
		t.Fatalf("pipeline options = %+v", opt)
	}
}

func TestLoadFile_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing package section",
			content: "[build]\nimages = []\n",
			wantErr: "missing [package]",
		},
		{
			name:    "missing package name",
			content: "[package]\nversion = \"1.0.0\"\n",
			wantErr: "missing [package].name",
		},
		{
			name:    "run without image",
			content: "[package]\nname = \"demo\"\n\n[run]\nentry = \"bump\"\n",
			wantErr: "[run] requires image",
		},
		{
			name:    "run without entry",
			content: "[package]\nname = \"demo\"\n\n[run]\nimage = \"a.slabimg\"\n",
			wantErr: "[run] requires entry",
		},
		{
			name:    "malformed toml",
			content: "[package\nname = demo\n",
			wantErr: "failed to parse TOML",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), tc.content)
			_, err := LoadFile(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("LoadFile = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestFind_WalksUpward(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[package]\nname = \"demo\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	path, ok, err := Find(nested)
	if err != nil || !ok {
		t.Fatalf("Find = %v, %v", ok, err)
	}
	if path != filepath.Join(root, ManifestName) {
		t.Fatalf("found %q", path)
	}
}

func TestLoad_NoManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "empty")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	m, ok, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok || m != nil {
		t.Fatalf("Load found a manifest in an empty tree")
	}
}
