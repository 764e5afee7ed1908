package blueprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validBlueprint = `
name: web-stack
description: Two-tier web application
resources:
  - type: compute
    name: web-vm
    provider: proxmox
    specs:
      cpu: 2
      memory: 2048
      template: ubuntu-22.04
    dependencies:
      - db-vm
  - type: compute
    name: db-vm
    provider: proxmox
    specs:
      cpu: 4
      memory: 4096
`

func TestParseValidBlueprint(t *testing.T) {
	bp, err := NewLoader().Parse([]byte(validBlueprint))
	if err != nil {
		t.Fatalf("Parse returned %v", err)
	}

	if bp.Version != "1.0" {
		t.Errorf("Version = %q, want default 1.0", bp.Version)
	}
	if bp.Name != "web-stack" {
		t.Errorf("Name = %q, want web-stack", bp.Name)
	}
	if len(bp.Resources) != 2 {
		t.Fatalf("got %d resources, want 2", len(bp.Resources))
	}

	web := bp.Resources[0]
	if web.Name != "web-vm" || web.Type != "compute" || web.Provider != "proxmox" {
		t.Errorf("unexpected first resource: %+v", web)
	}
	if cpu, ok := web.Specs["cpu"]; !ok || cpu != 2 {
		t.Errorf("web-vm cpu = %v, want 2", cpu)
	}
	if tpl := web.Specs["template"]; tpl != "ubuntu-22.04" {
		t.Errorf("web-vm template = %v, want ubuntu-22.04", tpl)
	}
	if len(web.Dependencies) != 1 || web.Dependencies[0] != "db-vm" {
		t.Errorf("web-vm dependencies = %v, want [db-vm]", web.Dependencies)
	}
}

func TestParseRejectsInvalidBlueprints(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "not yaml",
			doc:     "{invalid",
			wantErr: "failed to decode",
		},
		{
			name:    "missing blueprint name",
			doc:     "resources:\n  - type: compute\n    name: a\n    provider: proxmox\n",
			wantErr: "validation failed",
		},
		{
			name:    "no resources",
			doc:     "name: empty\n",
			wantErr: "validation failed",
		},
		{
			name:    "resource missing provider",
			doc:     "name: x\nresources:\n  - type: compute\n    name: a\n",
			wantErr: "validation failed",
		},
		{
			name: "duplicate names",
			doc: "name: x\nresources:\n" +
				"  - {type: compute, name: a, provider: proxmox}\n" +
				"  - {type: compute, name: a, provider: proxmox}\n",
			wantErr: `duplicate resource name "a"`,
		},
		{
			name: "undefined dependency",
			doc: "name: x\nresources:\n" +
				"  - {type: compute, name: a, provider: proxmox, dependencies: [ghost]}\n",
			wantErr: `depends on undefined resource "ghost"`,
		},
		{
			name: "self dependency",
			doc: "name: x\nresources:\n" +
				"  - {type: compute, name: a, provider: proxmox, dependencies: [a]}\n",
			wantErr: `depends on itself`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("Parse accepted an invalid blueprint")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blueprint.yaml")
	if err := os.WriteFile(path, []byte(validBlueprint), 0o644); err != nil {
		t.Fatal(err)
	}

	bp, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load returned %v", err)
	}
	if bp.Name != "web-stack" {
		t.Errorf("Name = %q, want web-stack", bp.Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
}

func TestResourceNames(t *testing.T) {
	bp, err := NewLoader().Parse([]byte(validBlueprint))
	if err != nil {
		t.Fatal(err)
	}

	names := bp.ResourceNames()
	if len(names) != 2 {
		t.Fatalf("got %d names, want 2", len(names))
	}
	for _, want := range []string{"web-vm", "db-vm"} {
		if _, ok := names[want]; !ok {
			t.Errorf("names missing %q", want)
		}
	}
}
