package state

import (
	"reflect"
	"testing"

	"github.com/openconverge/converge/pkg/blueprint"
)

func computeDef(name string, specs map[string]any) blueprint.ResourceDefinition {
	return blueprint.ResourceDefinition{
		Type:     "compute",
		Name:     name,
		Provider: "proxmox",
		Specs:    specs,
	}
}

func computeState(id string, config map[string]any) ResourceState {
	return ResourceState{ID: id, Type: "compute", Config: config}
}

func TestDiffEmptyBoth(t *testing.T) {
	bp := &blueprint.SystemBlueprint{Name: "empty"}
	plan := Diff(bp, nil)
	if !plan.IsEmpty() {
		t.Fatalf("plan not empty: %+v", plan)
	}
}

func TestDiffCreatesMissingResources(t *testing.T) {
	bp := &blueprint.SystemBlueprint{
		Name: "web",
		Resources: []blueprint.ResourceDefinition{
			computeDef("web-vm", map[string]any{"cpu": 2, "memory": 2048}),
		},
	}

	plan := Diff(bp, nil)
	if len(plan.ToCreate) != 1 || len(plan.ToUpdate) != 0 || len(plan.ToDelete) != 0 {
		t.Fatalf("plan = %+v, want one create", plan)
	}
	if plan.ToCreate[0].Name != "web-vm" {
		t.Fatalf("ToCreate[0].Name = %q, want web-vm", plan.ToCreate[0].Name)
	}
}

func TestDiffUpdateOnDrift(t *testing.T) {
	bp := &blueprint.SystemBlueprint{
		Name: "web",
		Resources: []blueprint.ResourceDefinition{
			computeDef("web-vm", map[string]any{"cpu": 4, "memory": 4096}),
		},
	}
	current := []ResourceState{
		computeState("web-vm", map[string]any{"cpu": 4, "memory": 2048}),
	}

	plan := Diff(bp, current)
	if len(plan.ToUpdate) != 1 || len(plan.ToCreate) != 0 || len(plan.ToDelete) != 0 {
		t.Fatalf("plan = %+v, want one update", plan)
	}
	pair := plan.ToUpdate[0]
	if pair.Desired.Name != "web-vm" || pair.Current.ID != "web-vm" {
		t.Fatalf("update pair names = (%q, %q), want web-vm", pair.Desired.Name, pair.Current.ID)
	}
	if pair.Current.Config["memory"] != 2048 {
		t.Fatalf("current memory = %v, want 2048", pair.Current.Config["memory"])
	}
}

func TestDiffMixedScenario(t *testing.T) {
	bp := &blueprint.SystemBlueprint{
		Name: "mixed",
		Resources: []blueprint.ResourceDefinition{
			computeDef("a-new", map[string]any{"cpu": 1}),
			computeDef("b-match", map[string]any{"cpu": 2}),
		},
	}
	current := []ResourceState{
		computeState("b-match", map[string]any{"cpu": 2}),
		computeState("c-stale", map[string]any{"cpu": 8}),
	}

	plan := Diff(bp, current)
	if len(plan.ToCreate) != 1 || plan.ToCreate[0].Name != "a-new" {
		t.Fatalf("ToCreate = %+v, want [a-new]", plan.ToCreate)
	}
	if len(plan.ToUpdate) != 0 {
		t.Fatalf("ToUpdate = %+v, want empty", plan.ToUpdate)
	}
	if len(plan.ToDelete) != 1 || plan.ToDelete[0].ID != "c-stale" {
		t.Fatalf("ToDelete = %+v, want [c-stale]", plan.ToDelete)
	}
}

func TestDiffDeterministicOrdering(t *testing.T) {
	bp := &blueprint.SystemBlueprint{
		Name: "ordered",
		Resources: []blueprint.ResourceDefinition{
			computeDef("zeta", nil),
			computeDef("alpha", nil),
			computeDef("mike", nil),
		},
	}
	current := []ResourceState{
		computeState("stale-z", nil),
		computeState("stale-a", nil),
	}

	first := Diff(bp, current)
	second := Diff(bp, current)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical inputs produced different plans")
	}

	wantCreate := []string{"alpha", "mike", "zeta"}
	for i, name := range wantCreate {
		if first.ToCreate[i].Name != name {
			t.Fatalf("ToCreate order = %+v, want %v", first.ToCreate, wantCreate)
		}
	}
	wantDelete := []string{"stale-a", "stale-z"}
	for i, id := range wantDelete {
		if first.ToDelete[i].ID != id {
			t.Fatalf("ToDelete order = %+v, want %v", first.ToDelete, wantDelete)
		}
	}
}

func TestDiffPartitionInvariant(t *testing.T) {
	bp := &blueprint.SystemBlueprint{
		Name: "partition",
		Resources: []blueprint.ResourceDefinition{
			computeDef("create-me", map[string]any{"cpu": 1}),
			computeDef("update-me", map[string]any{"cpu": 4}),
			computeDef("leave-me", map[string]any{"cpu": 2}),
		},
	}
	current := []ResourceState{
		computeState("update-me", map[string]any{"cpu": 2}),
		computeState("leave-me", map[string]any{"cpu": 2}),
		computeState("delete-me", map[string]any{"cpu": 2}),
	}

	plan := Diff(bp, current)

	seen := map[string]int{}
	for _, r := range plan.ToCreate {
		seen[r.Name]++
	}
	for _, u := range plan.ToUpdate {
		seen[u.Desired.Name]++
	}
	for _, r := range plan.ToDelete {
		seen[r.ID]++
	}

	for name, count := range seen {
		if count != 1 {
			t.Errorf("resource %q appears %d times in the plan", name, count)
		}
	}
	if _, ok := seen["leave-me"]; ok {
		t.Error("unchanged resource appeared in the plan")
	}
	for _, want := range []string{"create-me", "update-me", "delete-me"} {
		if _, ok := seen[want]; !ok {
			t.Errorf("resource %q missing from the plan", want)
		}
	}
}

func TestDiffDoesNotMutateInputs(t *testing.T) {
	bp := &blueprint.SystemBlueprint{
		Name: "pure",
		Resources: []blueprint.ResourceDefinition{
			computeDef("x", map[string]any{"cpu": 1}),
		},
	}
	current := []ResourceState{computeState("y", map[string]any{"cpu": 2})}

	wantResources := []blueprint.ResourceDefinition{
		computeDef("x", map[string]any{"cpu": 1}),
	}
	wantCurrent := []ResourceState{computeState("y", map[string]any{"cpu": 2})}

	_ = Diff(bp, current)

	if !reflect.DeepEqual(bp.Resources, wantResources) {
		t.Error("Diff mutated the blueprint")
	}
	if !reflect.DeepEqual(current, wantCurrent) {
		t.Error("Diff mutated the current state")
	}
}

func TestConfigsEqual(t *testing.T) {
	tests := []struct {
		name   string
		specs  map[string]any
		config map[string]any
		want   bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs empty", nil, map[string]any{}, true},
		{"equal same types", map[string]any{"cpu": 2}, map[string]any{"cpu": 2}, true},
		{"int vs float64", map[string]any{"cpu": 4}, map[string]any{"cpu": float64(4)}, true},
		{"int vs int64", map[string]any{"memory": 2048}, map[string]any{"memory": int64(2048)}, true},
		{"different values", map[string]any{"cpu": 2}, map[string]any{"cpu": 4}, false},
		{"missing key", map[string]any{"cpu": 2, "memory": 1024}, map[string]any{"cpu": 2}, false},
		{"extra key", map[string]any{"cpu": 2}, map[string]any{"cpu": 2, "memory": 1024}, false},
		{
			"nested equal across types",
			map[string]any{"disk": map[string]any{"size": 50}},
			map[string]any{"disk": map[string]any{"size": float64(50)}},
			true,
		},
		{
			"string values",
			map[string]any{"template": "ubuntu-22.04"},
			map[string]any{"template": "ubuntu-22.04"},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConfigsEqual(tt.specs, tt.config); got != tt.want {
				t.Errorf("ConfigsEqual(%v, %v) = %v, want %v", tt.specs, tt.config, got, tt.want)
			}
		})
	}
}
