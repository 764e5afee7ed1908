package state

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/openconverge/converge/pkg/blueprint"
)

// Diff compares the desired state (blueprint) with the current state
// (engine-reported) and produces an execution plan. It is a pure function:
// no I/O, no mutation of either input, and deterministic output. ToCreate
// and ToDelete are sorted ascending by name/id, ToUpdate by name.
//
// Specs and config are compared by structural equality over the full map.
// Unit normalization is the engine's responsibility; if the two sides use
// different units the differ will report spurious drift.
func Diff(desired *blueprint.SystemBlueprint, current []ResourceState) *Plan {
	desiredByName := make(map[string]blueprint.ResourceDefinition, len(desired.Resources))
	for _, r := range desired.Resources {
		desiredByName[r.Name] = r
	}

	currentByID := make(map[string]ResourceState, len(current))
	for _, r := range current {
		currentByID[r.ID] = r
	}

	var toCreate, toDelete, toCheck []string
	for name := range desiredByName {
		if _, ok := currentByID[name]; ok {
			toCheck = append(toCheck, name)
		} else {
			toCreate = append(toCreate, name)
		}
	}
	for id := range currentByID {
		if _, ok := desiredByName[id]; !ok {
			toDelete = append(toDelete, id)
		}
	}
	sort.Strings(toCreate)
	sort.Strings(toDelete)
	sort.Strings(toCheck)

	plan := &Plan{}
	for _, name := range toCreate {
		plan.ToCreate = append(plan.ToCreate, desiredByName[name])
	}
	for _, id := range toDelete {
		plan.ToDelete = append(plan.ToDelete, currentByID[id])
	}
	for _, name := range toCheck {
		d := desiredByName[name]
		c := currentByID[name]
		if !ConfigsEqual(d.Specs, c.Config) {
			plan.ToUpdate = append(plan.ToUpdate, UpdatePair{Current: c, Desired: d})
		}
	}

	return plan
}

// ConfigsEqual reports whether a desired spec map and a reported config map
// are structurally equal. Both sides are canonicalized through a JSON
// round-trip first so that numeric values decoded from different sources
// (YAML ints, provider int64s, JSON float64s) compare by value rather than
// by concrete Go type.
func ConfigsEqual(specs, config map[string]any) bool {
	return reflect.DeepEqual(canonicalize(specs), canonicalize(config))
}

func canonicalize(m map[string]any) any {
	if m == nil {
		m = map[string]any{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return m
	}
	return out
}
