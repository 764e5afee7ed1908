// Package state defines the observed-state data model and the pure differ
// that turns desired and observed state into an execution plan.
package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openconverge/converge/pkg/blueprint"
)

// ResourceState is the actual state of a single resource as reported by an
// engine. It is the standardized shape every engine must return from
// GetState. The ID of a ResourceState equals the Name of the
// ResourceDefinition it represents.
type ResourceState struct {
	// ID is the resource identifier, matching the blueprint resource name.
	ID string `json:"id"`

	// Type is the resource type (e.g., "compute").
	Type string `json:"type"`

	// Config is the current configuration reported by the engine,
	// normalized into the same canonical units used by blueprint specs
	// (cpu as core count, memory in MB).
	Config map[string]any `json:"config"`
}

// UpdatePair couples the observed state of a drifted resource with the
// desired definition it should converge to.
type UpdatePair struct {
	// Current is the provider-reported state.
	Current ResourceState `json:"current"`

	// Desired is the blueprint definition to converge to.
	Desired blueprint.ResourceDefinition `json:"desired"`
}

// Plan is the computed set of actions needed to reconcile actual state to
// desired state. A resource name appears in exactly one of the three lists,
// or in none when desired and actual already match. Plans are ephemeral,
// derived values; they are never persisted by the core.
type Plan struct {
	// ToCreate lists desired resources with no counterpart on the provider.
	ToCreate []blueprint.ResourceDefinition `json:"to_create"`

	// ToUpdate lists (current, desired) pairs whose specs have drifted.
	ToUpdate []UpdatePair `json:"to_update"`

	// ToDelete lists provider resources absent from the blueprint.
	ToDelete []ResourceState `json:"to_delete"`
}

// IsEmpty reports whether the plan contains no actions.
func (p *Plan) IsEmpty() bool {
	return len(p.ToCreate) == 0 && len(p.ToUpdate) == 0 && len(p.ToDelete) == 0
}

// Summary renders a terse one-line-per-action description of the plan.
func (p *Plan) Summary() string {
	if p.IsEmpty() {
		return "No changes needed; the infrastructure is already up-to-date."
	}

	var parts []string
	if len(p.ToCreate) > 0 {
		parts = append(parts, fmt.Sprintf("%d to create", len(p.ToCreate)))
	}
	if len(p.ToUpdate) > 0 {
		parts = append(parts, fmt.Sprintf("%d to modify", len(p.ToUpdate)))
	}
	if len(p.ToDelete) > 0 {
		parts = append(parts, fmt.Sprintf("%d to destroy", len(p.ToDelete)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan: %s.\n", strings.Join(parts, ", "))
	for _, r := range p.ToCreate {
		fmt.Fprintf(&b, "  + create %s (type: %s)\n", r.Name, r.Type)
	}
	for _, u := range p.ToUpdate {
		fmt.Fprintf(&b, "  ~ modify %s (type: %s)\n", u.Desired.Name, u.Desired.Type)
	}
	for _, r := range p.ToDelete {
		fmt.Fprintf(&b, "  - destroy %s (type: %s)\n", r.ID, r.Type)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Render produces the richly annotated multi-line rendering used for
// operator approval screens, including per-field detail for each action.
func (p *Plan) Render() string {
	if p.IsEmpty() {
		return "No changes. Your infrastructure is up-to-date."
	}

	var b strings.Builder
	b.WriteString("Execution Plan:\n")

	if len(p.ToCreate) > 0 {
		b.WriteString("\nResources to CREATE:\n")
		for _, r := range p.ToCreate {
			fmt.Fprintf(&b, "  [+] %s (%s)\n", r.Name, r.Type)
			for _, k := range sortedKeys(r.Specs) {
				fmt.Fprintf(&b, "      %s: %v\n", k, r.Specs[k])
			}
		}
	}

	if len(p.ToUpdate) > 0 {
		b.WriteString("\nResources to MODIFY:\n")
		for _, u := range p.ToUpdate {
			fmt.Fprintf(&b, "  [~] %s (%s)\n", u.Desired.Name, u.Desired.Type)
			fmt.Fprintf(&b, "      - config: %s\n", formatMap(u.Current.Config))
			fmt.Fprintf(&b, "      + config: %s\n", formatMap(u.Desired.Specs))
		}
	}

	if len(p.ToDelete) > 0 {
		b.WriteString("\nResources to DESTROY:\n")
		for _, r := range p.ToDelete {
			fmt.Fprintf(&b, "  [-] %s (%s)\n", r.ID, r.Type)
			b.WriteString("      (resource will be permanently deleted)\n")
		}
	}

	fmt.Fprintf(&b, "\nSummary: %d to create, %d to change, %d to destroy.",
		len(p.ToCreate), len(p.ToUpdate), len(p.ToDelete))
	return b.String()
}

func formatMap(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	pairs := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		pairs = append(pairs, fmt.Sprintf("%s: %v", k, m[k]))
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
