package blueprint

// ResourceDefinition describes a single desired infrastructure resource.
// The Name is the unique key within a blueprint and is what joins the
// desired resource to the provider-reported state carrying the same id.
type ResourceDefinition struct {
	// Type is the resource type (e.g., "compute", "storage").
	Type string `json:"type" yaml:"type" validate:"required"`

	// Name uniquely identifies the resource within its blueprint.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Provider names the infrastructure provider that owns this resource
	// (e.g., "proxmox").
	Provider string `json:"provider" yaml:"provider" validate:"required"`

	// Specs holds the desired configuration in canonical units:
	// cpu as core count, memory in MB, template as an image/template name.
	Specs map[string]any `json:"specs,omitempty" yaml:"specs,omitempty"`

	// Dependencies lists names of resources this one depends on.
	// The ordering is advisory; drivers are required to be order-insensitive.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Metadata carries additional free-form resource metadata.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// SystemBlueprint is the desired-state description of a named set of
// infrastructure resources. It is treated as immutable input: the engine
// and the differ never modify a blueprint they are handed.
type SystemBlueprint struct {
	// Version is the blueprint schema version.
	Version string `json:"version" yaml:"version"`

	// Name is the blueprint name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Resources is the ordered list of desired resources.
	Resources []ResourceDefinition `json:"resources" yaml:"resources" validate:"required,min=1,dive"`

	// Metadata carries additional free-form blueprint metadata.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ResourceNames returns the set of resource names declared in the blueprint.
func (b *SystemBlueprint) ResourceNames() map[string]struct{} {
	names := make(map[string]struct{}, len(b.Resources))
	for _, r := range b.Resources {
		names[r.Name] = struct{}{}
	}
	return names
}
