package blueprint

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const defaultVersion = "1.0"

// Loader parses and validates blueprint documents.
type Loader struct {
	validator *validator.Validate
}

// NewLoader creates a blueprint loader with struct validation enabled.
func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(),
	}
}

// Load reads a YAML blueprint from the given path.
func (l *Loader) Load(path string) (*SystemBlueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blueprint %s: %w", path, err)
	}

	bp, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid blueprint %s: %w", path, err)
	}
	return bp, nil
}

// Parse decodes and validates a YAML blueprint document.
func (l *Loader) Parse(data []byte) (*SystemBlueprint, error) {
	var bp SystemBlueprint
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("failed to decode blueprint: %w", err)
	}

	if bp.Version == "" {
		bp.Version = defaultVersion
	}

	if err := l.Validate(&bp); err != nil {
		return nil, err
	}
	return &bp, nil
}

// Validate checks structural validity plus the blueprint invariants that
// struct tags cannot express: resource names must be unique, and declared
// dependencies must reference resources defined in the same blueprint.
func (l *Loader) Validate(bp *SystemBlueprint) error {
	if err := l.validator.Struct(bp); err != nil {
		return fmt.Errorf("blueprint validation failed: %w", err)
	}

	seen := make(map[string]struct{}, len(bp.Resources))
	for _, r := range bp.Resources {
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate resource name %q", r.Name)
		}
		seen[r.Name] = struct{}{}
	}

	for _, r := range bp.Resources {
		for _, dep := range r.Dependencies {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("resource %q depends on undefined resource %q", r.Name, dep)
			}
			if dep == r.Name {
				return fmt.Errorf("resource %q depends on itself", r.Name)
			}
		}
	}

	return nil
}
