package proxmox

import (
	"fmt"
	"strconv"
	"strings"
)

// guestKind tags the provider's two structurally-similar resource shapes.
type guestKind string

const (
	// kindQemu is a full virtual machine.
	kindQemu guestKind = "qemu"

	// kindLXC is a lightweight container.
	kindLXC guestKind = "lxc"
)

// guest is the tagged variant for a provider-side compute resource. Field
// extraction is explicit per kind; call sites never probe raw maps for
// field presence.
type guest struct {
	Kind     guestKind
	VMID     int
	Name     string
	Status   string
	Template bool
}

// listEntry is one element of the provider's qemu/lxc listing responses.
// Memory figures on the listing are reported in bytes.
type listEntry struct {
	VMID     int    `json:"vmid"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Template int    `json:"template"`
	MaxMem   int64  `json:"maxmem"`
	CPUs     int    `json:"cpus"`
}

func (e listEntry) toGuest(kind guestKind) guest {
	return guest{
		Kind:     kind,
		VMID:     e.VMID,
		Name:     e.Name,
		Status:   e.Status,
		Template: e.Template == 1,
	}
}

// Canonical spec keys shared between blueprint specs and normalized config.
const (
	specCPU      = "cpu"
	specMemory   = "memory"
	specTemplate = "template"
)

// markerPrefix introduces the template line the engine writes into a
// guest's description at create time, so get_state can recover which
// template a clone came from.
const (
	markerManaged  = "managed-by: converge"
	markerTemplate = "template: "
)

// buildMarker renders the description written to managed guests.
func buildMarker(template string) string {
	if template == "" {
		return markerManaged
	}
	return markerManaged + "\n" + markerTemplate + template
}

// parseMarker extracts the template name from a managed guest description.
func parseMarker(description string) (template string, managed bool) {
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(line)
		if line == markerManaged {
			managed = true
		}
		if rest, ok := strings.CutPrefix(line, markerTemplate); ok {
			template = strings.TrimSpace(rest)
		}
	}
	return template, managed
}

// normalizeConfig maps a provider config response into canonical units:
// cores become cpu, memory becomes an MB count regardless of whether the
// provider reported MB (config endpoints) or bytes (maxmem fields), and the
// source template is recovered from the managed-guest marker. Keeping
// normalization here, not in the differ, is what makes the differ's
// structural equality unit-correct.
func normalizeConfig(raw map[string]any) map[string]any {
	out := make(map[string]any, 3)

	if cores, ok := intValue(raw["cores"]); ok {
		out[specCPU] = cores
	}

	if mem, ok := intValue(raw["memory"]); ok {
		out[specMemory] = mem
	} else if maxmem, ok := intValue(raw["maxmem"]); ok {
		out[specMemory] = maxmem / (1024 * 1024)
	}

	if desc, ok := raw["description"].(string); ok {
		if template, _ := parseMarker(desc); template != "" {
			out[specTemplate] = template
		}
	}

	return out
}

// intValue coerces the provider's loosely-typed numeric fields (JSON
// numbers arrive as float64, some config fields as decimal strings).
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// specInt reads a canonical integer spec value.
func specInt(specs map[string]any, key string) (int, bool) {
	v, ok := specs[key]
	if !ok {
		return 0, false
	}
	return intValue(v)
}

// specString reads a canonical string spec value.
func specString(specs map[string]any, key string) (string, bool) {
	v, ok := specs[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func (g guest) path() string {
	return fmt.Sprintf("%s/%d", g.Kind, g.VMID)
}
