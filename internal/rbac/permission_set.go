package rbac

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PermissionSet maps resource to granted actions. The "" resource is the
// base bucket used for global checks; it never implies named resources.
type PermissionSet map[string]map[Action]bool

// PermissionName formats a (resource, action) pair as a catalog name.
func PermissionName(resource string, action Action) string {
	if resource == "" {
		return string(action)
	}
	return resource + "." + string(action)
}

// ParsePermissionName splits "vehicles.write" into its parts. A name with no
// dot addresses the base bucket.
func ParsePermissionName(name string) (string, Action, bool) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return "", "", false
	}
	resource, verb := "", name
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		resource, verb = name[:idx], name[idx+1:]
		if resource == "" {
			return "", "", false
		}
	}
	action, ok := ParseAction(verb)
	if !ok {
		return "", "", false
	}
	return resource, action, true
}

// Allows reports whether the set grants action on resource.
func (s PermissionSet) Allows(resource string, action Action) bool {
	if s == nil {
		return false
	}
	return s[resource][action]
}

// Grant adds action on resource.
func (s PermissionSet) Grant(resource string, action Action) {
	actions, ok := s[resource]
	if !ok {
		actions = make(map[Action]bool, 3)
		s[resource] = actions
	}
	actions[action] = true
}

// Merge adds every grant of other into s.
func (s PermissionSet) Merge(other PermissionSet) {
	for resource, actions := range other {
		for action, granted := range actions {
			if granted {
				s.Grant(resource, action)
			}
		}
	}
}

// Names returns the sorted catalog names of every grant.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s)*2)
	for resource, actions := range s {
		for action, granted := range actions {
			if granted {
				names = append(names, PermissionName(resource, action))
			}
		}
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	out.Merge(s)
	return out
}

// PermissionSetFromNames builds a set from catalog names, skipping names that
// do not parse.
func PermissionSetFromNames(names []string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		if resource, action, ok := ParsePermissionName(name); ok {
			set.Grant(resource, action)
		}
	}
	return set
}

// ParsePermissionMatrix decodes the stored matrix shape
// {"dealers":{"read":true,"write":true}}. Unknown actions are dropped; any
// structural problem is an error so callers can discard the whole field.
func ParsePermissionMatrix(raw []byte) (PermissionSet, error) {
	set := make(PermissionSet)
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return set, nil
	}
	var matrix map[string]map[string]bool
	if err := json.Unmarshal(raw, &matrix); err != nil {
		return nil, fmt.Errorf("rbac: permission matrix: %w", err)
	}
	for resource, actions := range matrix {
		resource = strings.TrimSpace(strings.ToLower(resource))
		for verb, granted := range actions {
			action, ok := ParseAction(verb)
			if !ok || !granted {
				continue
			}
			set.Grant(resource, action)
		}
	}
	return set, nil
}

// MarshalMatrix renders the set in the stored matrix shape.
func (s PermissionSet) MarshalMatrix() ([]byte, error) {
	matrix := make(map[string]map[string]bool, len(s))
	for resource, actions := range s {
		for action, granted := range actions {
			if !granted {
				continue
			}
			if matrix[resource] == nil {
				matrix[resource] = make(map[string]bool, 3)
			}
			matrix[resource][string(action)] = true
		}
	}
	return json.Marshal(matrix)
}
