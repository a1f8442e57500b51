package capability

import (
	"errors"
	"fmt"
)

// ErrUnknownType is returned when an agent type is not in the catalog.
var ErrUnknownType = errors.New("unknown agent type")

// Registry is an immutable lookup over agent-type templates. Build it once
// at startup and pass it to whatever needs catalog access.
type Registry struct {
	order     []string
	templates map[string]Template
}

// NewRegistry builds a registry from a template list, preserving order.
func NewRegistry(templates []Template) *Registry {
	r := &Registry{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		if _, dup := r.templates[t.Type]; dup {
			continue
		}
		r.order = append(r.order, t.Type)
		r.templates[t.Type] = t
	}
	return r
}

// Get returns the template for an agent type.
func (r *Registry) Get(agentType string) (Template, bool) {
	t, ok := r.templates[agentType]
	return t, ok
}

// MustGet returns the template or an ErrUnknownType-wrapped error.
func (r *Registry) MustGet(agentType string) (Template, error) {
	t, ok := r.templates[agentType]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrUnknownType, agentType)
	}
	return t, nil
}

// Types returns all agent type names in catalog order.
func (r *Registry) Types() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Allows reports whether the agent type is permitted to run the action.
// Unknown types allow nothing.
func (r *Registry) Allows(agentType, action string) bool {
	t, ok := r.templates[agentType]
	if !ok {
		return false
	}
	for _, c := range t.Capabilities {
		if c == action {
			return true
		}
	}
	return false
}
