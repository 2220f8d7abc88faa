package registry

import (
	"errors"
	"fmt"

	"github.com/crisisworks/lifeline/core/model"
)

// ErrUnknownComponent is returned when a component is queried before
// registration. This is a usage error and fatal to the run.
var ErrUnknownComponent = errors.New("registry: unknown component")

// Registry holds per-component static metadata and mutable lifecycle state
// for one scheduling run. The catalog is injected at construction and never
// mutated.
type Registry struct {
	catalog    model.Catalog
	components map[string]*model.Component
	order      []string
}

// New creates an empty registry backed by the given catalog.
func New(catalog model.Catalog) *Registry {
	return &Registry{
		catalog:    catalog,
		components: make(map[string]*model.Component),
	}
}

// Register ingests one disruption row. Infrastructure type and type code are
// derived from the component id. Re-registering an id is a usage error.
func (r *Registry) Register(d model.Disruption) (*model.Component, error) {
	if _, ok := r.components[d.Component]; ok {
		return nil, fmt.Errorf("registry: component %s already registered", d.Component)
	}
	details, err := model.ParseComponentID(r.catalog, d.Component)
	if err != nil {
		return nil, err
	}
	c := &model.Component{
		ID:               d.Component,
		Details:          details,
		DisruptionTime:   d.Time,
		FailPct:          d.FailPct,
		RecoveryOverride: d.RecoveryTime,
		State:            model.StateDisrupted,
	}
	r.components[d.Component] = c
	r.order = append(r.order, d.Component)
	return c, nil
}

// Component returns the registered component for id.
func (r *Registry) Component(id string) (*model.Component, error) {
	c, ok := r.components[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, id)
	}
	return c, nil
}

// SetState transitions the component's lifecycle state.
func (r *Registry) SetState(id string, state model.State) error {
	c, ok := r.components[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, id)
	}
	c.State = state
	return nil
}

// State returns the component's lifecycle state.
func (r *Registry) State(id string) (model.State, error) {
	c, ok := r.components[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownComponent, id)
	}
	return c.State, nil
}

// Components returns all registered components in registration order.
func (r *Registry) Components() []*model.Component {
	out := make([]*model.Component, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.components[id])
	}
	return out
}

// Len returns the number of registered components.
func (r *Registry) Len() int { return len(r.components) }
