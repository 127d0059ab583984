package widget

import (
	"fmt"
	"sync/atomic"

	"github.com/pulseboard/pulseboard/internal/errs"
)

// Registry is the file-backed widget repository. The whole definition set
// is swapped atomically on config hot-reload, so readers always see a
// consistent snapshot.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	order []Spec
	byID  map[string]Spec
}

// NewRegistry creates a Registry holding the given specs.
func NewRegistry(specs []Spec) *Registry {
	r := &Registry{}
	r.Swap(specs)
	return r
}

// Swap atomically replaces the definition set (used on hot-reload).
func (r *Registry) Swap(specs []Spec) {
	s := &snapshot{
		order: make([]Spec, len(specs)),
		byID:  make(map[string]Spec, len(specs)),
	}
	copy(s.order, specs)
	for _, spec := range specs {
		s.byID[spec.ID] = spec
	}
	r.snap.Store(s)
}

// List returns all widget specs in definition order.
func (r *Registry) List() []Spec {
	s := r.snap.Load()
	out := make([]Spec, len(s.order))
	copy(out, s.order)
	return out
}

// Get returns the spec for id.
func (r *Registry) Get(id string) (Spec, error) {
	s := r.snap.Load()
	spec, ok := s.byID[id]
	if !ok {
		return Spec{}, fmt.Errorf("widget %s: %w", id, errs.ErrNotFound)
	}
	return spec, nil
}
