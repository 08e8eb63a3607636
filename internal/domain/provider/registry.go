package provider

import (
	"fmt"
	"sort"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
)

// Registry is the closed set of adapters keyed by provider type.
type Registry struct {
	adapters map[Type]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Type]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter. Registering a type twice is a wiring bug.
func (r *Registry) Register(a Adapter) {
	if _, ok := r.adapters[a.Type()]; ok {
		panic(fmt.Sprintf("provider %s registered twice", a.Type()))
	}
	r.adapters[a.Type()] = a
}

func (r *Registry) Get(t Type) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedProvider, t)
	}
	return a, nil
}

// Lookup resolves a raw provider name, e.g. from a route parameter.
func (r *Registry) Lookup(name string) (Adapter, error) {
	t, ok := ParseType(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedProvider, name)
	}
	return r.Get(t)
}

// CallbackParser returns the adapter's callback parser if it has one.
func (r *Registry) CallbackParser(t Type) (CallbackParser, error) {
	a, err := r.Get(t)
	if err != nil {
		return nil, err
	}
	p, ok := a.(CallbackParser)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not accept callbacks", domainerrors.ErrOperationNotSupported, t)
	}
	return p, nil
}

func (r *Registry) Types() []Type {
	types := make([]Type, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
