package adapter

import (
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/capadapt/capadapt/pkg/errors"
)

// Outcome labels how a resolution was decided.
type Outcome string

const (
	OutcomeConcrete  Outcome = "concrete"
	OutcomeEmbedded  Outcome = "embedded"
	OutcomeInterface Outcome = "interface"
	OutcomeFallback  Outcome = "fallback"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeError     Outcome = "error"
)

// Observer receives one call per resolution attempt.
type Observer interface {
	ObserveResolution(f Family, outcome Outcome, elapsed time.Duration)
}

// Resolver picks and builds the most specific adapter for an owner. Selections are
// cached per (family, concrete type) since the registry cannot change once sealed.
type Resolver struct {
	registry *Registry
	logger   *slog.Logger
	observer Observer

	lineages   sync.Map // reflect.Type -> *lineage
	selections sync.Map // selectionKey -> *selection

	resolutions atomic.Int64
}

type selectionKey struct {
	family Family
	owner  reflect.Type
}

type selection struct {
	reg     Registration
	path    []int
	target  reflect.Type
	outcome Outcome
	err     error
}

// NewResolver creates a resolver over a sealed registry.
func NewResolver(registry *Registry, opts ...Option) (*Resolver, error) {
	if registry == nil {
		return nil, notInitializedError("registry")
	}
	if !registry.Sealed() {
		return nil, errors.NewError(errors.ErrCodeInvalidState, "registry must be sealed before resolving").
			WithComponent(component).
			WithOperation("new_resolver")
	}
	s := newSettings("adapter-resolver", opts)
	return &Resolver{
		registry: registry,
		logger:   s.logger,
		observer: s.observer,
	}, nil
}

// Registry returns the registry the resolver reads.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Resolutions returns how many adapters the resolver has built.
func (r *Resolver) Resolutions() int64 {
	return r.resolutions.Load()
}

// Select returns the registration that would serve owners of type t. It never builds
// an adapter.
func (r *Resolver) Select(t reflect.Type, f Family) (Registration, error) {
	if !f.valid() {
		return Registration{}, invalidAdapterError(f, nil, "family must be a named interface type")
	}
	if t == nil {
		return Registration{}, invalidStateError("select", "owner type is nil")
	}
	sel := r.selectFor(t, f)
	return sel.reg, sel.err
}

// Resolve builds a new adapter of family f bound to owner. Callers wanting one adapter
// per owner go through a Cache instead.
func (r *Resolver) Resolve(owner any, f Family) (Adapter, error) {
	start := time.Now()

	if !f.valid() {
		err := invalidAdapterError(f, nil, "family must be a named interface type")
		r.observe(f, OutcomeError, start)
		return nil, err
	}
	if owner == nil {
		r.observe(f, OutcomeError, start)
		return nil, invalidStateError("resolve", "cannot adapt a nil owner to %s", f)
	}

	ownerType := reflect.TypeOf(owner)
	sel := r.selectFor(ownerType, f)
	if sel.err != nil {
		r.observe(f, sel.outcome, start)
		if sel.outcome == OutcomeAmbiguous {
			r.logger.Error("ambiguous adapter registration",
				"family", f.Name(),
				"owner", typeName(ownerType),
				"error", sel.err)
		}
		return nil, sel.err
	}

	bound := owner
	if len(sel.path) > 0 {
		v, err := project(reflect.ValueOf(owner), sel.path, sel.target)
		if err != nil {
			r.observe(f, OutcomeError, start)
			return nil, err
		}
		bound = v.Interface()
	}

	r.resolutions.Add(1)
	built := sel.reg.build(bound)
	if err := checkBuilt(f, sel.reg, built); err != nil {
		r.observe(f, OutcomeError, start)
		return nil, err
	}

	r.observe(f, sel.outcome, start)
	r.logger.Debug("adapter resolved",
		"family", f.Name(),
		"owner", typeName(ownerType),
		"implementation", typeName(reflect.TypeOf(built)),
		"outcome", string(sel.outcome))
	return built, nil
}

func checkBuilt(f Family, reg Registration, built Adapter) error {
	if built == nil {
		return invalidAdapterError(f, reg.impl, "constructor returned nil")
	}
	if v := reflect.ValueOf(built); v.Kind() == reflect.Pointer && v.IsNil() {
		return invalidAdapterError(f, reg.impl, "constructor returned a nil pointer")
	}
	if got := built.AdapterFamily(); got != f {
		return invalidAdapterError(f, reg.impl, "adapter reports family "+got.Name())
	}
	return nil
}

func (r *Resolver) observe(f Family, outcome Outcome, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveResolution(f, outcome, time.Since(start))
	}
}

func (r *Resolver) lineageOf(t reflect.Type) *lineage {
	if l, ok := r.lineages.Load(t); ok {
		return l.(*lineage)
	}
	l, _ := r.lineages.LoadOrStore(t, buildLineage(t))
	return l.(*lineage)
}

func (r *Resolver) selectFor(t reflect.Type, f Family) *selection {
	key := selectionKey{family: f, owner: t}
	if sel, ok := r.selections.Load(key); ok {
		return sel.(*selection)
	}
	sel, _ := r.selections.LoadOrStore(key, r.compute(t, f))
	return sel.(*selection)
}

func (r *Resolver) compute(t reflect.Type, f Family) *selection {
	l := r.lineageOf(t)

	// Struct lineage, one depth at a time.
	for i := 0; i < len(l.nodes); {
		depth := l.nodes[i].depth
		var (
			matches []Registration
			winner  *selection
		)
		for ; i < len(l.nodes) && l.nodes[i].depth == depth; i++ {
			node := l.nodes[i]
			reg, ok := r.registry.exact(f, node.typ)
			if !ok {
				continue
			}
			matches = append(matches, reg)
			outcome := OutcomeEmbedded
			if depth == 0 {
				outcome = OutcomeConcrete
			}
			winner = &selection{reg: reg, path: node.path, target: node.typ, outcome: outcome}
		}
		if len(matches) > 1 {
			return &selection{outcome: OutcomeAmbiguous, err: ambiguousAdapterError(f, t, matches)}
		}
		if winner != nil {
			return winner
		}
	}

	// Interfaces the concrete type satisfies, most refined first.
	var implemented []Registration
	for _, reg := range r.registry.interfaces(f) {
		if t.Implements(reg.adaptable) {
			implemented = append(implemented, reg)
		}
	}
	if best := mostSpecific(implemented); len(best) == 1 {
		return &selection{reg: best[0], outcome: OutcomeInterface}
	} else if len(best) > 1 {
		return &selection{outcome: OutcomeAmbiguous, err: ambiguousAdapterError(f, t, best)}
	}

	if fb, ok := r.registry.Fallback(f); ok {
		return &selection{reg: fb, outcome: OutcomeFallback}
	}
	return &selection{outcome: OutcomeError, err: missingFallbackError([]string{f.Name()})}
}

// mostSpecific drops every interface that another candidate refines.
func mostSpecific(candidates []Registration) []Registration {
	var out []Registration
	for i, c := range candidates {
		dominated := false
		for j, other := range candidates {
			if i == j {
				continue
			}
			if other.adaptable.Implements(c.adaptable) && !c.adaptable.Implements(other.adaptable) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, c)
		}
	}
	return out
}
