package adapter

import (
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// Option configures a Registry or a Resolver.
type Option func(*settings)

type settings struct {
	logger   *slog.Logger
	observer Observer
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver reports every resolution to o. Only used by resolvers.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		s.observer = o
	}
}

func newSettings(name string, opts []Option) settings {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", name)
	return s
}

// Registry holds adapter registrations grouped by family. It is populated during
// startup and sealed before concurrent use. Reads after Seal take no locks.
type Registry struct {
	mu       sync.RWMutex
	sealed   atomic.Bool
	families map[Family]*familyEntry
	logger   *slog.Logger
}

type familyEntry struct {
	family     Family
	byType     map[reflect.Type]Registration
	ordered    []Registration // registration order, fallback excluded
	interfaces []Registration // registrations whose adaptable type is an interface
	fallback   *Registration
}

// NewRegistry creates an empty, unsealed registry.
func NewRegistry(opts ...Option) *Registry {
	s := newSettings("adapter-registry", opts)
	return &Registry{
		families: make(map[Family]*familyEntry),
		logger:   s.logger,
	}
}

// Register adds registrations in order and stops at the first failure. Registering an
// identical (family, adaptable type, implementation) triple again is a no-op.
func (r *Registry) Register(regs ...Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range regs {
		if reg.err != nil {
			return reg.err
		}
		if err := reg.validate(); err != nil {
			return err
		}
		if r.sealed.Load() {
			return registrySealedError(reg)
		}
		if err := r.add(reg); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) add(reg Registration) error {
	entry, ok := r.families[reg.family]
	if !ok {
		entry = &familyEntry{
			family: reg.family,
			byType: make(map[reflect.Type]Registration),
		}
		r.families[reg.family] = entry
	}

	if reg.fallback {
		if entry.fallback != nil {
			if entry.fallback.sameImplementation(reg) {
				return nil
			}
			return duplicateRegistrationError(*entry.fallback, reg)
		}
		entry.fallback = &reg
		r.logger.Debug("fallback registered", "family", reg.family.Name(), "implementation", typeName(reg.impl))
		return nil
	}

	if existing, ok := entry.byType[reg.adaptable]; ok {
		if existing.sameImplementation(reg) {
			return nil
		}
		return duplicateRegistrationError(existing, reg)
	}

	entry.byType[reg.adaptable] = reg
	entry.ordered = append(entry.ordered, reg)
	if reg.adaptable.Kind() == reflect.Interface {
		entry.interfaces = append(entry.interfaces, reg)
	}
	r.logger.Debug("adapter registered",
		"family", reg.family.Name(),
		"adaptable", typeName(reg.adaptable),
		"implementation", typeName(reg.impl))
	return nil
}

// Seal freezes the registry. It fails with MISSING_FALLBACK, leaving the registry
// unsealed, when a family has no fallback. Sealing twice is a no-op.
func (r *Registry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return nil
	}

	var missing []string
	total := 0
	for f, entry := range r.families {
		total += len(entry.ordered)
		if entry.fallback == nil {
			missing = append(missing, f.Name())
			continue
		}
		total++
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return missingFallbackError(missing)
	}

	r.sealed.Store(true)
	r.logger.Info("adapter registry sealed", "families", len(r.families), "registrations", total)
	return nil
}

// Sealed reports whether Seal has succeeded.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// read runs fn with the registry maps safe to read.
func (r *Registry) read(fn func()) {
	if r.sealed.Load() {
		fn()
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn()
}

// Lookup returns the registrations of f in registration order, fallback excluded.
// Unknown families yield an empty slice.
func (r *Registry) Lookup(f Family) []Registration {
	var out []Registration
	r.read(func() {
		if entry, ok := r.families[f]; ok {
			out = make([]Registration, len(entry.ordered))
			copy(out, entry.ordered)
		}
	})
	if out == nil {
		out = []Registration{}
	}
	return out
}

// Fallback returns the fallback registration of f.
func (r *Registry) Fallback(f Family) (Registration, bool) {
	var (
		reg Registration
		ok  bool
	)
	r.read(func() {
		if entry, found := r.families[f]; found && entry.fallback != nil {
			reg, ok = *entry.fallback, true
		}
	})
	return reg, ok
}

// Families returns every known family sorted by name.
func (r *Registry) Families() []Family {
	var out []Family
	r.read(func() {
		out = make([]Family, 0, len(r.families))
		for f := range r.families {
			out = append(out, f)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registrations, fallbacks included.
func (r *Registry) Len() int {
	n := 0
	r.read(func() {
		for _, entry := range r.families {
			n += len(entry.ordered)
			if entry.fallback != nil {
				n++
			}
		}
	})
	return n
}

func (r *Registry) exact(f Family, t reflect.Type) (Registration, bool) {
	var (
		reg Registration
		ok  bool
	)
	r.read(func() {
		if entry, found := r.families[f]; found {
			reg, ok = entry.byType[t]
		}
	})
	return reg, ok
}

func (r *Registry) interfaces(f Family) []Registration {
	var out []Registration
	r.read(func() {
		if entry, found := r.families[f]; found {
			out = entry.interfaces
		}
	})
	return out
}
