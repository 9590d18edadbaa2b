package adapter

import (
	"reflect"
)

// Family identifies a capability contract. It wraps the reflect.Type of a named interface.
// The zero Family is invalid.
type Family struct {
	t reflect.Type
}

// FamilyOf returns the family for the interface type F.
func FamilyOf[F any]() Family {
	return Family{t: reflect.TypeOf((*F)(nil)).Elem()}
}

// Type returns the underlying interface type.
func (f Family) Type() reflect.Type {
	return f.t
}

// IsZero reports whether f was never initialized.
func (f Family) IsZero() bool {
	return f.t == nil
}

// Name returns the package-qualified short name, e.g. "stats.CacheStatistics".
func (f Family) Name() string {
	if f.t == nil {
		return "<nil>"
	}
	return f.t.String()
}

func (f Family) String() string {
	return f.Name()
}

// key is unique across packages that share a short name.
func (f Family) key() string {
	if f.t == nil {
		return ""
	}
	return f.t.PkgPath() + "." + f.t.Name()
}

func (f Family) valid() bool {
	return f.t != nil && f.t.Kind() == reflect.Interface && f.t.Name() != ""
}

// Adapter is implemented by every adapter. AdapterFamily names the contract the
// adapter fulfils and is used as the cache key by Cache.Set.
type Adapter interface {
	AdapterFamily() Family
}

// Adaptable is implemented by objects that hand out adapters.
type Adaptable interface {
	Adapt(f Family) (Adapter, error)
}

// As adapts a to the family F and returns the adapter typed as F.
func As[F any](a Adaptable) (F, error) {
	var zero F
	f := FamilyOf[F]()
	got, err := a.Adapt(f)
	if err != nil {
		return zero, err
	}
	typed, ok := got.(F)
	if !ok {
		return zero, invalidAdapterError(f, reflect.TypeOf(got), "adapter does not implement the family")
	}
	return typed, nil
}

// MustAs is like As but panics on error. Intended for tests and static wiring.
func MustAs[F any](a Adaptable) F {
	typed, err := As[F](a)
	if err != nil {
		panic(err)
	}
	return typed
}
