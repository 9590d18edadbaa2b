package adapter

import (
	"fmt"
	"reflect"
)

// Registration binds an adapter implementation to a family and an adaptable type.
// Build registrations with Declare or DeclareFallback.
type Registration struct {
	family    Family
	adaptable reflect.Type // nil for fallbacks
	impl      reflect.Type
	fallback  bool
	build     func(owner any) Adapter
	err       error
}

// Declare registers build as the constructor of family F adapters for owners of type A.
// A is a pointer type, an interface, or a named non-struct type; struct value types are
// rejected with INVALID_ADAPTER. The owner passed to build is the adaptable itself or,
// when A is an embedded ancestor, a pointer into the live owner.
//
//	adapter.Declare[stats.CacheStatistics](stats.NewLRUStatistics)
func Declare[F any, A any, I Adapter](build func(owner A) I) Registration {
	r := Registration{
		family:    FamilyOf[F](),
		adaptable: reflect.TypeOf((*A)(nil)).Elem(),
		impl:      reflect.TypeOf((*I)(nil)).Elem(),
	}
	if build == nil {
		r.err = invalidAdapterError(r.family, r.impl, "nil constructor")
		return r
	}
	r.build = func(owner any) Adapter {
		return build(owner.(A))
	}
	if r.adaptable.Kind() == reflect.Struct {
		r.err = invalidAdapterError(r.family, r.impl,
			"struct value "+r.adaptable.String()+" cannot be an adaptable type, declare the pointer type")
		return r
	}
	r.err = r.validate()
	return r
}

// MustDeclare is like Declare but panics when the declaration is invalid.
func MustDeclare[F any, A any, I Adapter](build func(owner A) I) Registration {
	r := Declare[F, A, I](build)
	if r.err != nil {
		panic(r.err)
	}
	return r
}

// DeclareFallback registers build as the fallback of family F. The fallback is used
// when no registration matches the owner's type, and receives the owner unchanged.
func DeclareFallback[F any, I Adapter](build func(owner any) I) Registration {
	r := Registration{
		family:   FamilyOf[F](),
		impl:     reflect.TypeOf((*I)(nil)).Elem(),
		fallback: true,
	}
	if build == nil {
		r.err = invalidAdapterError(r.family, r.impl, "nil constructor")
		return r
	}
	r.build = func(owner any) Adapter {
		return build(owner)
	}
	r.err = r.validate()
	return r
}

// MustDeclareFallback is like DeclareFallback but panics when the declaration is invalid.
func MustDeclareFallback[F any, I Adapter](build func(owner any) I) Registration {
	r := DeclareFallback[F, I](build)
	if r.err != nil {
		panic(r.err)
	}
	return r
}

func (r Registration) validate() error {
	if r.build == nil || r.impl == nil || (!r.fallback && r.adaptable == nil) {
		return invalidAdapterError(r.family, r.impl, "incomplete registration, use Declare or DeclareFallback")
	}
	if !r.family.valid() {
		return invalidAdapterError(r.family, r.impl, "family must be a named interface type")
	}
	if !r.impl.Implements(r.family.t) {
		return invalidAdapterError(r.family, r.impl, "implementation does not satisfy the family")
	}
	return nil
}

// Family returns the family the registration serves.
func (r Registration) Family() Family { return r.family }

// SupportedAdaptableType returns the owner type the registration supports, nil for
// fallbacks.
func (r Registration) SupportedAdaptableType() reflect.Type { return r.adaptable }

// Implementation returns the adapter type produced by the registration.
func (r Registration) Implementation() reflect.Type { return r.impl }

// IsFallback reports whether the registration is the family fallback.
func (r Registration) IsFallback() bool { return r.fallback }

// Err returns the declaration error, if any.
func (r Registration) Err() error { return r.err }

func (r Registration) String() string {
	if r.fallback {
		return fmt.Sprintf("%s: * => %s (fallback)", r.family, typeName(r.impl))
	}
	return fmt.Sprintf("%s: %s => %s", r.family, typeName(r.adaptable), typeName(r.impl))
}

func (r Registration) sameImplementation(other Registration) bool {
	return r.impl == other.impl
}
