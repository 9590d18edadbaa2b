package adapter

import (
	"reflect"

	"github.com/capadapt/capadapt/pkg/errors"
)

const component = "adapter"

// Sentinels for errors.Is. Matching is by error code.
var (
	ErrDuplicateRegistration = errors.NewError(errors.ErrCodeDuplicateRegistration, "duplicate registration")
	ErrRegistrySealed        = errors.NewError(errors.ErrCodeRegistrySealed, "registry sealed")
	ErrAmbiguousAdapter      = errors.NewError(errors.ErrCodeAmbiguousAdapter, "ambiguous adapter")
	ErrMissingFallback       = errors.NewError(errors.ErrCodeMissingFallback, "missing fallback")
	ErrInvalidAdapter        = errors.NewError(errors.ErrCodeInvalidAdapter, "invalid adapter")
	ErrNotInitialized        = errors.NewError(errors.ErrCodeNotInitialized, "not initialized")
)

func typeName(t reflect.Type) string {
	if t == nil {
		return "<any>"
	}
	return t.String()
}

func duplicateRegistrationError(existing, incoming Registration) error {
	return errors.Newf(errors.ErrCodeDuplicateRegistration,
		"%s already registered for %s with a different implementation",
		incoming.family, typeName(incoming.adaptable)).
		WithComponent(component).
		WithOperation("register").
		WithContext("family", incoming.family.Name()).
		WithDetail("existing", typeName(existing.impl)).
		WithDetail("incoming", typeName(incoming.impl))
}

func registrySealedError(r Registration) error {
	return errors.Newf(errors.ErrCodeRegistrySealed,
		"cannot register %s for %s after the registry is sealed", typeName(r.impl), r.family).
		WithComponent(component).
		WithOperation("register")
}

func ambiguousAdapterError(f Family, owner reflect.Type, candidates []Registration) error {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, typeName(c.adaptable)+"=>"+typeName(c.impl))
	}
	return errors.Newf(errors.ErrCodeAmbiguousAdapter,
		"%d registrations of %s match %s at the same specificity", len(candidates), f, typeName(owner)).
		WithComponent(component).
		WithOperation("resolve").
		WithContext("family", f.Name()).
		WithDetail("candidates", names)
}

func missingFallbackError(families []string) error {
	return errors.Newf(errors.ErrCodeMissingFallback, "no fallback declared for %v", families).
		WithComponent(component).
		WithOperation("seal").
		WithDetail("families", families)
}

func invalidAdapterError(f Family, impl reflect.Type, reason string) error {
	return errors.Newf(errors.ErrCodeInvalidAdapter, "%s for %s: %s", typeName(impl), f, reason).
		WithComponent(component).
		WithContext("family", f.Name())
}

func notInitializedError(what string) error {
	return errors.Newf(errors.ErrCodeNotInitialized, "%s is not initialized", what).
		WithComponent(component)
}

func invalidStateError(op, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeInvalidState, format, args...).
		WithComponent(component).
		WithOperation(op)
}
