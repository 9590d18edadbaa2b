package adapter

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IdempotentRegistration(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(Declare[Reporter](newBaseReporter)))
	require.NoError(t, reg.Register(Declare[Reporter](newBaseReporter)))
	require.NoError(t, reg.Register(
		DeclareFallback[Reporter](newNullReporter),
		DeclareFallback[Reporter](newNullReporter),
	))

	assert.Len(t, reg.Lookup(reporterFamily), 1)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Declare[Reporter](newBaseReporter)))

	conflicting := Declare[Reporter](func(b *Base) *nullReporter { return &nullReporter{owner: b} })
	err := reg.Register(conflicting)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateRegistration))
	assert.Contains(t, err.Error(), "*adapter.Base")

	require.NoError(t, reg.Register(DeclareFallback[Reporter](newNullReporter)))
	err = reg.Register(DeclareFallback[Reporter](func(owner any) *baseReporter { return nil }))
	assert.True(t, errors.Is(err, ErrDuplicateRegistration))

	// The original registration survives.
	got := reg.Lookup(reporterFamily)
	require.Len(t, got, 1)
	assert.Equal(t, reflect.TypeOf(&baseReporter{}), got[0].Implementation())
}

func TestRegistry_Sealed(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(
		Declare[Reporter](newBaseReporter),
		DeclareFallback[Reporter](newNullReporter),
	))
	require.NoError(t, reg.Seal())
	assert.True(t, reg.Sealed())
	require.NoError(t, reg.Seal(), "sealing twice is a no-op")

	err := reg.Register(Declare[Reporter](newDerivedReporter))
	assert.True(t, errors.Is(err, ErrRegistrySealed))

	// Even identical re-registration is refused once sealed.
	err = reg.Register(Declare[Reporter](newBaseReporter))
	assert.True(t, errors.Is(err, ErrRegistrySealed))
}

func TestRegistry_SealRequiresFallback(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Declare[Reporter](newBaseReporter)))

	err := reg.Seal()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFallback))
	assert.Contains(t, err.Error(), "adapter.Reporter")
	assert.False(t, reg.Sealed())

	require.NoError(t, reg.Register(DeclareFallback[Reporter](newNullReporter)))
	require.NoError(t, reg.Seal())
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(
		Declare[Reporter](newDerivedReporter),
		Declare[Reporter](newBaseReporter),
		Declare[Reporter](newNamedReporter),
		DeclareFallback[Reporter](newNullReporter),
	))

	got := reg.Lookup(reporterFamily)
	require.Len(t, got, 3)
	assert.Equal(t, reflect.TypeOf(&Derived{}), got[0].SupportedAdaptableType())
	assert.Equal(t, reflect.TypeOf(&Base{}), got[1].SupportedAdaptableType())
	assert.Equal(t, reflect.TypeOf((*Named)(nil)).Elem(), got[2].SupportedAdaptableType())

	fb, ok := reg.Fallback(reporterFamily)
	require.True(t, ok)
	assert.True(t, fb.IsFallback())
	assert.Nil(t, fb.SupportedAdaptableType())
	assert.Contains(t, fb.String(), "fallback")

	unknown := reg.Lookup(FamilyOf[Exporter]())
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)

	_, ok = reg.Fallback(FamilyOf[Exporter]())
	assert.False(t, ok)

	assert.Equal(t, []Family{reporterFamily}, reg.Families())
}

func TestDeclare_Invalid(t *testing.T) {
	tests := []struct {
		name string
		reg  Registration
	}{
		{
			name: "family is not an interface",
			reg:  Declare[Base](newBaseReporter),
		},
		{
			name: "implementation does not satisfy family",
			reg:  Declare[Exporter](newBaseReporter),
		},
		{
			name: "nil constructor",
			reg:  Declare[Reporter, *Base, *baseReporter](nil),
		},
		{
			name: "nil fallback constructor",
			reg:  DeclareFallback[Reporter, *nullReporter](nil),
		},
		{
			name: "struct value adaptable",
			reg:  Declare[Reporter](func(b Base) *baseReporter { return &baseReporter{owner: &b} }),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.reg.Err())
			assert.True(t, errors.Is(tt.reg.Err(), ErrInvalidAdapter))

			reg := NewRegistry()
			assert.True(t, errors.Is(reg.Register(tt.reg), ErrInvalidAdapter))
			assert.Equal(t, 0, reg.Len())
		})
	}
}

func TestRegistry_RejectsIncompleteRegistrations(t *testing.T) {
	reg := NewRegistry()

	var err error
	require.NotPanics(t, func() { err = reg.Register(Registration{}) })
	assert.True(t, errors.Is(err, ErrInvalidAdapter))

	partial := Declare[Reporter](newBaseReporter)
	partial.build = nil
	assert.True(t, errors.Is(reg.Register(partial), ErrInvalidAdapter))
	assert.Equal(t, 0, reg.Len())
}

func TestMustDeclare(t *testing.T) {
	reg := MustDeclare[Reporter](newBaseReporter)
	assert.Equal(t, reflect.TypeOf(&Base{}), reg.SupportedAdaptableType())
	assert.True(t, MustDeclareFallback[Reporter](newNullReporter).IsFallback())

	assert.Panics(t, func() { MustDeclare[Exporter](newBaseReporter) })
	assert.Panics(t, func() { MustDeclare[Reporter](func(b Base) *baseReporter { return nil }) })
	assert.Panics(t, func() { MustDeclareFallback[Reporter, *nullReporter](nil) })
}

func TestRegistry_ConcurrentRegisterBeforeSeal(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.Register(Declare[Reporter](newBaseReporter))
			_ = reg.Lookup(reporterFamily)
		}()
	}
	wg.Wait()

	assert.Len(t, reg.Lookup(reporterFamily), 1)
}
