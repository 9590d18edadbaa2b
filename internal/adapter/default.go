package adapter

import (
	"sync/atomic"
)

var defaultResolver atomic.Pointer[Resolver]

// Install makes r the process-wide resolver used by caches created without one and
// returns the previously installed resolver. Passing nil uninstalls.
func Install(r *Resolver) *Resolver {
	return defaultResolver.Swap(r)
}

// Default returns the installed resolver, or nil.
func Default() *Resolver {
	return defaultResolver.Load()
}
