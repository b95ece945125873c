// Package resource provides compound handles and the identity cache.
//
// A Compound wraps one native struct or object instance by address. The
// cache guarantees address identity: wrapping the same live address twice
// returns the same handle, so host-side equality follows native identity.
//
// # Ownership
//
// Handles carry one of two ownership modes:
//
//	OwnBorrowed   - aliases foreign memory, never freed by the bridge
//	OwnExclusive  - storage allocated by Allocate, freed at zero references
//
// # Lifecycle
//
// References are explicit and deterministic:
//
//	cache := resource.NewCache(mem, alloc)
//
//	// Wrap an instance pointer produced by native code
//	c, err := cache.Wrap(pointInfo, addr)
//
//	// Same address, same handle, one more reference
//	again, _ := cache.Wrap(pointInfo, addr)   // again == c
//
//	// Allocate a zeroed instance owned by the bridge
//	fresh, err := cache.Allocate(pointInfo)
//
//	// Drop references; the handle leaves the cache at zero
//	c.Release()
//
// Release of the last reference removes the cache entry immediately, so a
// later Wrap of a recycled address builds a fresh handle instead of
// resurrecting a dead one.
//
// # Casts
//
// Retype switches a live handle's descriptor in place. Checked casts keep
// the one-handle-per-address invariant instead of minting a second wrapper
// for the same instance.
//
// # Thread Safety
//
// One mutex serializes all cache and reference-count mutation. Handles may
// be shared across goroutines, though the bridge's call model is
// single-threaded.
package resource
