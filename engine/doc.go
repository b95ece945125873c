// Package engine wires a descriptor repository to one native system and
// exposes the boundary operations a host needs: Find, Get, GType, Cast and
// Log.
//
// An engine owns the identity cache and the invoker cache for its system, so
// handles and prepared call plans are shared by everything resolved through
// it:
//
//	eng, err := engine.New(engine.Config{
//		Repository: repo,
//		System:     native.NewSystem(heap, table),
//	})
//
//	h, err := eng.Find("demo.divide", "")
//	v, err := eng.Get(h)
//	res, err := v.(*engine.Callable).Call(ctx, int32(42), int32(7))
//
// # Handles
//
// Find returns descriptor handles: compounds of the built-in meta.BaseInfo
// type whose address identifies the descriptor. They obey the same identity
// and reference rules as instance handles, so finding the same name twice
// yields the same handle with another reference.
//
// # Materialization
//
// Get matches on what the handle describes. Callables resolve their native
// symbol and come back bound and ready to call. Struct and object
// descriptors allocate a zeroed exclusive instance, objects with their
// registered type stamped into the header. Constants round-trip the
// declared value through the marshaler. Enums and anything else cannot be
// instantiated and fail with a structured error.
//
// The system pieces are optional: an engine built over a bare repository
// still resolves names and reads constants of scalar kinds, and fails with
// structured errors where memory, allocation, dispatch or symbol resolution
// would be needed.
package engine
