// Package marshal converts values between Go and native call slots.
//
// Every native call and field access funnels through one Marshaler, which
// holds the memory view, the allocator for temporary native copies, and the
// identity cache that keeps compound wrappers unique per address.
//
// # Slot model
//
// Native calls exchange 64-bit slots. Scalars travel in the slot itself,
// sign-extended to full width; pointers occupy the low 32 bits. FromHost
// builds slots from Go values, ToHost takes them apart:
//
//	m := marshal.New(mem, alloc, cache)
//
//	slot, err := m.FromHost(typeinfo.Scalar(typeinfo.KindInt32), -12345, false, allocs)
//	vec, err := m.ToHost(typeinfo.Scalar(typeinfo.KindInt32), slot, typeinfo.TransferNone)
//	// vec[0] == int32(-12345)
//
// ToHost returns a value vector rather than a single value: void produces
// no values, a null pointer produces an explicit nil, and interface kinds
// the host cannot represent produce no values without failing the call.
//
// # Strings
//
// String slots point at NUL-terminated native memory. FromHost copies the
// Go string into a fresh native allocation and records it in the given
// AllocationList so the caller can free temporaries after dispatch. ToHost
// copies the native bytes into a Go string and, under TransferEverything,
// frees the native copy it now owns.
//
// # Compounds
//
// Struct and object slots carry instance addresses. ToHost wraps them
// through the identity cache, so decoding the same address twice yields
// the same *resource.Compound. FromHost accepts a compound whose type
// matches the descriptor or, for objects, any descendant type.
//
// # Fields
//
// GetField and SetField apply the same conversions at field offsets
// resolved through the compound's descriptor. Reads honor the Readable
// flag, writes the Writable flag. Enum fields are stored inline at their
// storage width; struct, object and string fields hold pointers.
//
// # Allocation tracking
//
// AllocationList collects the native allocations one call produced:
//
//	allocs := marshal.NewAllocationList()
//	defer allocs.FreeAndRelease(alloc)
//
// Lists are pooled; Release returns them for reuse.
package marshal
