// Package native provides the backends the engine dispatches into.
//
// Two systems are included. The in-process system pairs a Heap (linear
// memory with a first-fit allocator) with a Table that routes entry
// addresses to Go functions:
//
//	heap, _ := native.NewHeap(1 << 20)
//	table := native.NewTable(heap, heap)
//	table.Register("point_scale", func(ctx context.Context, call *native.Call) error {
//		call.ReturnI32(call.I32(0) * call.I32(1))
//		return nil
//	})
//	sys := native.NewSystem(heap, table)
//
// The wazero system adapts an instantiated guest module instead: the
// guest exports its memory, nb_alloc and nb_free, plus one function per
// entry point taking (frame_addr, slot_count). Dispatch copies the call
// frame through guest memory around each invocation.
//
// Registered functions receive a Call, the typed view of one frame:
// argument accessors (I32, U64, F64, Str, ...), result setters
// (ReturnI32, SetI32 for out parameters, ...), and Fail, which
// allocates an error record and parks its address in the trailing
// error slot. Records written by Fail become the caller's property.
package native
