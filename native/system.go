package native

import nativebridge "github.com/wippyai/native-bridge"

// NewSystem assembles an in-process system from one heap and one
// dispatch table. The heap provides storage and allocation; the table
// provides symbols and dispatch.
func NewSystem(heap *Heap, table *Table) nativebridge.System {
	return nativebridge.System{
		Memory:    heap,
		Allocator: heap,
		Dispatch:  table,
		Resolver:  table,
	}
}
