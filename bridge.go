package nativebridge

import "context"

// Memory represents native linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of native linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates memory in native linear memory
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// Dispatcher executes a native entry point against a call frame.
//
// The frame is a slice of 8-byte slots laid out by the caller: slot 0
// receives the return value, then one slot per argument in declared order,
// then the error slot when the callable reports errors. The callee reads
// argument slots and writes results (including the error-record address)
// in place before Dispatch returns.
type Dispatcher interface {
	Dispatch(ctx context.Context, entry uint32, frame []uint64) error
}

// SymbolResolver maps exported symbol names to dispatchable entry addresses.
type SymbolResolver interface {
	ResolveSymbol(symbol string) (uint32, error)
}

// System bundles the four capabilities a native backend must provide.
// Implementations live in the native package; the engine consumes this
// record without caring whether the backend is in-process or wazero-hosted.
type System struct {
	Memory    Memory
	Allocator Allocator
	Dispatch  Dispatcher
	Resolver  SymbolResolver
}
