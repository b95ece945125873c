package native

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/errors"
)

// Export names a guest module must provide to act as a native system.
// Entry points are resolved by their own export names.
const (
	GuestAlloc = "nb_alloc"
	GuestFree  = "nb_free"
)

// WazeroSystem adapts an instantiated wazero module to the System
// contract. The guest exports its linear memory plus nb_alloc/nb_free
// for allocation, and one function per entry point with the signature
// (frame_addr i32, slot_count i32). Frames are copied into guest memory
// before each dispatch and copied back after it.
type WazeroSystem struct {
	mod   api.Module
	mem   *WazeroMemory
	alloc *guestAllocator

	mu    sync.Mutex
	funcs map[uint32]api.Function
	bySym map[string]uint32
	next  uint32
}

var (
	_ nativebridge.Dispatcher     = (*WazeroSystem)(nil)
	_ nativebridge.SymbolResolver = (*WazeroSystem)(nil)
)

// NewWazeroSystem wraps an instantiated module. The module must export
// its memory and nb_alloc; a missing nb_free turns frees into no-ops.
func NewWazeroSystem(mod api.Module) (*WazeroSystem, error) {
	if mod == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "nil module")
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, errors.Load("module exports no memory", nil)
	}
	allocFn := mod.ExportedFunction(GuestAlloc)
	if allocFn == nil {
		return nil, errors.Load("module exports no "+GuestAlloc, nil)
	}
	freeFn := mod.ExportedFunction(GuestFree)
	if freeFn == nil {
		Logger().Warn("guest exports no free function, frees are dropped",
			zap.String("module", mod.Name()))
	}
	return &WazeroSystem{
		mod: mod,
		mem: NewWazeroMemory(mem),
		alloc: &guestAllocator{
			allocFn:  allocFn,
			freeFn:   freeFn,
			stackBuf: make([]uint64, 4),
		},
		funcs: make(map[uint32]api.Function),
		bySym: make(map[string]uint32),
		next:  1,
	}, nil
}

// System returns the four capability views of this guest.
func (s *WazeroSystem) System() nativebridge.System {
	return nativebridge.System{
		Memory:    s.mem,
		Allocator: s.alloc,
		Dispatch:  s,
		Resolver:  s,
	}
}

// Close closes the underlying module instance.
func (s *WazeroSystem) Close(ctx context.Context) error {
	return s.mod.Close(ctx)
}

// ResolveSymbol maps an exported function name to an entry address.
// Addresses are assigned on first resolution and stay stable.
func (s *WazeroSystem) ResolveSymbol(symbol string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if addr, ok := s.bySym[symbol]; ok {
		return addr, nil
	}
	fn := s.mod.ExportedFunction(symbol)
	if fn == nil {
		return 0, errors.SymbolMissing(symbol)
	}
	addr := s.next
	s.next++
	s.bySym[symbol] = addr
	s.funcs[addr] = fn
	return addr, nil
}

// Dispatch copies frame into guest memory, invokes the entry function
// with its address and slot count, and copies every slot back so out
// parameters and the return value reach the caller.
func (s *WazeroSystem) Dispatch(ctx context.Context, entry uint32, frame []uint64) error {
	s.mu.Lock()
	fn := s.funcs[entry]
	s.mu.Unlock()
	if fn == nil {
		return errors.New(errors.PhaseNative, errors.KindNotFound).
			Detail("no entry at address %d", entry).
			Build()
	}
	if len(frame) == 0 {
		return errors.InvalidInput(errors.PhaseNative, "empty call frame")
	}

	s.alloc.setContext(ctx)

	size := uint32(len(frame)) * 8
	addr, err := s.alloc.Alloc(size, 8)
	if err != nil {
		return errors.Wrap(errors.PhaseNative, errors.KindAllocation, err, "frame allocation failed")
	}
	defer s.alloc.Free(addr, size, 8)

	for i, slot := range frame {
		if err := s.mem.WriteU64(addr+uint32(i)*8, slot); err != nil {
			return errors.Wrap(errors.PhaseNative, errors.KindOutOfBounds, err, "frame copy-in failed")
		}
	}

	stack := []uint64{uint64(addr), uint64(len(frame))}
	if err := fn.CallWithStack(ctx, stack); err != nil {
		return err
	}

	for i := range frame {
		slot, err := s.mem.ReadU64(addr + uint32(i)*8)
		if err != nil {
			return errors.Wrap(errors.PhaseNative, errors.KindOutOfBounds, err, "frame copy-out failed")
		}
		frame[i] = slot
	}
	return nil
}

// guestAllocator drives the guest's exported allocator functions.
type guestAllocator struct {
	allocFn api.Function
	freeFn  api.Function

	stackMutex sync.Mutex
	currentCtx context.Context
	stackBuf   []uint64
}

var _ nativebridge.Allocator = (*guestAllocator)(nil)

func (a *guestAllocator) setContext(ctx context.Context) {
	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()
	a.currentCtx = ctx
}

func (a *guestAllocator) Alloc(size, align uint32) (uint32, error) {
	if a.allocFn == nil {
		return 0, errors.InvalidInput(errors.PhaseMemory, "no allocator available")
	}

	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()

	ctx := a.currentCtx
	if ctx == nil {
		ctx = context.Background()
	}

	a.stackBuf[0] = uint64(size)
	a.stackBuf[1] = uint64(align)
	if err := a.allocFn.CallWithStack(ctx, a.stackBuf[:2]); err != nil {
		return 0, errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "guest allocation failed")
	}
	ptr := uint32(a.stackBuf[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseMemory, size, align)
	}
	return ptr, nil
}

func (a *guestAllocator) Free(ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}

	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()

	ctx := a.currentCtx
	if ctx == nil {
		ctx = context.Background()
	}

	a.stackBuf[0] = uint64(ptr)
	a.stackBuf[1] = uint64(size)
	a.stackBuf[2] = uint64(align)
	if err := a.freeFn.CallWithStack(ctx, a.stackBuf[:3]); err != nil {
		Logger().Warn("guest free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// WazeroMemory wraps wazero memory to implement the Memory contract.
type WazeroMemory struct {
	mem api.Memory
}

var (
	_ nativebridge.Memory      = (*WazeroMemory)(nil)
	_ nativebridge.MemorySizer = (*WazeroMemory)(nil)
)

func NewWazeroMemory(mem api.Memory) *WazeroMemory {
	return &WazeroMemory{mem: mem}
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMemory, nil, uint64(offset), uint64(length))
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if ok := m.mem.Write(offset, data); !ok {
		return errors.OutOfBounds(errors.PhaseMemory, nil, uint64(offset), uint64(len(data)))
	}
	return nil
}

func (m *WazeroMemory) ReadU8(offset uint32) (uint8, error) {
	data, err := m.Read(offset, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (m *WazeroMemory) ReadU16(offset uint32) (uint16, error) {
	data, err := m.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return uint16(data[0]) | uint16(data[1])<<8, nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, nil, uint64(offset), 4)
	}
	return val, nil
}

func (m *WazeroMemory) ReadU64(offset uint32) (uint64, error) {
	val, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, nil, uint64(offset), 8)
	}
	return val, nil
}

func (m *WazeroMemory) WriteU8(offset uint32, value uint8) error {
	return m.Write(offset, []byte{value})
}

func (m *WazeroMemory) WriteU16(offset uint32, value uint16) error {
	return m.Write(offset, []byte{byte(value), byte(value >> 8)})
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if ok := m.mem.WriteUint32Le(offset, value); !ok {
		return errors.OutOfBounds(errors.PhaseMemory, nil, uint64(offset), 4)
	}
	return nil
}

func (m *WazeroMemory) WriteU64(offset uint32, value uint64) error {
	if ok := m.mem.WriteUint64Le(offset, value); !ok {
		return errors.OutOfBounds(errors.PhaseMemory, nil, uint64(offset), 8)
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}
