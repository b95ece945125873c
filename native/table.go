package native

import (
	"context"
	"sync"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/errors"
)

// Func is the body of one native entry point. It reads argument slots
// from the call and writes results in place; a non-nil error aborts the
// dispatch itself (use Call.Fail for errors the callable reports through
// its error channel).
type Func func(ctx context.Context, call *Call) error

type tableEntry struct {
	symbol string
	fn     Func
}

// Table maps symbol names to dispatchable entry addresses backed by Go
// functions. It satisfies both SymbolResolver and Dispatcher, so a Table
// plus a Heap form a complete in-process System.
type Table struct {
	mem   nativebridge.Memory
	alloc nativebridge.Allocator

	mu      sync.RWMutex
	entries map[uint32]tableEntry
	bySym   map[string]uint32
	next    uint32
}

var (
	_ nativebridge.Dispatcher     = (*Table)(nil)
	_ nativebridge.SymbolResolver = (*Table)(nil)
)

// NewTable creates an empty dispatch table. Registered functions see mem
// and alloc through their Call; either may be nil for callables that
// never touch memory.
func NewTable(mem nativebridge.Memory, alloc nativebridge.Allocator) *Table {
	return &Table{
		mem:     mem,
		alloc:   alloc,
		entries: make(map[uint32]tableEntry),
		bySym:   make(map[string]uint32),
		next:    1,
	}
}

// Register binds symbol to fn and returns the entry address callers
// dispatch on. Registering an existing symbol replaces its function and
// keeps the address, so resolved entries stay valid.
func (t *Table) Register(symbol string, fn Func) (uint32, error) {
	if symbol == "" {
		return 0, errors.InvalidInput(errors.PhaseNative, "empty symbol name")
	}
	if fn == nil {
		return 0, errors.InvalidInput(errors.PhaseNative, "nil function for symbol "+symbol)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if addr, ok := t.bySym[symbol]; ok {
		t.entries[addr] = tableEntry{symbol: symbol, fn: fn}
		return addr, nil
	}
	addr := t.next
	t.next++
	t.bySym[symbol] = addr
	t.entries[addr] = tableEntry{symbol: symbol, fn: fn}
	return addr, nil
}

// ResolveSymbol returns the entry address registered for symbol.
func (t *Table) ResolveSymbol(symbol string) (uint32, error) {
	t.mu.RLock()
	addr, ok := t.bySym[symbol]
	t.mu.RUnlock()
	if !ok {
		return 0, errors.SymbolMissing(symbol)
	}
	return addr, nil
}

// Dispatch runs the function registered at entry against frame.
func (t *Table) Dispatch(ctx context.Context, entry uint32, frame []uint64) error {
	t.mu.RLock()
	e, ok := t.entries[entry]
	t.mu.RUnlock()
	if !ok {
		return errors.New(errors.PhaseNative, errors.KindNotFound).
			Detail("no entry at address %d", entry).
			Build()
	}
	return e.fn(ctx, &Call{Frame: frame, Mem: t.mem, Alloc: t.alloc})
}

// Len reports how many symbols are registered.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bySym)
}
