package resource

import (
	"sync"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/typeinfo"
)

// Cache is the identity table mapping native addresses to live compound
// handles. At most one handle exists per address; wrapping an address twice
// returns the same handle with another reference. Entries leave the table
// exactly when their reference count reaches zero.
type Cache struct {
	mem    nativebridge.Memory
	alloc  nativebridge.Allocator
	byAddr map[uint32]*Compound
	mu     sync.Mutex
	closed bool
}

// NewCache creates an identity cache. Memory and allocator serve Allocate;
// a cache used only for wrapping foreign instances may pass nil for both.
func NewCache(mem nativebridge.Memory, alloc nativebridge.Allocator) *Cache {
	return &Cache{
		mem:    mem,
		alloc:  alloc,
		byAddr: make(map[uint32]*Compound, 16),
	}
}

// Wrap returns the handle for an existing instance address. Address zero is
// the null instance and yields (nil, nil). A cached address comes back with
// one more reference regardless of the descriptor requested; a new address
// produces a borrowed handle.
func (t *Cache) Wrap(info typeinfo.Info, addr uint32) (*Compound, error) {
	if info == nil {
		return nil, errors.InvalidInput(errors.PhaseDecode, "wrap requires a descriptor")
	}
	if addr == 0 {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errors.InvalidInput(errors.PhaseDecode, "identity cache closed")
	}

	if c, ok := t.byAddr[addr]; ok {
		c.refs++
		return c, nil
	}

	c := &Compound{
		cache: t,
		info:  info,
		addr:  addr,
		mode:  OwnBorrowed,
		refs:  1,
	}
	t.byAddr[addr] = c
	return c, nil
}

// Allocate creates a zeroed instance of a struct or object descriptor and
// returns an exclusively owned handle, already registered in the cache.
func (t *Cache) Allocate(info typeinfo.Info) (*Compound, error) {
	var size, align uint32
	switch i := info.(type) {
	case *typeinfo.StructInfo:
		size, align = i.Size, i.Align
	case *typeinfo.ObjectInfo:
		size, align = i.Size, i.Align
	default:
		return nil, errors.Unsupported(errors.PhaseMemory,
			"cannot allocate "+info.Header().Qualified())
	}
	if size == 0 {
		return nil, errors.InvalidInput(errors.PhaseMemory,
			"descriptor "+info.Header().Qualified()+" is opaque, size unknown")
	}
	if align == 0 {
		align = 1
	}
	if t.mem == nil || t.alloc == nil {
		return nil, errors.InvalidInput(errors.PhaseMemory, "identity cache has no allocator")
	}

	addr, err := t.alloc.Alloc(size, align)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err,
			"allocate "+info.Header().Qualified())
	}
	if err := t.mem.Write(addr, make([]byte, size)); err != nil {
		t.alloc.Free(addr, size, align)
		return nil, errors.Wrap(errors.PhaseMemory, errors.KindOutOfBounds, err,
			"zero "+info.Header().Qualified())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.alloc.Free(addr, size, align)
		return nil, errors.InvalidInput(errors.PhaseMemory, "identity cache closed")
	}

	c := &Compound{
		cache: t,
		info:  info,
		addr:  addr,
		size:  size,
		align: align,
		mode:  OwnExclusive,
		refs:  1,
	}
	t.byAddr[addr] = c
	return c, nil
}

// Adopt wraps an instance address whose storage ownership transferred to
// the bridge: the handle is exclusive and the storage goes back to the
// allocator when the last reference drops. Adopting an address that is
// cached as borrowed upgrades the handle in place. Opaque descriptors
// (unknown size) fall back to borrowing since their storage cannot be
// measured for the allocator.
func (t *Cache) Adopt(info typeinfo.Info, addr uint32) (*Compound, error) {
	if info == nil {
		return nil, errors.InvalidInput(errors.PhaseDecode, "adopt requires a descriptor")
	}
	if addr == 0 {
		return nil, nil
	}
	size, align := instanceLayout(info)
	if size == 0 {
		return t.Wrap(info, addr)
	}
	if align == 0 {
		align = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errors.InvalidInput(errors.PhaseDecode, "identity cache closed")
	}

	if c, ok := t.byAddr[addr]; ok {
		c.refs++
		if c.mode == OwnBorrowed {
			c.mode = OwnExclusive
			c.size = size
			c.align = align
		}
		return c, nil
	}

	c := &Compound{
		cache: t,
		info:  info,
		addr:  addr,
		size:  size,
		align: align,
		mode:  OwnExclusive,
		refs:  1,
	}
	t.byAddr[addr] = c
	return c, nil
}

func instanceLayout(info typeinfo.Info) (size, align uint32) {
	switch i := info.(type) {
	case *typeinfo.StructInfo:
		return i.Size, i.Align
	case *typeinfo.ObjectInfo:
		return i.Size, i.Align
	}
	return 0, 0
}

// Lookup peeks at the cache without taking a reference.
func (t *Cache) Lookup(addr uint32) (*Compound, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byAddr[addr]
	return c, ok
}

// Retype switches the descriptor of a live handle, preserving its address
// identity. Used by checked casts.
func (t *Cache) Retype(c *Compound, info typeinfo.Info) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c.info = info
}

// Len returns the number of live handles.
func (t *Cache) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byAddr)
}

// Each iterates over live handles until fn returns false.
func (t *Cache) Each(fn func(*Compound) bool) {
	t.mu.Lock()
	handles := make([]*Compound, 0, len(t.byAddr))
	for _, c := range t.byAddr {
		handles = append(handles, c)
	}
	t.mu.Unlock()

	for _, c := range handles {
		if !fn(c) {
			break
		}
	}
}

// Close drops every live handle, freeing exclusively owned storage, and
// stops accepting new entries.
func (t *Cache) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for addr, c := range t.byAddr {
		c.refs = 0
		if c.mode == OwnExclusive && t.alloc != nil {
			t.alloc.Free(c.addr, c.size, c.align)
		}
		delete(t.byAddr, addr)
	}
	return nil
}

func (t *Cache) release(c *Compound) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c.refs <= 0 {
		return false
	}
	c.refs--
	if c.refs > 0 {
		return false
	}

	delete(t.byAddr, c.addr)
	if c.mode == OwnExclusive && t.alloc != nil {
		t.alloc.Free(c.addr, c.size, c.align)
	}
	return true
}
