package resource

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/wippyai/native-bridge/typeinfo"
)

// mockMemory implements nativebridge.Memory for testing
type mockMemory struct {
	data []byte
}

func newMockMemory(size int) *mockMemory {
	return &mockMemory{data: make([]byte, size)}
}

func (m *mockMemory) Read(offset uint32, length uint32) ([]byte, error) {
	return m.data[offset : offset+length], nil
}

func (m *mockMemory) Write(offset uint32, data []byte) error {
	copy(m.data[offset:], data)
	return nil
}

func (m *mockMemory) ReadU8(offset uint32) (uint8, error) { return m.data[offset], nil }

func (m *mockMemory) ReadU16(offset uint32) (uint16, error) {
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

func (m *mockMemory) ReadU32(offset uint32) (uint32, error) {
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *mockMemory) ReadU64(offset uint32) (uint64, error) {
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *mockMemory) WriteU8(offset uint32, value uint8) error {
	m.data[offset] = value
	return nil
}

func (m *mockMemory) WriteU16(offset uint32, value uint16) error {
	binary.LittleEndian.PutUint16(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU32(offset uint32, value uint32) error {
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU64(offset uint32, value uint64) error {
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}

// mockAllocator implements nativebridge.Allocator and records frees
type mockAllocator struct {
	offset uint32
	freed  []uint32
}

func newMockAllocator() *mockAllocator {
	return &mockAllocator{offset: 1024}
}

func (a *mockAllocator) Alloc(size, align uint32) (uint32, error) {
	a.offset = (a.offset + align - 1) &^ (align - 1)
	ptr := a.offset
	a.offset += size
	return ptr, nil
}

func (a *mockAllocator) Free(ptr, size, align uint32) {
	a.freed = append(a.freed, ptr)
}

func pointInfo() *typeinfo.StructInfo {
	s := &typeinfo.StructInfo{
		InfoHeader: typeinfo.InfoHeader{Namespace: "demo", Name: "Point"},
		Fields: []typeinfo.FieldInfo{
			{Name: "x", Type: typeinfo.Scalar(typeinfo.KindInt32), Readable: true, Writable: true},
			{Name: "y", Type: typeinfo.Scalar(typeinfo.KindInt32), Readable: true, Writable: true},
		},
	}
	s.Size, s.Align = typeinfo.ComputeLayout(s.Fields, 0, 1)
	return s
}

func TestWrapIdentity(t *testing.T) {
	cache := NewCache(newMockMemory(4096), newMockAllocator())
	info := pointInfo()

	a, err := cache.Wrap(info, 0x100)
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	b, err := cache.Wrap(info, 0x100)
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	if a != b {
		t.Error("same address must yield the same handle")
	}
	if a.Refs() != 2 {
		t.Errorf("refs = %d, want 2", a.Refs())
	}

	c, _ := cache.Wrap(info, 0x200)
	if c == a {
		t.Error("distinct addresses must yield distinct handles")
	}
	if cache.Len() != 2 {
		t.Errorf("Len = %d, want 2", cache.Len())
	}
	if a.Mode() != OwnBorrowed {
		t.Errorf("wrapped handle mode = %v, want borrowed", a.Mode())
	}
}

func TestWrapNull(t *testing.T) {
	cache := NewCache(nil, nil)
	c, err := cache.Wrap(pointInfo(), 0)
	if err != nil {
		t.Fatalf("null wrap should not fail: %v", err)
	}
	if c != nil {
		t.Error("null address should yield no handle")
	}

	if _, err := cache.Wrap(nil, 0x10); err == nil {
		t.Error("nil descriptor should fail")
	}
}

func TestReleaseReclaims(t *testing.T) {
	cache := NewCache(nil, nil)
	info := pointInfo()

	a, _ := cache.Wrap(info, 0x100)
	b, _ := cache.Wrap(info, 0x100) // second reference

	if a.Release() {
		t.Error("first release should not reclaim")
	}
	if !b.Release() {
		t.Error("last release should reclaim")
	}
	if cache.Len() != 0 {
		t.Errorf("Len = %d after reclaim, want 0", cache.Len())
	}

	// Released handles stay dead.
	if a.Release() {
		t.Error("releasing a dead handle should be a no-op")
	}

	// The address can legally host a fresh handle afterwards.
	fresh, _ := cache.Wrap(info, 0x100)
	if fresh == a {
		t.Error("reclaimed address should produce a new handle")
	}
	if fresh.Refs() != 1 {
		t.Errorf("fresh refs = %d, want 1", fresh.Refs())
	}
}

func TestAllocate(t *testing.T) {
	mem := newMockMemory(4096)
	alloc := newMockAllocator()
	// Leave garbage where the allocation will land to verify zeroing.
	for i := range mem.data {
		mem.data[i] = 0xAA
	}
	cache := NewCache(mem, alloc)
	info := pointInfo()

	c, err := cache.Allocate(info)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if c.Mode() != OwnExclusive {
		t.Errorf("mode = %v, want exclusive", c.Mode())
	}
	if c.Addr() == 0 {
		t.Error("allocated address is null")
	}
	for i := uint32(0); i < info.Size; i++ {
		if mem.data[c.Addr()+i] != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}

	// Wrapping the fresh address returns the same handle.
	again, _ := cache.Wrap(info, c.Addr())
	if again != c {
		t.Error("allocated instance must be identity-cached")
	}
	again.Release()

	if !c.Release() {
		t.Error("last release should reclaim")
	}
	if len(alloc.freed) != 1 || alloc.freed[0] != c.Addr() {
		t.Errorf("freed = %v, want [%#x]", alloc.freed, c.Addr())
	}
}

func TestAllocateRejectsBadDescriptors(t *testing.T) {
	cache := NewCache(newMockMemory(64), newMockAllocator())

	opaque := &typeinfo.StructInfo{InfoHeader: typeinfo.InfoHeader{Namespace: "demo", Name: "Opaque"}}
	if _, err := cache.Allocate(opaque); err == nil {
		t.Error("opaque struct should not allocate")
	}

	enum := &typeinfo.EnumInfo{InfoHeader: typeinfo.InfoHeader{Namespace: "demo", Name: "Color"}}
	if _, err := cache.Allocate(enum); err == nil {
		t.Error("enum should not allocate")
	}

	bare := NewCache(nil, nil)
	if _, err := bare.Allocate(pointInfo()); err == nil {
		t.Error("cache without allocator should refuse")
	}
}

func TestAdoptOwnsStorage(t *testing.T) {
	mem := newMockMemory(4096)
	alloc := newMockAllocator()
	cache := NewCache(mem, alloc)
	info := pointInfo()

	c, err := cache.Adopt(info, 0x140)
	if err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}
	if c.Mode() != OwnExclusive {
		t.Errorf("mode = %v, want exclusive", c.Mode())
	}

	// Adopted storage goes back to the allocator on the last release.
	if !c.Release() {
		t.Error("last release should reclaim")
	}
	if len(alloc.freed) != 1 || alloc.freed[0] != 0x140 {
		t.Errorf("freed = %v, want [0x140]", alloc.freed)
	}
}

func TestAdoptUpgradesBorrowed(t *testing.T) {
	cache := NewCache(newMockMemory(4096), newMockAllocator())
	info := pointInfo()

	b, _ := cache.Wrap(info, 0x180)
	a, err := cache.Adopt(info, 0x180)
	if err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}
	if a != b {
		t.Error("adopt must preserve handle identity")
	}
	if a.Refs() != 2 {
		t.Errorf("refs = %d, want 2", a.Refs())
	}
	if a.Mode() != OwnExclusive {
		t.Errorf("mode = %v, want exclusive after upgrade", a.Mode())
	}
}

func TestAdoptOpaqueStaysBorrowed(t *testing.T) {
	cache := NewCache(newMockMemory(4096), newMockAllocator())
	opaque := &typeinfo.StructInfo{InfoHeader: typeinfo.InfoHeader{Namespace: "demo", Name: "Opaque"}}

	c, err := cache.Adopt(opaque, 0x1C0)
	if err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}
	if c.Mode() != OwnBorrowed {
		t.Errorf("mode = %v, want borrowed for unsized storage", c.Mode())
	}

	if got, _ := cache.Adopt(opaque, 0); got != nil {
		t.Error("null address should yield no handle")
	}
	if _, err := cache.Adopt(nil, 0x1C0); err == nil {
		t.Error("nil descriptor should fail")
	}
}

func TestRetypeKeepsIdentity(t *testing.T) {
	cache := NewCache(nil, nil)
	point := pointInfo()
	other := &typeinfo.StructInfo{InfoHeader: typeinfo.InfoHeader{Namespace: "demo", Name: "Size"}}

	c, _ := cache.Wrap(point, 0x300)
	cache.Retype(c, other)

	if c.Info() != typeinfo.Info(other) {
		t.Error("descriptor not switched")
	}
	if c.Addr() != 0x300 {
		t.Error("address must survive retype")
	}
	again, _ := cache.Wrap(point, 0x300)
	if again != c {
		t.Error("retyped handle must keep its cache identity")
	}
}

func TestCacheClose(t *testing.T) {
	mem := newMockMemory(4096)
	alloc := newMockAllocator()
	cache := NewCache(mem, alloc)

	c, _ := cache.Allocate(pointInfo())
	if _, err := cache.Wrap(pointInfo(), 0x700); err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}

	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("Len = %d after close, want 0", cache.Len())
	}
	if len(alloc.freed) != 1 || alloc.freed[0] != c.Addr() {
		t.Errorf("exclusive storage not freed on close: %v", alloc.freed)
	}

	if _, err := cache.Wrap(pointInfo(), 0x800); err == nil {
		t.Error("Wrap after close should fail")
	}
	if err := cache.Close(); err != nil {
		t.Errorf("double close should be silent: %v", err)
	}
}

func TestCompoundString(t *testing.T) {
	cache := NewCache(nil, nil)

	s, _ := cache.Wrap(pointInfo(), 0x1000)
	if got := s.String(); !strings.Contains(got, "native-struct") ||
		!strings.Contains(got, "demo.Point") || !strings.Contains(got, "0x1000") {
		t.Errorf("String() = %q", got)
	}

	obj := &typeinfo.ObjectInfo{InfoHeader: typeinfo.InfoHeader{Namespace: "demo", Name: "Widget"}}
	o, _ := cache.Wrap(obj, 0x2000)
	if got := o.String(); !strings.Contains(got, "native-object") {
		t.Errorf("String() = %q", got)
	}
}

func TestCacheEach(t *testing.T) {
	cache := NewCache(nil, nil)
	info := pointInfo()
	cache.Wrap(info, 0x10)
	cache.Wrap(info, 0x20)
	cache.Wrap(info, 0x30)

	seen := 0
	cache.Each(func(c *Compound) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Errorf("Each visited %d handles, want early stop at 2", seen)
	}
}
