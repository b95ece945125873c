package native

import (
	"encoding/binary"
	"sort"
	"sync"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/typeinfo"
)

const (
	// minHeapSize keeps tiny heaps usable; anything smaller is rounded up.
	minHeapSize = 4 * 1024

	// heapReserve keeps the zero address unallocatable so 0 stays the
	// null pointer.
	heapReserve = 8
)

// span is one contiguous free region. The free list stays sorted by
// address with adjacent spans coalesced.
type span struct {
	addr uint32
	size uint32
}

// Heap is an in-process linear memory with a first-fit allocator. One
// Heap can back a whole System: it satisfies Memory, MemorySizer and
// Allocator.
//
// Allocation and free are safe for concurrent use. Raw reads and writes
// are not synchronized; callers serialize access to regions they share.
type Heap struct {
	data []byte

	mu   sync.Mutex
	free []span
}

var (
	_ nativebridge.Memory      = (*Heap)(nil)
	_ nativebridge.MemorySizer = (*Heap)(nil)
	_ nativebridge.Allocator   = (*Heap)(nil)
)

// NewHeap creates a zeroed heap of the given byte size. Sizes below the
// minimum are rounded up; sizes reaching into the descriptor address
// range are rejected so heap pointers and descriptor handles never
// collide.
func NewHeap(size uint32) (*Heap, error) {
	if size < minHeapSize {
		size = minHeapSize
	}
	// Align in 64 bits: sizes near the uint32 ceiling must not wrap.
	aligned := (uint64(size) + 7) &^ 7
	if aligned >= uint64(typeinfo.DescriptorBase) {
		return nil, errors.InvalidInput(errors.PhaseMemory, "heap size overlaps descriptor addresses")
	}
	size = uint32(aligned)
	return &Heap{
		data: make([]byte, size),
		free: []span{{addr: heapReserve, size: size - heapReserve}},
	}, nil
}

// Size returns the heap size in bytes.
func (h *Heap) Size() uint32 {
	return uint32(len(h.data))
}

// Alloc returns the address of a free block of at least size bytes at
// the requested alignment. Block contents are unspecified.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return 0, errors.InvalidInput(errors.PhaseMemory, "zero-size allocation")
	}
	if align == 0 {
		align = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.free {
		s := h.free[i]
		start := typeinfo.AlignTo(s.addr, align)
		pad := start - s.addr
		if s.size < pad || s.size-pad < size {
			continue
		}
		rest := s.size - pad - size

		switch {
		case pad == 0 && rest == 0:
			h.free = append(h.free[:i], h.free[i+1:]...)
		case pad == 0:
			h.free[i] = span{addr: start + size, size: rest}
		case rest == 0:
			h.free[i] = span{addr: s.addr, size: pad}
		default:
			h.free[i] = span{addr: s.addr, size: pad}
			h.free = append(h.free, span{})
			copy(h.free[i+2:], h.free[i+1:])
			h.free[i+1] = span{addr: start + size, size: rest}
		}
		return start, nil
	}
	return 0, errors.AllocationFailed(errors.PhaseMemory, size, align)
}

// Free returns a block to the heap. The block must have come from Alloc
// with the same size; freeing anything else corrupts the free list.
// Null and zero-size frees are ignored.
func (h *Heap) Free(ptr, size, align uint32) {
	_ = align
	if ptr == 0 || size == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].addr > ptr })
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = span{addr: ptr, size: size}

	if i+1 < len(h.free) && h.free[i].addr+h.free[i].size == h.free[i+1].addr {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].addr+h.free[i-1].size == h.free[i].addr {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

// FreeBytes reports the total bytes currently on the free list.
func (h *Heap) FreeBytes() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var total uint32
	for _, s := range h.free {
		total += s.size
	}
	return total
}

func (h *Heap) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(h.data)) {
		return errors.OutOfBounds(errors.PhaseMemory, nil, uint64(offset), uint64(length))
	}
	return nil
}

// Read returns a view of length bytes at offset. The slice aliases heap
// storage; it is valid until the region is overwritten.
func (h *Heap) Read(offset, length uint32) ([]byte, error) {
	if err := h.check(offset, length); err != nil {
		return nil, err
	}
	return h.data[offset : offset+length], nil
}

// Write copies data into the heap at offset.
func (h *Heap) Write(offset uint32, data []byte) error {
	if err := h.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(h.data[offset:], data)
	return nil
}

func (h *Heap) ReadU8(offset uint32) (uint8, error) {
	if err := h.check(offset, 1); err != nil {
		return 0, err
	}
	return h.data[offset], nil
}

func (h *Heap) ReadU16(offset uint32) (uint16, error) {
	if err := h.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(h.data[offset:]), nil
}

func (h *Heap) ReadU32(offset uint32) (uint32, error) {
	if err := h.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(h.data[offset:]), nil
}

func (h *Heap) ReadU64(offset uint32) (uint64, error) {
	if err := h.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(h.data[offset:]), nil
}

func (h *Heap) WriteU8(offset uint32, value uint8) error {
	if err := h.check(offset, 1); err != nil {
		return err
	}
	h.data[offset] = value
	return nil
}

func (h *Heap) WriteU16(offset uint32, value uint16) error {
	if err := h.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(h.data[offset:], value)
	return nil
}

func (h *Heap) WriteU32(offset uint32, value uint32) error {
	if err := h.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(h.data[offset:], value)
	return nil
}

func (h *Heap) WriteU64(offset uint32, value uint64) error {
	if err := h.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(h.data[offset:], value)
	return nil
}
