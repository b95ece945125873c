package marshal

import (
	"github.com/wippyai/native-bridge/errors"
)

// MaxStringSize caps NUL-terminated reads so a missing terminator cannot
// walk the whole address space.
const MaxStringSize = 1 << 20 // 1MB

// ReadCString reads a NUL-terminated string from native memory.
func ReadCString(mem Memory, addr uint32) (string, error) {
	if mem == nil {
		return "", errors.InvalidInput(errors.PhaseDecode, "no memory attached")
	}
	if addr == 0 {
		return "", errors.New(errors.PhaseDecode, errors.KindNilPointer).
			Detail("string pointer is null").
			Build()
	}

	buf := make([]byte, 0, 32)
	for i := uint32(0); i < MaxStringSize; i++ {
		b, err := mem.ReadU8(addr + i)
		if err != nil {
			return "", errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "string read failed")
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
	return "", errors.InvalidData(errors.PhaseDecode, nil, "string exceeds maximum size")
}

// WriteCString copies s into a fresh native allocation with a trailing NUL
// and returns its address. When allocs is non-nil the allocation is recorded
// there; otherwise the caller owns the memory.
func WriteCString(mem Memory, alloc Allocator, s string, allocs *AllocationList) (uint32, error) {
	if mem == nil || alloc == nil {
		return 0, errors.InvalidInput(errors.PhaseEncode, "no allocator attached")
	}

	size := uint32(len(s)) + 1
	ptr, err := alloc.Alloc(size, 1)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindAllocation, err, "string allocation failed")
	}

	buf := make([]byte, size)
	copy(buf, s)
	if err := mem.Write(ptr, buf); err != nil {
		alloc.Free(ptr, size, 1)
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "string write failed")
	}
	if allocs != nil {
		allocs.Add(ptr, size, 1)
	}
	return ptr, nil
}
