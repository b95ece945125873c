package native

import (
	"math"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/marshal"
)

// Call is the view a native function gets of one dispatched frame.
// Slot 0 is the return slot; arguments start at slot 1 in declared
// order. Callables with an error channel have one extra trailing slot
// that Fail writes.
type Call struct {
	Frame []uint64
	Mem   nativebridge.Memory
	Alloc nativebridge.Allocator
}

// Args reports how many slots follow the return slot.
func (c *Call) Args() int {
	return len(c.Frame) - 1
}

// Arg returns argument slot i raw. Argument 0 is the slot after the
// return slot.
func (c *Call) Arg(i int) uint64 { return c.Frame[1+i] }

func (c *Call) Bool(i int) bool { return c.Arg(i) != 0 }
func (c *Call) I32(i int) int32 { return int32(c.Arg(i)) }
func (c *Call) U32(i int) uint32 { return uint32(c.Arg(i)) }
func (c *Call) I64(i int) int64 { return int64(c.Arg(i)) }
func (c *Call) U64(i int) uint64 { return c.Arg(i) }
func (c *Call) F32(i int) float32 { return math.Float32frombits(uint32(c.Arg(i))) }
func (c *Call) F64(i int) float64 { return math.Float64frombits(c.Arg(i)) }
func (c *Call) Ptr(i int) uint32 { return uint32(c.Arg(i)) }

// Str reads the NUL-terminated string argument i points at. A null
// pointer yields the empty string.
func (c *Call) Str(i int) (string, error) {
	ptr := c.Ptr(i)
	if ptr == 0 {
		return "", nil
	}
	return marshal.ReadCString(c.Mem, ptr)
}

// SetArg writes argument slot i, used for out and inout parameters.
// Signed values go through the typed setters so narrow widths stay
// sign-extended across the frame.
func (c *Call) SetArg(i int, v uint64) { c.Frame[1+i] = v }

func (c *Call) SetBool(i int, v bool) {
	if v {
		c.SetArg(i, 1)
	} else {
		c.SetArg(i, 0)
	}
}
func (c *Call) SetI32(i int, v int32) { c.SetArg(i, uint64(int64(v))) }
func (c *Call) SetU32(i int, v uint32) { c.SetArg(i, uint64(v)) }
func (c *Call) SetI64(i int, v int64) { c.SetArg(i, uint64(v)) }
func (c *Call) SetU64(i int, v uint64) { c.SetArg(i, v) }
func (c *Call) SetF32(i int, v float32) { c.SetArg(i, uint64(math.Float32bits(v))) }
func (c *Call) SetF64(i int, v float64) { c.SetArg(i, math.Float64bits(v)) }
func (c *Call) SetPtr(i int, addr uint32) { c.SetArg(i, uint64(addr)) }

// Return writes the raw return slot.
func (c *Call) Return(v uint64) { c.Frame[0] = v }

func (c *Call) ReturnBool(v bool) {
	if v {
		c.Frame[0] = 1
	} else {
		c.Frame[0] = 0
	}
}
func (c *Call) ReturnI32(v int32) { c.Frame[0] = uint64(int64(v)) }
func (c *Call) ReturnU32(v uint32) { c.Frame[0] = uint64(v) }
func (c *Call) ReturnI64(v int64) { c.Frame[0] = uint64(v) }
func (c *Call) ReturnU64(v uint64) { c.Frame[0] = v }
func (c *Call) ReturnF32(v float32) { c.Frame[0] = uint64(math.Float32bits(v)) }
func (c *Call) ReturnF64(v float64) { c.Frame[0] = math.Float64bits(v) }
func (c *Call) ReturnPtr(addr uint32) { c.Frame[0] = uint64(addr) }

// ReturnStr allocates a NUL-terminated copy of s and stores its address
// in the return slot. Ownership of the copy passes to the caller, so
// the callable declares its return with full transfer.
func (c *Call) ReturnStr(s string) error {
	ptr, err := marshal.WriteCString(c.Mem, c.Alloc, s, nil)
	if err != nil {
		return err
	}
	c.Frame[0] = uint64(ptr)
	return nil
}

// errorRecord layout: i32 code at 0, message pointer at 4.
const (
	errorRecordSize  = 8
	errorRecordAlign = 4
)

// Fail allocates an error record, fills it with code and msg, and
// stores its address in the trailing error slot. Only callables
// declared as throwing have that slot; Fail on any other frame would
// clobber the last argument. The caller decodes and frees the record.
func (c *Call) Fail(code int32, msg string) error {
	if c.Alloc == nil || c.Mem == nil {
		return errors.InvalidInput(errors.PhaseNative, "error reporting needs memory and an allocator")
	}

	var msgPtr uint32
	if msg != "" {
		ptr, err := marshal.WriteCString(c.Mem, c.Alloc, msg, nil)
		if err != nil {
			return err
		}
		msgPtr = ptr
	}

	rec, err := c.Alloc.Alloc(errorRecordSize, errorRecordAlign)
	if err != nil {
		if msgPtr != 0 {
			c.Alloc.Free(msgPtr, uint32(len(msg))+1, 1)
		}
		return errors.Wrap(errors.PhaseNative, errors.KindAllocation, err, "error record allocation failed")
	}
	if err := c.Mem.WriteU32(rec, uint32(code)); err != nil {
		return err
	}
	if err := c.Mem.WriteU32(rec+4, msgPtr); err != nil {
		return err
	}
	c.Frame[len(c.Frame)-1] = uint64(rec)
	return nil
}
