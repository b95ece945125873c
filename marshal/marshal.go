package marshal

import (
	"math"

	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/resource"
	"github.com/wippyai/native-bridge/typeinfo"
)

// Marshaler converts between host values and native call slots. It is
// stateless apart from its memory, allocator and identity cache handles,
// so one instance can serve concurrent calls.
type Marshaler struct {
	mem   Memory
	alloc Allocator
	cache *resource.Cache
}

func New(mem Memory, alloc Allocator, cache *resource.Cache) *Marshaler {
	return &Marshaler{
		mem:   mem,
		alloc: alloc,
		cache: cache,
	}
}

// Cache exposes the identity cache compounds are wrapped through.
func (m *Marshaler) Cache() *resource.Cache {
	return m.cache
}

// ToHost converts one native slot into host values. The result is a vector:
// most kinds produce exactly one value, void produces none, and interface
// kinds without a host representation produce none without error. A null
// pointer slot produces an explicit nil value.
func (m *Marshaler) ToHost(desc typeinfo.TypeDesc, slot uint64, transfer typeinfo.Transfer) ([]any, error) {
	if desc.Kind.IsScalar() {
		return []any{scalarToHost(desc.Kind, slot)}, nil
	}

	switch desc.Kind {
	case typeinfo.KindVoid:
		return nil, nil

	case typeinfo.KindString, typeinfo.KindFilename:
		ptr := uint32(slot)
		if ptr == 0 {
			return []any{nil}, nil
		}
		s, err := ReadCString(m.mem, ptr)
		if err != nil {
			return nil, err
		}
		// Full transfer hands the native copy to us; drop it once decoded.
		if transfer == typeinfo.TransferEverything && m.alloc != nil {
			m.alloc.Free(ptr, uint32(len(s))+1, 1)
		}
		return []any{s}, nil

	case typeinfo.KindInterface:
		switch info := desc.Iface.(type) {
		case *typeinfo.EnumInfo:
			return []any{scalarToHost(info.Storage, slot)}, nil
		case *typeinfo.StructInfo, *typeinfo.ObjectInfo:
			addr := uint32(slot)
			if addr == 0 {
				return []any{nil}, nil
			}
			if m.cache == nil {
				return nil, errors.InvalidInput(errors.PhaseDecode, "no identity cache attached")
			}
			// Full transfer hands the instance storage to the handle.
			var (
				c   *resource.Compound
				err error
			)
			if transfer == typeinfo.TransferEverything {
				c, err = m.cache.Adopt(desc.Iface, addr)
			} else {
				c, err = m.cache.Wrap(desc.Iface, addr)
			}
			if err != nil {
				return nil, err
			}
			return []any{c}, nil
		}
		return nil, nil
	}

	return nil, errors.Unsupported(errors.PhaseDecode, "cannot decode kind "+desc.Kind.String())
}

// FromHost converts one host value into a native slot. A nil value encodes
// as a zero slot when optional, and fails otherwise. String values copy
// into fresh native memory; the copy is recorded in allocs when given,
// otherwise the caller owns it.
func (m *Marshaler) FromHost(desc typeinfo.TypeDesc, value any, optional bool, allocs *AllocationList) (uint64, error) {
	if value == nil {
		if optional {
			return 0, nil
		}
		return 0, errors.MissingValue(errors.PhaseEncode, nil, "argument value")
	}

	if desc.Kind.IsScalar() {
		return scalarFromHost(desc.Kind, value)
	}

	switch desc.Kind {
	case typeinfo.KindString, typeinfo.KindFilename:
		s, ok := value.(string)
		if !ok {
			return 0, mismatch(value, desc.Kind)
		}
		ptr, err := WriteCString(m.mem, m.alloc, s, allocs)
		if err != nil {
			return 0, err
		}
		return uint64(ptr), nil

	case typeinfo.KindInterface:
		switch info := desc.Iface.(type) {
		case *typeinfo.EnumInfo:
			return enumFromHost(info, value)
		case *typeinfo.StructInfo, *typeinfo.ObjectInfo:
			return compoundFromHost(desc.Iface, value, optional)
		}
		return 0, errors.Unsupported(errors.PhaseEncode, "cannot encode "+desc.String())
	}

	return 0, errors.Unsupported(errors.PhaseEncode, "cannot encode kind "+desc.Kind.String())
}

// enumFromHost accepts the numeric value or the declared value name.
func enumFromHost(info *typeinfo.EnumInfo, value any) (uint64, error) {
	if name, ok := value.(string); ok {
		v, found := info.ValueByName(name)
		if !found {
			return 0, errors.NotFound(errors.PhaseEncode, "enum value", info.Qualified()+"."+name)
		}
		return scalarFromHost(info.Storage, v)
	}
	return scalarFromHost(info.Storage, value)
}

func compoundFromHost(want typeinfo.Info, value any, optional bool) (uint64, error) {
	c, ok := value.(*resource.Compound)
	if !ok {
		return 0, errors.TypeMismatch(errors.PhaseEncode, nil, TypeName(value), want.Header().Qualified())
	}
	if c == nil {
		if optional {
			return 0, nil
		}
		return 0, errors.MissingValue(errors.PhaseEncode, nil, "compound argument")
	}
	if !compatible(c.Info(), want) {
		return 0, errors.TypeMismatch(errors.PhaseEncode, nil, c.Info().Header().Qualified(), want.Header().Qualified())
	}
	return uint64(c.Addr()), nil
}

// compatible reports whether a compound of type have may stand in for want.
// Objects match any type on their parent chain; everything else matches
// exactly.
func compatible(have, want typeinfo.Info) bool {
	if have == want {
		return true
	}
	o, ok := have.(*typeinfo.ObjectInfo)
	if !ok {
		return false
	}
	for o != nil {
		if typeinfo.Info(o) == want {
			return true
		}
		o = o.Parent
	}
	return false
}

func scalarToHost(kind typeinfo.Kind, slot uint64) any {
	switch kind {
	case typeinfo.KindBool:
		return slot != 0
	case typeinfo.KindInt8:
		return int8(slot)
	case typeinfo.KindUint8:
		return uint8(slot)
	case typeinfo.KindInt16:
		return int16(slot)
	case typeinfo.KindUint16:
		return uint16(slot)
	case typeinfo.KindInt32, typeinfo.KindInt, typeinfo.KindSSize:
		return int32(slot)
	case typeinfo.KindUint32, typeinfo.KindUint, typeinfo.KindSize:
		return uint32(slot)
	case typeinfo.KindInt64:
		return int64(slot)
	case typeinfo.KindUint64:
		return slot
	case typeinfo.KindFloat32:
		return math.Float32frombits(uint32(slot))
	case typeinfo.KindFloat64:
		return math.Float64frombits(slot)
	case typeinfo.KindGType:
		return typeinfo.GType(uint32(slot))
	}
	return nil
}

func scalarFromHost(kind typeinfo.Kind, value any) (uint64, error) {
	switch kind {
	case typeinfo.KindBool:
		b, ok := value.(bool)
		if !ok {
			return 0, mismatch(value, kind)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case typeinfo.KindInt8:
		return signedFromHost(kind, value, math.MinInt8, math.MaxInt8)
	case typeinfo.KindInt16:
		return signedFromHost(kind, value, math.MinInt16, math.MaxInt16)
	case typeinfo.KindInt32, typeinfo.KindInt, typeinfo.KindSSize:
		return signedFromHost(kind, value, math.MinInt32, math.MaxInt32)
	case typeinfo.KindInt64:
		return signedFromHost(kind, value, math.MinInt64, math.MaxInt64)
	case typeinfo.KindUint8:
		return unsignedFromHost(kind, value, math.MaxUint8)
	case typeinfo.KindUint16:
		return unsignedFromHost(kind, value, math.MaxUint16)
	case typeinfo.KindUint32, typeinfo.KindUint, typeinfo.KindSize:
		return unsignedFromHost(kind, value, math.MaxUint32)
	case typeinfo.KindUint64:
		return unsignedFromHost(kind, value, math.MaxUint64)
	case typeinfo.KindFloat32:
		f, ok := CoerceToFloat64(value)
		if !ok {
			return 0, mismatch(value, kind)
		}
		return uint64(math.Float32bits(float32(f))), nil
	case typeinfo.KindFloat64:
		f, ok := CoerceToFloat64(value)
		if !ok {
			return 0, mismatch(value, kind)
		}
		return math.Float64bits(f), nil
	case typeinfo.KindGType:
		if gt, ok := value.(typeinfo.GType); ok {
			return uint64(gt), nil
		}
		return unsignedFromHost(kind, value, math.MaxUint32)
	}
	return 0, errors.Unsupported(errors.PhaseEncode, "cannot encode kind "+kind.String())
}

// signedFromHost coerces value into a signed slot, sign-extended to the
// full slot width so narrow readers and wide readers agree.
func signedFromHost(kind typeinfo.Kind, value any, min, max int64) (uint64, error) {
	i, ok := CoerceToInt64(value)
	if !ok {
		return 0, mismatch(value, kind)
	}
	if i < min || i > max {
		return 0, errors.Overflow(errors.PhaseEncode, nil, value, kind.String())
	}
	return uint64(i), nil
}

func unsignedFromHost(kind typeinfo.Kind, value any, max uint64) (uint64, error) {
	u, ok := CoerceToUint64(value)
	if !ok {
		return 0, mismatch(value, kind)
	}
	if u > max {
		return 0, errors.Overflow(errors.PhaseEncode, nil, value, kind.String())
	}
	return u, nil
}

func mismatch(value any, kind typeinfo.Kind) error {
	return errors.TypeMismatch(errors.PhaseEncode, nil, TypeName(value), kind.String())
}
