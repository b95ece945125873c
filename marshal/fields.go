package marshal

import (
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/resource"
	"github.com/wippyai/native-bridge/typeinfo"
)

// GetField reads one compound field and converts it to a host value.
func (m *Marshaler) GetField(c *resource.Compound, name string) (any, error) {
	if c == nil {
		return nil, errors.New(errors.PhaseAccess, errors.KindNilPointer).
			Detail("nil compound").
			Build()
	}

	field, err := lookupField(c.Info(), name)
	if err != nil {
		return nil, err
	}
	if !field.Readable {
		return nil, errors.FieldNotReadable(containerPath(c.Info()), name)
	}

	slot, err := m.LoadSlot(fieldKind(field.Type), c.Addr()+field.Offset)
	if err != nil {
		return nil, err
	}
	vec, err := m.ToHost(field.Type, slot, typeinfo.TransferNone)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, nil
	}
	return vec[0], nil
}

// SetField converts a host value and stores it into one compound field.
// Pointer-typed fields accept nil and store a null pointer; string fields
// copy into native memory the compound does not track, so the previous
// string leaks unless the caller kept its address.
func (m *Marshaler) SetField(c *resource.Compound, name string, value any) error {
	if c == nil {
		return errors.New(errors.PhaseAccess, errors.KindNilPointer).
			Detail("nil compound").
			Build()
	}

	field, err := lookupField(c.Info(), name)
	if err != nil {
		return err
	}
	if !field.Writable {
		return errors.FieldNotWritable(containerPath(c.Info()), name)
	}

	kind := fieldKind(field.Type)
	slot, err := m.FromHost(field.Type, value, nullableField(field.Type), nil)
	if err != nil {
		return err
	}
	return m.StoreSlot(kind, c.Addr()+field.Offset, slot)
}

// LoadSlot reads a value of the kind's width from native memory and widens
// it into a call slot. Signed kinds are sign-extended so the slot carries
// the value at full width.
func (m *Marshaler) LoadSlot(kind typeinfo.Kind, addr uint32) (uint64, error) {
	if m.mem == nil {
		return 0, errors.InvalidInput(errors.PhaseAccess, "no memory attached")
	}

	switch kind.Size() {
	case 1:
		b, err := m.mem.ReadU8(addr)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseAccess, errors.KindOutOfBounds, err, "field read failed")
		}
		if kind.Signed() {
			return uint64(int64(int8(b))), nil
		}
		return uint64(b), nil
	case 2:
		v, err := m.mem.ReadU16(addr)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseAccess, errors.KindOutOfBounds, err, "field read failed")
		}
		if kind.Signed() {
			return uint64(int64(int16(v))), nil
		}
		return uint64(v), nil
	case 4:
		v, err := m.mem.ReadU32(addr)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseAccess, errors.KindOutOfBounds, err, "field read failed")
		}
		if kind.Signed() {
			return uint64(int64(int32(v))), nil
		}
		return uint64(v), nil
	case 8:
		v, err := m.mem.ReadU64(addr)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseAccess, errors.KindOutOfBounds, err, "field read failed")
		}
		return v, nil
	}
	return 0, errors.Unsupported(errors.PhaseAccess, "cannot load kind "+kind.String())
}

// StoreSlot writes the low bytes of a call slot into native memory at the
// kind's width.
func (m *Marshaler) StoreSlot(kind typeinfo.Kind, addr uint32, slot uint64) error {
	if m.mem == nil {
		return errors.InvalidInput(errors.PhaseAccess, "no memory attached")
	}

	var err error
	switch kind.Size() {
	case 1:
		err = m.mem.WriteU8(addr, uint8(slot))
	case 2:
		err = m.mem.WriteU16(addr, uint16(slot))
	case 4:
		err = m.mem.WriteU32(addr, uint32(slot))
	case 8:
		err = m.mem.WriteU64(addr, slot)
	default:
		return errors.Unsupported(errors.PhaseAccess, "cannot store kind "+kind.String())
	}
	if err != nil {
		return errors.Wrap(errors.PhaseAccess, errors.KindOutOfBounds, err, "field write failed")
	}
	return nil
}

// fieldKind maps a field descriptor onto the kind whose width governs its
// storage. Enum fields live inline at their storage width, struct and
// object fields as instance pointers.
func fieldKind(d typeinfo.TypeDesc) typeinfo.Kind {
	if d.Kind != typeinfo.KindInterface {
		return d.Kind
	}
	if e, ok := d.Iface.(*typeinfo.EnumInfo); ok {
		return e.Storage
	}
	return typeinfo.KindSize
}

// nullableField reports whether nil is a storable value for the field.
func nullableField(d typeinfo.TypeDesc) bool {
	if !d.Kind.IsPointer() {
		return false
	}
	if d.Kind == typeinfo.KindInterface {
		if _, ok := d.Iface.(*typeinfo.EnumInfo); ok {
			return false
		}
	}
	return true
}

func lookupField(info typeinfo.Info, name string) (*typeinfo.FieldInfo, error) {
	switch ti := info.(type) {
	case *typeinfo.StructInfo:
		if f, ok := ti.Field(name); ok {
			return f, nil
		}
	case *typeinfo.ObjectInfo:
		if f, ok := ti.Field(name); ok {
			return f, nil
		}
	default:
		return nil, errors.Unsupported(errors.PhaseAccess, info.Header().Qualified()+" has no fields")
	}
	return nil, errors.FieldUnknown(containerPath(info), name)
}

func containerPath(info typeinfo.Info) []string {
	return []string{info.Header().Qualified()}
}
