package typeinfo

// AlignTo rounds offset up to the next multiple of align.
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// FieldWidth returns the native storage size and alignment of a field's
// type. Enum fields are stored inline at their storage width; other
// interface-typed fields hold a pointer to the instance, never an
// embedded copy.
func FieldWidth(d TypeDesc) (size, align uint32) {
	if d.Kind == KindInterface {
		if e, ok := d.Iface.(*EnumInfo); ok {
			return e.Storage.Size(), e.Storage.Align()
		}
	}
	return d.Kind.Size(), d.Kind.Align()
}

// ComputeLayout assigns ascending offsets to fields starting at base and
// returns the total block size and alignment. Alignment never drops below
// minAlign, and the returned size is rounded up to the final alignment.
func ComputeLayout(fields []FieldInfo, base, minAlign uint32) (size, align uint32) {
	if minAlign == 0 {
		minAlign = 1
	}
	maxAlign := minAlign
	offset := base

	for i := range fields {
		fsize, falign := FieldWidth(fields[i].Type)

		offset = AlignTo(offset, falign)
		fields[i].Offset = offset

		if falign > maxAlign {
			maxAlign = falign
		}

		offset += fsize
	}

	return AlignTo(offset, maxAlign), maxAlign
}
