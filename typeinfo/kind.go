package typeinfo

// Kind identifies the native representation of a value.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindInt      // native int, 32-bit ABI
	KindUint     // native unsigned int, 32-bit ABI
	KindSize     // pointer-sized unsigned
	KindSSize    // pointer-sized signed
	KindGType    // registered type identifier
	KindString   // pointer to NUL-terminated UTF-8
	KindFilename // pointer to NUL-terminated path
	KindInterface
)

var kindNames = [...]string{
	KindVoid:      "void",
	KindBool:      "bool",
	KindInt8:      "int8",
	KindUint8:     "uint8",
	KindInt16:     "int16",
	KindUint16:    "uint16",
	KindInt32:     "int32",
	KindUint32:    "uint32",
	KindInt64:     "int64",
	KindUint64:    "uint64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindInt:       "int",
	KindUint:      "uint",
	KindSize:      "size",
	KindSSize:     "ssize",
	KindGType:     "gtype",
	KindString:    "string",
	KindFilename:  "filename",
	KindInterface: "interface",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScalar reports whether the kind is a plain numeric or boolean value.
func (k Kind) IsScalar() bool {
	return k >= KindBool && k <= KindGType
}

// IsPointer reports whether the kind occupies a pointer slot in native memory.
func (k Kind) IsPointer() bool {
	return k == KindString || k == KindFilename || k == KindInterface
}

// Size returns the native byte width of the kind. Pointers are 4 bytes on
// the 32-bit ABI; void has no storage.
func (k Kind) Size() uint32 {
	switch k {
	case KindVoid:
		return 0
	case KindBool, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32, KindInt, KindUint,
		KindSize, KindSSize, KindGType, KindString, KindFilename, KindInterface:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	default:
		return 0
	}
}

// Align returns the native alignment of the kind. Alignment equals size for
// every sized kind.
func (k Kind) Align() uint32 {
	if s := k.Size(); s > 0 {
		return s
	}
	return 1
}

// Signed reports whether the kind is a signed integer.
func (k Kind) Signed() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindInt, KindSSize:
		return true
	default:
		return false
	}
}
