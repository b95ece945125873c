package typeinfo

import "fmt"

// GType is a registered type identifier. Zero is the invalid type.
type GType uint32

// GTypeInvalid is the zero GType.
const GTypeInvalid GType = 0

// TypeDesc describes the native type of one value: a scalar kind, or an
// interface kind referencing a registered descriptor.
type TypeDesc struct {
	Kind  Kind
	Iface Info // non-nil only when Kind is KindInterface
}

// Scalar returns a descriptor for a non-interface kind.
func Scalar(k Kind) TypeDesc {
	return TypeDesc{Kind: k}
}

// Iface returns a descriptor referencing a registered info.
func Iface(info Info) TypeDesc {
	return TypeDesc{Kind: KindInterface, Iface: info}
}

func (d TypeDesc) String() string {
	if d.Kind == KindInterface {
		if d.Iface == nil {
			return "interface(?)"
		}
		return d.Iface.Header().Qualified()
	}
	return d.Kind.String()
}

// InfoHeader carries the identity every descriptor shares.
type InfoHeader struct {
	Namespace string
	Name      string
}

// Header returns the shared identity; embedding promotes it onto every
// descriptor variant.
func (h InfoHeader) Header() InfoHeader { return h }

// Qualified renders "namespace.Name".
func (h InfoHeader) Qualified() string {
	if h.Namespace == "" {
		return h.Name
	}
	return h.Namespace + "." + h.Name
}

// Info is one registered descriptor: struct, object, enum, callable or
// constant. Descriptors are immutable once registered with a repository.
type Info interface {
	Header() InfoHeader
}

// FieldInfo describes one field of a struct or object.
type FieldInfo struct {
	Name     string
	Type     TypeDesc
	Offset   uint32
	Readable bool
	Writable bool
}

// StructInfo describes a plain record type laid out in native memory.
type StructInfo struct {
	InfoHeader
	Fields  []FieldInfo
	Methods []*CallableInfo
	Size    uint32
	Align   uint32
	Typed   bool  // request a registered type id at load time
	GType   GType // zero unless registered
}

// Field returns the named field.
func (s *StructInfo) Field(name string) (*FieldInfo, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Method returns the named method.
func (s *StructInfo) Method(name string) (*CallableInfo, bool) {
	return findMethod(s.Methods, name)
}

// ObjectInfo describes a typed instance: the first four bytes of every
// instance hold its GType, declared fields follow the parent block.
type ObjectInfo struct {
	InfoHeader
	Parent  *ObjectInfo
	Fields  []FieldInfo
	Methods []*CallableInfo
	Size    uint32 // total, including the type header and parent block
	Align   uint32
	GType   GType
}

// Field returns the named field, searching the parent chain after the
// object's own fields.
func (o *ObjectInfo) Field(name string) (*FieldInfo, bool) {
	for cur := o; cur != nil; cur = cur.Parent {
		for i := range cur.Fields {
			if cur.Fields[i].Name == name {
				return &cur.Fields[i], true
			}
		}
	}
	return nil, false
}

// Method returns the named method, searching the parent chain after the
// object's own methods.
func (o *ObjectInfo) Method(name string) (*CallableInfo, bool) {
	for cur := o; cur != nil; cur = cur.Parent {
		if m, ok := findMethod(cur.Methods, name); ok {
			return m, true
		}
	}
	return nil, false
}

// EnumValue is one named member of an enumeration.
type EnumValue struct {
	Name  string
	Value int64
}

// EnumInfo describes an enumeration with an explicit storage kind.
type EnumInfo struct {
	InfoHeader
	Storage Kind
	Values  []EnumValue
}

// ValueByName returns the numeric value of the named member.
func (e *EnumInfo) ValueByName(name string) (int64, bool) {
	for _, v := range e.Values {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// NameByValue returns the first member name carrying the value.
func (e *EnumInfo) NameByValue(value int64) (string, bool) {
	for _, v := range e.Values {
		if v.Value == value {
			return v.Name, true
		}
	}
	return "", false
}

// Direction tells which way a parameter travels.
type Direction uint8

const (
	DirIn Direction = iota
	DirOut
	DirInOut
)

var directionNames = [...]string{
	DirIn:    "in",
	DirOut:   "out",
	DirInOut: "inout",
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return "unknown"
}

// Transfer tells who owns a value after it crosses the boundary.
type Transfer uint8

const (
	TransferNone Transfer = iota
	TransferContainer
	TransferEverything
)

var transferNames = [...]string{
	TransferNone:       "none",
	TransferContainer:  "container",
	TransferEverything: "everything",
}

func (t Transfer) String() string {
	if int(t) < len(transferNames) {
		return transferNames[t]
	}
	return "unknown"
}

// Param describes one declared parameter of a callable.
type Param struct {
	Name            string
	Type            TypeDesc
	Direction       Direction
	Nullable        bool
	Optional        bool
	CallerAllocates bool
	Transfer        Transfer
}

// Signature describes the full calling contract of a callable.
type Signature struct {
	Params         []Param
	Return         TypeDesc
	ReturnTransfer Transfer
	Throws         bool
}

// CallableFlags mark how a callable binds to its container.
type CallableFlags uint8

const (
	FlagMethod CallableFlags = 1 << iota
	FlagConstructor
)

func (f CallableFlags) IsMethod() bool      { return f&FlagMethod != 0 }
func (f CallableFlags) IsConstructor() bool { return f&FlagConstructor != 0 }

// CallableInfo describes one invocable native function.
type CallableInfo struct {
	InfoHeader
	Symbol    string
	Flags     CallableFlags
	Container Info // nil for free functions
	Sig       *Signature
}

// HasSelf reports whether calls must pass the container instance first.
// Constructors are container-scoped but take no instance.
func (c *CallableInfo) HasSelf() bool {
	return c.Flags.IsMethod() && !c.Flags.IsConstructor()
}

// String renders "namespace.Container.name" for methods and
// "namespace.name" for free functions.
func (c *CallableInfo) String() string {
	if c.Container != nil {
		h := c.Container.Header()
		return fmt.Sprintf("%s.%s.%s", h.Namespace, h.Name, c.Name)
	}
	return c.Qualified()
}

// ConstantInfo describes a named constant value.
type ConstantInfo struct {
	InfoHeader
	Type  TypeDesc
	Value any
}

func findMethod(methods []*CallableInfo, name string) (*CallableInfo, bool) {
	for _, m := range methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}
