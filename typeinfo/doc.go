// Package typeinfo models the runtime metadata driving the bridge.
//
// Every value crossing the native boundary is described by a TypeDesc: a
// scalar kind, or an interface kind referencing a registered descriptor
// (struct, object, enum, callable or constant). Descriptors are grouped in
// namespaces and served by a Repository.
//
// # Native ABI
//
// Descriptors target a 32-bit little-endian ABI:
//
//	Kind            Size    Alignment
//	──────────────────────────────────
//	bool            1       1
//	int8/uint8      1       1
//	int16/uint16    2       2
//	int32/uint32    4       4
//	int64/uint64    8       8
//	float32         4       4
//	float64         8       8
//	int/uint        4       4
//	size/ssize      4       4
//	gtype           4       4
//	string/filename 4       4 (pointer)
//	interface       4       4 (pointer)
//
// Struct fields are laid out at ascending aligned offsets; struct size is
// rounded up to the largest field alignment. Object instances carry their
// registered type id in the first four bytes, parent fields precede child
// fields.
//
// # Repository
//
// The Repository loads namespaces on demand through registered loaders,
// resolves qualified names, assigns stable descriptor addresses (at
// DescriptorBase and above, outside any heap), and runs the registered-type
// registry used by casts:
//
//	repo := typeinfo.NewRepository()
//	repo.AddLoader(typeinfo.DirLoader("./defs"))
//	ns, err := repo.Require("demo")
//	info, err := repo.Resolve("demo", "Point")
//
// # Definitions
//
// Namespaces load from YAML definitions:
//
//	namespace: demo
//	version: "1.0"
//	structs:
//	  - name: Point
//	    fields:
//	      - { name: x, type: int32 }
//	      - { name: y, type: int32 }
//	functions:
//	  - name: add
//	    symbol: demo_add
//	    params:
//	      - { name: a, type: int32 }
//	      - { name: b, type: int32 }
//	    returns: int32
//
// Field offsets are computed unless the definition pins them explicitly
// (explicit offsets require an explicit size, matching descriptors lifted
// from compiled headers).
//
// # Thread Safety
//
// Repository is safe for concurrent use. Namespaces and descriptors are
// immutable once added to a repository and may be shared freely.
package typeinfo
