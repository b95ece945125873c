package typeinfo

import (
	"os"
	"path/filepath"
	"testing"
)

const demoYAML = `
namespace: demo
version: "1.0"
enums:
  - name: Color
    storage: uint32
    values:
      - { name: red, value: 0 }
      - { name: green, value: 1 }
      - { name: blue, value: 2 }
structs:
  - name: Point
    fields:
      - { name: x, type: int32 }
      - { name: y, type: int32 }
    methods:
      - name: translate
        symbol: demo_point_translate
        params:
          - { name: dx, type: int32 }
          - { name: dy, type: int32 }
  - name: Rect
    gtype: true
    fields:
      - { name: origin, type: Point }
      - { name: flag, type: bool }
      - { name: area, type: uint64, writable: false }
objects:
  - name: Button
    parent: Widget
    fields:
      - { name: label, type: string }
    methods:
      - name: new
        symbol: demo_button_new
        constructor: true
        returns: Button
        return-transfer: everything
  - name: Widget
    fields:
      - { name: width, type: int32 }
      - { name: height, type: int32 }
constants:
  - { name: MAX_TITLE, type: uint32, value: 128 }
  - { name: GREETING, type: string, value: "hello" }
functions:
  - name: add
    symbol: demo_add
    params:
      - { name: a, type: int32 }
      - { name: b, type: int32, direction: inout }
      - { name: opts, type: Point, nullable: true }
    returns: int32
    throws: true
`

func TestLoadYAML(t *testing.T) {
	repo := NewRepository()
	ns, err := LoadYAML(repo, []byte(demoYAML))
	if err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}
	if ns.Name != "demo" || ns.Version != "1.0" {
		t.Errorf("namespace = %s/%s, want demo/1.0", ns.Name, ns.Version)
	}

	t.Run("enum", func(t *testing.T) {
		info, err := repo.Resolve("demo", "Color")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		enum := info.(*EnumInfo)
		if enum.Storage != KindUint32 {
			t.Errorf("storage = %v, want uint32", enum.Storage)
		}
		if v, ok := enum.ValueByName("green"); !ok || v != 1 {
			t.Errorf("green = %d (%v), want 1", v, ok)
		}
		if name, ok := enum.NameByValue(2); !ok || name != "blue" {
			t.Errorf("value 2 = %q, want blue", name)
		}
	})

	t.Run("struct layout computed", func(t *testing.T) {
		info, _ := repo.Resolve("demo", "Rect")
		s := info.(*StructInfo)
		wantOffsets := map[string]uint32{"origin": 0, "flag": 4, "area": 8}
		for name, want := range wantOffsets {
			f, ok := s.Field(name)
			if !ok {
				t.Fatalf("field %q missing", name)
			}
			if f.Offset != want {
				t.Errorf("field %q offset = %d, want %d", name, f.Offset, want)
			}
		}
		if s.Size != 16 || s.Align != 8 {
			t.Errorf("size/align = %d/%d, want 16/8", s.Size, s.Align)
		}
		f, _ := s.Field("area")
		if f.Writable {
			t.Error("area should be read-only")
		}
		if !f.Readable {
			t.Error("area should be readable")
		}
		if s.GType == GTypeInvalid {
			t.Error("gtype: true struct should be registered")
		}
	})

	t.Run("struct method", func(t *testing.T) {
		info, _ := repo.Resolve("demo", "Point")
		s := info.(*StructInfo)
		m, ok := s.Method("translate")
		if !ok {
			t.Fatal("method translate missing")
		}
		if !m.HasSelf() {
			t.Error("plain method should take self")
		}
		if m.Symbol != "demo_point_translate" {
			t.Errorf("symbol = %q", m.Symbol)
		}
		if len(m.Sig.Params) != 2 {
			t.Fatalf("params = %d, want 2", len(m.Sig.Params))
		}
	})

	t.Run("object inheritance", func(t *testing.T) {
		info, _ := repo.Resolve("demo", "Button")
		button := info.(*ObjectInfo)
		if button.Parent == nil || button.Parent.Name != "Widget" {
			t.Fatal("Button parent should be Widget")
		}
		// Widget: header 4 + width@4 + height@8 → size 12.
		if button.Parent.Size != 12 {
			t.Errorf("Widget size = %d, want 12", button.Parent.Size)
		}
		f, ok := button.Field("label")
		if !ok || f.Offset != 12 {
			t.Errorf("label offset = %d (%v), want 12", f.Offset, ok)
		}
		if button.GType == GTypeInvalid || button.Parent.GType == GTypeInvalid {
			t.Error("objects should carry registered types")
		}
		if !repo.IsA(button.GType, button.Parent.GType) {
			t.Error("Button should be a Widget")
		}

		ctor, ok := button.Method("new")
		if !ok {
			t.Fatal("constructor missing")
		}
		if !ctor.Flags.IsConstructor() || ctor.HasSelf() {
			t.Error("constructors take no self")
		}
		if ctor.Sig.ReturnTransfer != TransferEverything {
			t.Errorf("return transfer = %v, want everything", ctor.Sig.ReturnTransfer)
		}
	})

	t.Run("constants", func(t *testing.T) {
		info, _ := repo.Resolve("demo", "MAX_TITLE")
		c := info.(*ConstantInfo)
		if c.Type.Kind != KindUint32 {
			t.Errorf("kind = %v, want uint32", c.Type.Kind)
		}
		if v, ok := c.Value.(int); !ok || v != 128 {
			t.Errorf("value = %v, want 128", c.Value)
		}

		info, _ = repo.Resolve("demo", "GREETING")
		g := info.(*ConstantInfo)
		if g.Value != "hello" {
			t.Errorf("value = %v, want hello", g.Value)
		}
	})

	t.Run("function", func(t *testing.T) {
		info, _ := repo.Resolve("demo", "add")
		fn := info.(*CallableInfo)
		if fn.HasSelf() || fn.Container != nil {
			t.Error("free function should not bind a container")
		}
		if !fn.Sig.Throws {
			t.Error("throws flag lost")
		}
		if fn.Sig.Return.Kind != KindInt32 {
			t.Errorf("return kind = %v", fn.Sig.Return.Kind)
		}
		p := fn.Sig.Params
		if p[0].Direction != DirIn || p[1].Direction != DirInOut {
			t.Errorf("directions = %v, %v", p[0].Direction, p[1].Direction)
		}
		if !p[2].Nullable || p[2].Type.Kind != KindInterface {
			t.Error("opts should be a nullable interface param")
		}
	})
}

func TestLoadYAMLExplicitLayout(t *testing.T) {
	const src = `
namespace: sys
structs:
  - name: Header
    size: 24
    align: 8
    fields:
      - { name: tag, type: uint32, offset: 0 }
      - { name: len, type: uint32, offset: 16 }
`
	repo := NewRepository()
	if _, err := LoadYAML(repo, []byte(src)); err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}
	info, _ := repo.Resolve("sys", "Header")
	s := info.(*StructInfo)
	if s.Size != 24 || s.Align != 8 {
		t.Errorf("size/align = %d/%d, want 24/8", s.Size, s.Align)
	}
	f, _ := s.Field("len")
	if f.Offset != 16 {
		t.Errorf("len offset = %d, want 16", f.Offset)
	}
}

func TestLoadYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no namespace", `version: "1.0"`},
		{"unknown type", `
namespace: x
functions:
  - name: f
    symbol: x_f
    params:
      - { name: a, type: Mystery }
`},
		{"bad direction", `
namespace: x
functions:
  - name: f
    symbol: x_f
    params:
      - { name: a, type: int32, direction: sideways }
`},
		{"bad transfer", `
namespace: x
functions:
  - name: f
    symbol: x_f
    params:
      - { name: a, type: int32, transfer: most }
`},
		{"missing symbol", `
namespace: x
functions:
  - name: f
`},
		{"free constructor", `
namespace: x
functions:
  - name: f
    symbol: x_f
    constructor: true
`},
		{"float enum storage", `
namespace: x
enums:
  - name: E
    storage: float32
`},
		{"mixed offsets", `
namespace: x
structs:
  - name: S
    size: 8
    fields:
      - { name: a, type: int32, offset: 0 }
      - { name: b, type: int32 }
`},
		{"offsets without size", `
namespace: x
structs:
  - name: S
    fields:
      - { name: a, type: int32, offset: 0 }
      - { name: b, type: int32, offset: 4 }
`},
		{"object with offsets", `
namespace: x
objects:
  - name: O
    fields:
      - { name: a, type: int32, offset: 0 }
`},
		{"inheritance cycle", `
namespace: x
objects:
  - name: A
    parent: B
  - name: B
    parent: A
`},
		{"struct parent", `
namespace: x
structs:
  - name: S
objects:
  - name: O
    parent: S
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewRepository()
			if _, err := LoadYAML(repo, []byte(tt.src)); err == nil {
				t.Errorf("LoadYAML should fail for %s", tt.name)
			}
		})
	}
}

func TestDirLoader(t *testing.T) {
	dir := t.TempDir()
	dep := `
namespace: dep
objects:
  - name: Base
`
	main := `
namespace: app
requires: [dep]
objects:
  - name: Child
    parent: dep.Base
`
	if err := os.WriteFile(filepath.Join(dir, "dep.yaml"), []byte(dep), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(main), 0o644); err != nil {
		t.Fatal(err)
	}

	repo := NewRepository()
	repo.AddLoader(DirLoader(dir))

	ns, err := repo.Require("app")
	if err != nil {
		t.Fatalf("Require failed: %v", err)
	}
	if ns.Name != "app" {
		t.Errorf("loaded %q, want app", ns.Name)
	}

	// The dependency loaded transitively.
	if _, ok := repo.Namespace("dep"); !ok {
		t.Error("dep namespace should be loaded")
	}

	info, err := repo.Resolve("app", "Child")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	child := info.(*ObjectInfo)
	if child.Parent == nil || child.Parent.Qualified() != "dep.Base" {
		t.Error("cross-namespace parent not wired")
	}

	if _, err := repo.Require("ghost"); err == nil {
		t.Error("missing definition should fail")
	}
}
