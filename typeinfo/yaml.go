package typeinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/native-bridge/errors"
)

// document is the on-disk namespace definition.
type document struct {
	Namespace string        `yaml:"namespace"`
	Version   string        `yaml:"version"`
	Requires  []string      `yaml:"requires"`
	Enums     []enumDoc     `yaml:"enums"`
	Structs   []structDoc   `yaml:"structs"`
	Objects   []objectDoc   `yaml:"objects"`
	Constants []constantDoc `yaml:"constants"`
	Functions []funcDoc     `yaml:"functions"`
}

type enumDoc struct {
	Name    string         `yaml:"name"`
	Storage string         `yaml:"storage"`
	Values  []enumValueDoc `yaml:"values"`
}

type enumValueDoc struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

type fieldDoc struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	Offset   *uint32 `yaml:"offset"`
	Readable *bool   `yaml:"readable"`
	Writable *bool   `yaml:"writable"`
}

type structDoc struct {
	Name    string     `yaml:"name"`
	GType   bool       `yaml:"gtype"`
	Size    *uint32    `yaml:"size"`
	Align   *uint32    `yaml:"align"`
	Fields  []fieldDoc `yaml:"fields"`
	Methods []funcDoc  `yaml:"methods"`
}

type objectDoc struct {
	Name    string     `yaml:"name"`
	Parent  string     `yaml:"parent"`
	Fields  []fieldDoc `yaml:"fields"`
	Methods []funcDoc  `yaml:"methods"`
}

type paramDoc struct {
	Name            string `yaml:"name"`
	Type            string `yaml:"type"`
	Direction       string `yaml:"direction"`
	Nullable        bool   `yaml:"nullable"`
	Optional        bool   `yaml:"optional"`
	CallerAllocates bool   `yaml:"caller-allocates"`
	Transfer        string `yaml:"transfer"`
}

type funcDoc struct {
	Name           string     `yaml:"name"`
	Symbol         string     `yaml:"symbol"`
	Constructor    bool       `yaml:"constructor"`
	Throws         bool       `yaml:"throws"`
	Params         []paramDoc `yaml:"params"`
	Returns        string     `yaml:"returns"`
	ReturnTransfer string     `yaml:"return-transfer"`
}

type constantDoc struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Value any    `yaml:"value"`
}

// ParseYAML builds a namespace from a YAML definition without adding it to
// the repository. The repository is consulted for cross-namespace type
// references (dependencies load through Require).
func ParseYAML(repo *Repository, data []byte) (*Namespace, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Load("parse namespace definition", err)
	}
	if doc.Namespace == "" {
		return nil, errors.InvalidData(errors.PhaseLoad, nil, "definition has no namespace name")
	}

	for _, dep := range doc.Requires {
		if _, err := repo.Require(dep); err != nil {
			return nil, err
		}
	}

	b := &nsBuilder{
		repo:    repo,
		ns:      NewNamespace(doc.Namespace, doc.Version),
		shells:  make(map[string]Info),
		objDocs: make(map[string]*objectDoc),
		state:   make(map[string]int),
	}
	if err := b.build(&doc); err != nil {
		return nil, err
	}
	return b.ns, nil
}

// LoadYAML parses a YAML definition and registers the namespace.
func LoadYAML(repo *Repository, data []byte) (*Namespace, error) {
	ns, err := ParseYAML(repo, data)
	if err != nil {
		return nil, err
	}
	if err := repo.AddNamespace(ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// DirLoader returns a loader that reads <dir>/<name>.yaml definitions.
// Missing files are skipped so several directories can stack.
func DirLoader(dir string) LoaderFunc {
	return func(repo *Repository, name string) (*Namespace, error) {
		data, err := os.ReadFile(filepath.Join(dir, name+".yaml"))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		return ParseYAML(repo, data)
	}
}

const (
	objPending = iota
	objBuilding
	objDone
)

type nsBuilder struct {
	repo    *Repository
	ns      *Namespace
	shells  map[string]Info
	objDocs map[string]*objectDoc
	state   map[string]int
}

func (b *nsBuilder) build(doc *document) error {
	// First pass registers name shells so type references resolve in any
	// declaration order.
	for i := range doc.Enums {
		info, err := b.buildEnum(&doc.Enums[i])
		if err != nil {
			return err
		}
		if err := b.register(info); err != nil {
			return err
		}
	}
	for i := range doc.Structs {
		d := &doc.Structs[i]
		info := &StructInfo{
			InfoHeader: InfoHeader{Namespace: b.ns.Name, Name: d.Name},
			Typed:      d.GType,
		}
		if err := b.register(info); err != nil {
			return err
		}
	}
	for i := range doc.Objects {
		d := &doc.Objects[i]
		info := &ObjectInfo{
			InfoHeader: InfoHeader{Namespace: b.ns.Name, Name: d.Name},
		}
		if err := b.register(info); err != nil {
			return err
		}
		b.objDocs[d.Name] = d
		b.state[d.Name] = objPending
	}

	// Second pass fills bodies.
	for i := range doc.Structs {
		if err := b.finishStruct(&doc.Structs[i]); err != nil {
			return err
		}
	}
	for i := range doc.Objects {
		if err := b.finishObject(doc.Objects[i].Name); err != nil {
			return err
		}
	}
	for i := range doc.Functions {
		info, err := b.buildCallable(&doc.Functions[i], nil)
		if err != nil {
			return err
		}
		if err := b.register(info); err != nil {
			return err
		}
	}
	for i := range doc.Constants {
		info, err := b.buildConstant(&doc.Constants[i])
		if err != nil {
			return err
		}
		if err := b.register(info); err != nil {
			return err
		}
	}
	return nil
}

func (b *nsBuilder) register(info Info) error {
	if err := b.ns.Register(info); err != nil {
		return err
	}
	b.shells[info.Header().Name] = info
	return nil
}

func (b *nsBuilder) buildEnum(d *enumDoc) (*EnumInfo, error) {
	storage := KindInt32
	if d.Storage != "" {
		k, ok := scalarKinds[d.Storage]
		if !ok || !k.IsScalar() || k == KindFloat32 || k == KindFloat64 {
			return nil, errors.InvalidData(errors.PhaseLoad, []string{d.Name},
				fmt.Sprintf("enum storage %q is not an integer kind", d.Storage))
		}
		storage = k
	}
	info := &EnumInfo{
		InfoHeader: InfoHeader{Namespace: b.ns.Name, Name: d.Name},
		Storage:    storage,
	}
	for _, v := range d.Values {
		if v.Name == "" {
			return nil, errors.InvalidData(errors.PhaseLoad, []string{d.Name}, "enum value has no name")
		}
		info.Values = append(info.Values, EnumValue{Name: v.Name, Value: v.Value})
	}
	return info, nil
}

func (b *nsBuilder) finishStruct(d *structDoc) error {
	info := b.shells[d.Name].(*StructInfo)

	fields, explicit, err := b.buildFields(d.Name, d.Fields)
	if err != nil {
		return err
	}
	info.Fields = fields

	switch {
	case d.Size != nil:
		if !explicit && len(fields) > 0 {
			return errors.InvalidData(errors.PhaseLoad, []string{d.Name},
				"explicit size requires explicit field offsets")
		}
		info.Size = *d.Size
		info.Align = 1
		for i := range fields {
			if _, a := FieldWidth(fields[i].Type); a > info.Align {
				info.Align = a
			}
		}
		if d.Align != nil {
			info.Align = *d.Align
		}
	case explicit:
		return errors.InvalidData(errors.PhaseLoad, []string{d.Name},
			"explicit field offsets require an explicit size")
	default:
		info.Size, info.Align = ComputeLayout(info.Fields, 0, 1)
	}

	for i := range d.Methods {
		m, err := b.buildCallable(&d.Methods[i], info)
		if err != nil {
			return err
		}
		info.Methods = append(info.Methods, m)
	}
	return nil
}

func (b *nsBuilder) finishObject(name string) error {
	switch b.state[name] {
	case objDone:
		return nil
	case objBuilding:
		return errors.InvalidData(errors.PhaseLoad, []string{name}, "object inheritance cycle")
	}
	b.state[name] = objBuilding

	d := b.objDocs[name]
	info := b.shells[name].(*ObjectInfo)

	base := uint32(4) // instance type header
	if d.Parent != "" {
		parentInfo, err := b.resolveType(name, d.Parent)
		if err != nil {
			return err
		}
		parent, ok := parentInfo.Iface.(*ObjectInfo)
		if parentInfo.Kind != KindInterface || !ok {
			return errors.InvalidData(errors.PhaseLoad, []string{name},
				fmt.Sprintf("parent %q is not an object", d.Parent))
		}
		// Parents in this namespace must be laid out first.
		if parent.Namespace == b.ns.Name {
			if err := b.finishObject(parent.Name); err != nil {
				return err
			}
		}
		info.Parent = parent
		base = parent.Size
	}

	fields, explicit, err := b.buildFields(name, d.Fields)
	if err != nil {
		return err
	}
	if explicit {
		return errors.InvalidData(errors.PhaseLoad, []string{name},
			"object layouts are computed, drop field offsets")
	}
	info.Fields = fields
	info.Size, info.Align = ComputeLayout(info.Fields, base, 4)

	for i := range d.Methods {
		m, err := b.buildCallable(&d.Methods[i], info)
		if err != nil {
			return err
		}
		info.Methods = append(info.Methods, m)
	}

	b.state[name] = objDone
	return nil
}

// buildFields returns the field list and whether the definition used
// explicit offsets. Mixing explicit and computed offsets is rejected.
func (b *nsBuilder) buildFields(owner string, docs []fieldDoc) ([]FieldInfo, bool, error) {
	if len(docs) == 0 {
		return nil, false, nil
	}
	fields := make([]FieldInfo, 0, len(docs))
	withOffset := 0
	for _, d := range docs {
		if d.Name == "" {
			return nil, false, errors.InvalidData(errors.PhaseLoad, []string{owner}, "field has no name")
		}
		ft, err := b.resolveType(owner+"."+d.Name, d.Type)
		if err != nil {
			return nil, false, err
		}
		f := FieldInfo{
			Name:     d.Name,
			Type:     ft,
			Readable: true,
			Writable: true,
		}
		if d.Readable != nil {
			f.Readable = *d.Readable
		}
		if d.Writable != nil {
			f.Writable = *d.Writable
		}
		if d.Offset != nil {
			f.Offset = *d.Offset
			withOffset++
		}
		fields = append(fields, f)
	}
	if withOffset > 0 && withOffset != len(fields) {
		return nil, false, errors.InvalidData(errors.PhaseLoad, []string{owner},
			"either all fields carry offsets or none")
	}
	return fields, withOffset > 0, nil
}

func (b *nsBuilder) buildCallable(d *funcDoc, container Info) (*CallableInfo, error) {
	if d.Name == "" {
		return nil, errors.InvalidData(errors.PhaseLoad, nil, "function has no name")
	}
	if d.Symbol == "" {
		return nil, errors.InvalidData(errors.PhaseLoad, []string{d.Name}, "function has no symbol")
	}
	if d.Constructor && container == nil {
		return nil, errors.InvalidData(errors.PhaseLoad, []string{d.Name},
			"constructor requires a container type")
	}

	var flags CallableFlags
	if container != nil {
		flags |= FlagMethod
	}
	if d.Constructor {
		flags |= FlagConstructor
	}

	sig := &Signature{Throws: d.Throws, Return: Scalar(KindVoid)}
	if d.Returns != "" {
		rt, err := b.resolveType(d.Name, d.Returns)
		if err != nil {
			return nil, err
		}
		sig.Return = rt
	}
	rtr, ok := parseTransfer(d.ReturnTransfer)
	if !ok {
		return nil, errors.InvalidData(errors.PhaseLoad, []string{d.Name},
			fmt.Sprintf("unknown transfer %q", d.ReturnTransfer))
	}
	sig.ReturnTransfer = rtr

	for _, p := range d.Params {
		pt, err := b.resolveType(d.Name+"."+p.Name, p.Type)
		if err != nil {
			return nil, err
		}
		dir, ok := parseDirection(p.Direction)
		if !ok {
			return nil, errors.InvalidData(errors.PhaseLoad, []string{d.Name, p.Name},
				fmt.Sprintf("unknown direction %q", p.Direction))
		}
		tr, ok := parseTransfer(p.Transfer)
		if !ok {
			return nil, errors.InvalidData(errors.PhaseLoad, []string{d.Name, p.Name},
				fmt.Sprintf("unknown transfer %q", p.Transfer))
		}
		sig.Params = append(sig.Params, Param{
			Name:            p.Name,
			Type:            pt,
			Direction:       dir,
			Nullable:        p.Nullable,
			Optional:        p.Optional,
			CallerAllocates: p.CallerAllocates,
			Transfer:        tr,
		})
	}

	return &CallableInfo{
		InfoHeader: InfoHeader{Namespace: b.ns.Name, Name: d.Name},
		Symbol:     d.Symbol,
		Flags:      flags,
		Container:  container,
		Sig:        sig,
	}, nil
}

func (b *nsBuilder) buildConstant(d *constantDoc) (*ConstantInfo, error) {
	if d.Name == "" {
		return nil, errors.InvalidData(errors.PhaseLoad, nil, "constant has no name")
	}
	ct, err := b.resolveType(d.Name, d.Type)
	if err != nil {
		return nil, err
	}
	if ct.Kind == KindInterface || ct.Kind == KindVoid {
		return nil, errors.InvalidData(errors.PhaseLoad, []string{d.Name},
			"constants must use scalar or string kinds")
	}
	return &ConstantInfo{
		InfoHeader: InfoHeader{Namespace: b.ns.Name, Name: d.Name},
		Type:       ct,
		Value:      d.Value,
	}, nil
}

var scalarKinds = map[string]Kind{
	"void":     KindVoid,
	"bool":     KindBool,
	"int8":     KindInt8,
	"uint8":    KindUint8,
	"int16":    KindInt16,
	"uint16":   KindUint16,
	"int32":    KindInt32,
	"uint32":   KindUint32,
	"int64":    KindInt64,
	"uint64":   KindUint64,
	"float32":  KindFloat32,
	"float64":  KindFloat64,
	"int":      KindInt,
	"uint":     KindUint,
	"size":     KindSize,
	"ssize":    KindSSize,
	"gtype":    KindGType,
	"string":   KindString,
	"filename": KindFilename,
}

// resolveType maps a definition type name to a descriptor: a scalar kind,
// a local name, or a qualified namespace.Name reference.
func (b *nsBuilder) resolveType(where, name string) (TypeDesc, error) {
	if name == "" {
		return TypeDesc{}, errors.InvalidData(errors.PhaseLoad, []string{where}, "missing type")
	}
	if k, ok := scalarKinds[name]; ok {
		return Scalar(k), nil
	}
	if ns, rest, found := strings.Cut(name, "."); found {
		if ns == b.ns.Name {
			return b.localType(where, rest)
		}
		if _, err := b.repo.Require(ns); err != nil {
			return TypeDesc{}, err
		}
		info, err := b.repo.Resolve(ns, rest)
		if err != nil {
			return TypeDesc{}, err
		}
		return Iface(info), nil
	}
	return b.localType(where, name)
}

func (b *nsBuilder) localType(where, name string) (TypeDesc, error) {
	info, ok := b.shells[name]
	if !ok {
		return TypeDesc{}, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(where).
			Detail("type %q not defined in namespace %s", name, b.ns.Name).
			Build()
	}
	return Iface(info), nil
}

func parseDirection(s string) (Direction, bool) {
	switch s {
	case "", "in":
		return DirIn, true
	case "out":
		return DirOut, true
	case "inout":
		return DirInOut, true
	default:
		return DirIn, false
	}
}

func parseTransfer(s string) (Transfer, bool) {
	switch s {
	case "", "none":
		return TransferNone, true
	case "container":
		return TransferContainer, true
	case "everything":
		return TransferEverything, true
	default:
		return TransferNone, false
	}
}
