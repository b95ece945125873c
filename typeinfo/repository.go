package typeinfo

import (
	"sort"
	"sync"

	"github.com/wippyai/native-bridge/errors"
)

// DescriptorBase is the first address assigned to descriptor handles.
// Native heaps must keep allocations below this range so descriptor
// addresses never collide with instance pointers.
const DescriptorBase uint32 = 0xF000_0000

// MetaNamespace holds the built-in descriptors every repository carries.
const MetaNamespace = "meta"

// LoaderFunc supplies a namespace on demand. Returning (nil, nil) means the
// loader does not provide the name; the repository tries the next loader.
type LoaderFunc func(r *Repository, name string) (*Namespace, error)

// Namespace groups descriptors registered under one name and version.
type Namespace struct {
	Name    string
	Version string
	infos   map[string]Info
	order   []string
}

// NewNamespace creates an empty namespace.
func NewNamespace(name, version string) *Namespace {
	return &Namespace{
		Name:    name,
		Version: version,
		infos:   make(map[string]Info),
	}
}

// Register adds a descriptor to the namespace. The descriptor's header must
// carry the namespace's own name.
func (n *Namespace) Register(info Info) error {
	h := info.Header()
	if h.Name == "" {
		return errors.Registration(n.Name, h.Name, errors.InvalidInput(errors.PhaseLoad, "descriptor has no name"))
	}
	if h.Namespace != n.Name {
		return errors.Registration(n.Name, h.Name,
			errors.InvalidInput(errors.PhaseLoad, "descriptor namespace does not match"))
	}
	if _, exists := n.infos[h.Name]; exists {
		return errors.Registration(n.Name, h.Name,
			errors.InvalidInput(errors.PhaseLoad, "duplicate descriptor name"))
	}
	n.infos[h.Name] = info
	n.order = append(n.order, h.Name)
	return nil
}

// Lookup returns the named descriptor.
func (n *Namespace) Lookup(name string) (Info, bool) {
	info, ok := n.infos[name]
	return info, ok
}

// Names returns descriptor names in registration order.
func (n *Namespace) Names() []string {
	out := make([]string, len(n.order))
	copy(out, n.order)
	return out
}

// Repository holds loaded namespaces, the registered-type registry and the
// descriptor address table. Safe for concurrent use.
type Repository struct {
	mu         sync.RWMutex
	namespaces map[string]*Namespace
	loaders    []LoaderFunc

	addrOf map[Info]uint32
	infoAt map[uint32]Info
	next   uint32

	gtypeOf map[string]GType
	infoFor map[GType]Info
	nextGT  GType

	base *StructInfo
}

// NewRepository creates a repository preloaded with the built-in meta
// namespace. meta.BaseInfo is the opaque struct type backing descriptor
// handles returned by lookups.
func NewRepository() *Repository {
	r := &Repository{
		namespaces: make(map[string]*Namespace),
		addrOf:     make(map[Info]uint32),
		infoAt:     make(map[uint32]Info),
		next:       DescriptorBase,
		gtypeOf:    make(map[string]GType),
		infoFor:    make(map[GType]Info),
		nextGT:     1,
	}

	meta := NewNamespace(MetaNamespace, "1.0")
	r.base = &StructInfo{
		InfoHeader: InfoHeader{Namespace: MetaNamespace, Name: "BaseInfo"},
		Align:      1,
	}
	// Register cannot fail for the built-in descriptor.
	_ = meta.Register(r.base)
	r.namespaces[MetaNamespace] = meta

	return r
}

// BaseInfo returns the built-in descriptor-handle type.
func (r *Repository) BaseInfo() *StructInfo {
	return r.base
}

// AddLoader appends a namespace loader tried by Require in order.
func (r *Repository) AddLoader(fn LoaderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders = append(r.loaders, fn)
}

// AddNamespace registers a fully built namespace. Object descriptors
// receive registered type ids here, parents before children.
func (r *Repository) AddNamespace(ns *Namespace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.namespaces[ns.Name]; exists {
		return errors.Registration(ns.Name, "",
			errors.InvalidInput(errors.PhaseLoad, "namespace already loaded"))
	}

	for _, name := range ns.order {
		switch info := ns.infos[name].(type) {
		case *ObjectInfo:
			if err := r.registerObjectChainLocked(info); err != nil {
				return err
			}
		case *StructInfo:
			if info.Typed && info.GType == GTypeInvalid {
				gt, err := r.registerGTypeLocked(info)
				if err != nil {
					return err
				}
				info.GType = gt
			}
		}
	}

	r.namespaces[ns.Name] = ns
	return nil
}

func (r *Repository) registerObjectChainLocked(obj *ObjectInfo) error {
	if obj.Parent != nil && obj.Parent.GType == GTypeInvalid {
		if err := r.registerObjectChainLocked(obj.Parent); err != nil {
			return err
		}
	}
	if obj.GType != GTypeInvalid {
		return nil
	}
	gt, err := r.registerGTypeLocked(obj)
	if err != nil {
		return err
	}
	obj.GType = gt
	return nil
}

// Require returns the named namespace, loading it through the registered
// loaders when absent.
func (r *Repository) Require(name string) (*Namespace, error) {
	r.mu.RLock()
	ns, ok := r.namespaces[name]
	loaders := make([]LoaderFunc, len(r.loaders))
	copy(loaders, r.loaders)
	r.mu.RUnlock()

	if ok {
		return ns, nil
	}

	for _, fn := range loaders {
		loaded, err := fn(r, name)
		if err != nil {
			return nil, errors.Load("load namespace "+name, err)
		}
		if loaded == nil {
			continue
		}
		if err := r.AddNamespace(loaded); err != nil {
			return nil, err
		}
		return loaded, nil
	}

	return nil, errors.NotFound(errors.PhaseResolve, "namespace", name)
}

// Namespace returns an already-loaded namespace without triggering loaders.
func (r *Repository) Namespace(name string) (*Namespace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.namespaces[name]
	return ns, ok
}

// Namespaces returns the loaded namespace names, sorted.
func (r *Repository) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.namespaces))
	for name := range r.namespaces {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the named descriptor from a loaded namespace.
func (r *Repository) Resolve(namespace, name string) (Info, error) {
	r.mu.RLock()
	ns, ok := r.namespaces[namespace]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound(errors.PhaseResolve, "namespace", namespace)
	}
	info, ok := ns.Lookup(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseResolve, "descriptor", namespace+"."+name)
	}
	return info, nil
}

// FindMethod returns the named method of a struct or object descriptor.
func (r *Repository) FindMethod(container Info, name string) (*CallableInfo, error) {
	var (
		m  *CallableInfo
		ok bool
	)
	switch c := container.(type) {
	case *StructInfo:
		m, ok = c.Method(name)
	case *ObjectInfo:
		m, ok = c.Method(name)
	default:
		return nil, errors.Unsupported(errors.PhaseResolve,
			"descriptor "+container.Header().Qualified()+" has no methods")
	}
	if !ok {
		return nil, errors.NotFound(errors.PhaseResolve, "method",
			container.Header().Qualified()+"."+name)
	}
	return m, nil
}

// AddressOf returns the stable descriptor address for info, assigning one
// on first use. Descriptor addresses start at DescriptorBase and identify
// descriptors the way instance pointers identify instances.
func (r *Repository) AddressOf(info Info) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if addr, ok := r.addrOf[info]; ok {
		return addr
	}
	addr := r.next
	r.next += 8
	r.addrOf[info] = addr
	r.infoAt[addr] = info
	return addr
}

// InfoAt returns the descriptor assigned to a descriptor address.
func (r *Repository) InfoAt(addr uint32) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infoAt[addr]
	return info, ok
}

// RegisterGType assigns a registered type id to a struct or object
// descriptor and indexes it by qualified name.
func (r *Repository) RegisterGType(info Info) (GType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gt, err := r.registerGTypeLocked(info)
	if err != nil {
		return GTypeInvalid, err
	}
	switch c := info.(type) {
	case *StructInfo:
		c.GType = gt
	case *ObjectInfo:
		c.GType = gt
	}
	return gt, nil
}

func (r *Repository) registerGTypeLocked(info Info) (GType, error) {
	name := info.Header().Qualified()
	switch info.(type) {
	case *StructInfo, *ObjectInfo:
	default:
		return GTypeInvalid, errors.Unsupported(errors.PhaseLoad,
			"descriptor "+name+" cannot carry a registered type")
	}
	if gt, exists := r.gtypeOf[name]; exists {
		return gt, nil
	}
	gt := r.nextGT
	r.nextGT++
	r.gtypeOf[name] = gt
	r.infoFor[gt] = info
	return gt, nil
}

// GTypeByName returns the registered type id for a qualified name.
func (r *Repository) GTypeByName(qualified string) (GType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gt, ok := r.gtypeOf[qualified]
	if !ok {
		return GTypeInvalid, errors.NotFound(errors.PhaseResolve, "registered type", qualified)
	}
	return gt, nil
}

// InfoByGType returns the descriptor behind a registered type id.
func (r *Repository) InfoByGType(gt GType) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infoFor[gt]
	return info, ok
}

// IsA reports whether gt is target or inherits from it.
func (r *Repository) IsA(gt, target GType) bool {
	if gt == GTypeInvalid || target == GTypeInvalid {
		return false
	}
	if gt == target {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infoFor[gt]
	if !ok {
		return false
	}
	obj, ok := info.(*ObjectInfo)
	if !ok {
		return false
	}
	for cur := obj.Parent; cur != nil; cur = cur.Parent {
		if cur.GType == target {
			return true
		}
	}
	return false
}
