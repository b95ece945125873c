package engine

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/invoke"
	"github.com/wippyai/native-bridge/marshal"
	"github.com/wippyai/native-bridge/resource"
	"github.com/wippyai/native-bridge/typeinfo"
)

// Config assembles an engine.
type Config struct {
	// Repository supplies type descriptors. Required.
	Repository *typeinfo.Repository

	// System provides native memory, allocation, dispatch and symbol
	// resolution. Pieces left nil disable the operations that need them;
	// a repository-only engine can still browse descriptors.
	System nativebridge.System

	// Logger overrides the package logger for this engine.
	Logger *zap.Logger
}

// Engine binds a descriptor repository to one native system. It owns the
// identity cache and the invoker cache for that pairing and exposes the
// boundary operations: Find, Get, GType, Cast and Log.
type Engine struct {
	repo     *typeinfo.Repository
	system   nativebridge.System
	cache    *resource.Cache
	marshal  *marshal.Marshaler
	invokers *invoke.Cache
	log      *zap.Logger
}

// New creates an engine from the given configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.Repository == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "engine requires a repository")
	}
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	cache := resource.NewCache(cfg.System.Memory, cfg.System.Allocator)
	return &Engine{
		repo:     cfg.Repository,
		system:   cfg.System,
		cache:    cache,
		marshal:  marshal.New(cfg.System.Memory, cfg.System.Allocator, cache),
		invokers: invoke.NewCache(),
		log:      log,
	}, nil
}

// Repository returns the descriptor repository the engine resolves against.
func (e *Engine) Repository() *typeinfo.Repository {
	return e.repo
}

// Cache returns the engine's identity cache.
func (e *Engine) Cache() *resource.Cache {
	return e.cache
}

// Marshaler returns the engine's value marshaler. Field access on instances
// obtained through the engine goes through it so compound references stay
// on the shared identity cache.
func (e *Engine) Marshaler() *marshal.Marshaler {
	return e.marshal
}

// Close releases the identity cache, returning any leaked handles to the
// allocator.
func (e *Engine) Close() error {
	return e.cache.Close()
}

// Find resolves a descriptor by qualified name and returns its handle.
// With an empty container the symbol itself is the qualified name
// ("namespace.Name"); otherwise the container is resolved first and the
// symbol names one of its methods. The namespace loads on first use.
// Handles are ordinary compounds of the built-in descriptor type, so two
// finds of the same name return the same handle.
func (e *Engine) Find(symbol, container string) (*resource.Compound, error) {
	info, err := e.lookup(symbol, container)
	if err != nil {
		return nil, err
	}
	addr := e.repo.AddressOf(info)
	handle, err := e.cache.Wrap(e.repo.BaseInfo(), addr)
	if err != nil {
		return nil, err
	}
	e.log.Debug("descriptor found",
		zap.String("name", info.Header().Qualified()),
		zap.Uint32("handle", addr))
	return handle, nil
}

func (e *Engine) lookup(symbol, container string) (typeinfo.Info, error) {
	if container == "" {
		return e.resolveQualified(symbol)
	}
	owner, err := e.resolveQualified(container)
	if err != nil {
		return nil, err
	}
	return e.repo.FindMethod(owner, symbol)
}

// resolveQualified splits "namespace.Name" and resolves it, loading the
// namespace through the repository's loaders when absent.
func (e *Engine) resolveQualified(qualified string) (typeinfo.Info, error) {
	ns, name, ok := strings.Cut(qualified, ".")
	if !ok || ns == "" || name == "" {
		return nil, errors.InvalidInput(errors.PhaseResolve,
			"descriptor name "+strconv.Quote(qualified)+" is not namespace-qualified")
	}
	if _, err := e.repo.Require(ns); err != nil {
		return nil, err
	}
	return e.repo.Resolve(ns, name)
}

// Get materializes the descriptor behind a handle. Callables come back as
// a *Callable bound to their native entry; struct and object descriptors
// come back as freshly allocated exclusive instances; constants come back
// as host values. Anything else cannot be instantiated.
func (e *Engine) Get(handle *resource.Compound) (any, error) {
	if handle == nil {
		return nil, errors.InvalidInput(errors.PhaseResolve, "nil descriptor handle")
	}
	info, ok := e.repo.InfoAt(handle.Addr())
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseResolve,
			handle.String()+" is not a descriptor handle")
	}

	switch info := info.(type) {
	case *typeinfo.CallableInfo:
		return e.bind(info)
	case *typeinfo.StructInfo:
		return e.cache.Allocate(info)
	case *typeinfo.ObjectInfo:
		return e.instantiate(info)
	case *typeinfo.ConstantInfo:
		return e.constantValue(info)
	default:
		return nil, errors.Unsupported(errors.PhaseResolve,
			"cannot instantiate "+info.Header().Qualified())
	}
}

// bind resolves the callable's native symbol and prepares its invoker.
// Invokers are cached by entry address, so binding the same callable twice
// reuses the prepared frame plan.
func (e *Engine) bind(info *typeinfo.CallableInfo) (*Callable, error) {
	if info.Symbol == "" {
		return nil, errors.InvalidInput(errors.PhaseResolve,
			info.String()+" declares no native symbol")
	}
	if e.system.Resolver == nil {
		return nil, errors.InvalidInput(errors.PhaseResolve, "system has no symbol resolver")
	}
	entry, err := e.system.Resolver.ResolveSymbol(info.Symbol)
	if err != nil {
		return nil, err
	}
	inv, err := e.invokers.Build(info, entry, e.deps())
	if err != nil {
		return nil, err
	}
	e.log.Debug("callable bound",
		zap.String("callable", info.String()),
		zap.Uint32("entry", entry))
	return &Callable{inv: inv}, nil
}

func (e *Engine) instantiate(info *typeinfo.ObjectInfo) (*resource.Compound, error) {
	if info.GType == typeinfo.GTypeInvalid {
		return nil, errors.InvalidInput(errors.PhaseMemory,
			"object "+info.Qualified()+" has no registered type")
	}
	c, err := e.cache.Allocate(info)
	if err != nil {
		return nil, err
	}
	// Every instance carries its registered type in the first four bytes.
	if err := e.system.Memory.WriteU32(c.Addr(), uint32(info.GType)); err != nil {
		c.Release()
		return nil, errors.Wrap(errors.PhaseMemory, errors.KindOutOfBounds, err,
			"stamp type header of "+info.Qualified())
	}
	return c, nil
}

// constantValue round-trips the declared value through the marshaler so the
// caller sees exactly what a native callee would.
func (e *Engine) constantValue(info *typeinfo.ConstantInfo) (any, error) {
	allocs := marshal.NewAllocationList()
	defer allocs.FreeAndRelease(e.system.Allocator)

	slot, err := e.marshal.FromHost(info.Type, info.Value, false, allocs)
	if err != nil {
		return nil, err
	}
	vals, err := e.marshal.ToHost(info.Type, slot, typeinfo.TransferNone)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals[0], nil
}

// GType returns the registered type id behind a qualified name.
func (e *Engine) GType(qualified string) (typeinfo.GType, error) {
	return e.repo.GTypeByName(qualified)
}

// Cast rechecks an instance against a target registered type and retypes
// its handle. The instance's own type header decides compatibility, not the
// handle's current descriptor. The returned handle is the same compound
// with another reference and the target's descriptor attached.
func (e *Engine) Cast(c *resource.Compound, target typeinfo.GType) (*resource.Compound, error) {
	if c == nil {
		return nil, errors.InvalidInput(errors.PhaseCast, "cast requires an instance")
	}
	info, ok := e.repo.InfoByGType(target)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCast, "registered type",
			strconv.FormatUint(uint64(target), 10))
	}
	if e.system.Memory == nil {
		return nil, errors.InvalidInput(errors.PhaseCast, "system has no memory")
	}
	raw, err := e.system.Memory.ReadU32(c.Addr())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCast, errors.KindOutOfBounds, err,
			"read type header of "+c.String())
	}
	have := typeinfo.GType(raw)
	if !e.repo.IsA(have, target) {
		return nil, errors.BadCast(e.typeName(have), info.Header().Qualified())
	}
	e.cache.Retype(c, info)
	c.Retain()
	return c, nil
}

func (e *Engine) typeName(gt typeinfo.GType) string {
	if info, ok := e.repo.InfoByGType(gt); ok {
		return info.Header().Qualified()
	}
	return "gtype " + strconv.FormatUint(uint64(gt), 10)
}

// Log forwards a native-side log message at the named level. Levels follow
// the native convention: error, critical, warning, message, info, debug.
func (e *Engine) Log(level, msg string) error {
	switch level {
	case "error", "critical":
		e.log.Error(msg, zap.String("level", level))
	case "warning":
		e.log.Warn(msg)
	case "message", "info":
		e.log.Info(msg)
	case "debug":
		e.log.Debug(msg)
	default:
		return errors.InvalidInput(errors.PhaseNative, "unknown log level "+strconv.Quote(level))
	}
	return nil
}

func (e *Engine) deps() invoke.Deps {
	return invoke.Deps{
		Marshaler:  e.marshal,
		Dispatcher: e.system.Dispatch,
		Memory:     e.system.Memory,
		Allocator:  e.system.Allocator,
	}
}
