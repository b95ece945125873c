package invoke

import (
	"context"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/marshal"
	"github.com/wippyai/native-bridge/resource"
	"github.com/wippyai/native-bridge/typeinfo"
)

// Deps carries the system pieces an invoker dispatches through.
type Deps struct {
	Marshaler  *marshal.Marshaler
	Dispatcher nativebridge.Dispatcher
	Memory     nativebridge.Memory
	Allocator  nativebridge.Allocator
}

// Invoker executes one native callable. Build validates the signature and
// precomputes the frame plan once; Call then assembles a frame per
// invocation. An Invoker is immutable after Build and safe for concurrent
// calls.
type Invoker struct {
	info  *typeinfo.CallableInfo
	entry uint32
	deps  Deps

	slots    int   // total frame slots
	selfSlot int   // -1 when the callable takes no instance
	argSlots []int // frame slot per declared parameter
	errSlot  int   // -1 when the callable cannot report errors
	hostArgs int   // nominal host arity: self + in/inout parameters
}

// Build prepares an invoker for the callable at the given entry address.
// Unsupported parameter or return kinds fail here, before any call can
// occur.
func Build(info *typeinfo.CallableInfo, entry uint32, deps Deps) (*Invoker, error) {
	if info == nil {
		return nil, errors.InvalidInput(errors.PhaseInvoke, "nil callable descriptor")
	}
	if info.Sig == nil {
		return nil, errors.InvalidInput(errors.PhaseInvoke, info.String()+" has no signature")
	}
	if deps.Marshaler == nil {
		return nil, errors.InvalidInput(errors.PhaseInvoke, "no marshaler attached")
	}
	if deps.Dispatcher == nil {
		return nil, errors.InvalidInput(errors.PhaseInvoke, "no dispatcher attached")
	}

	sig := info.Sig
	if err := checkCallDesc(sig.Return, true, info.String()+" return"); err != nil {
		return nil, err
	}

	inv := &Invoker{
		info:     info,
		entry:    entry,
		deps:     deps,
		selfSlot: -1,
		errSlot:  -1,
	}

	slots := 1 // slot 0 holds the return value
	if info.HasSelf() {
		if info.Container == nil {
			return nil, errors.InvalidInput(errors.PhaseInvoke, info.String()+" is a method without a container")
		}
		inv.selfSlot = slots
		inv.hostArgs++
		slots++
	}

	inv.argSlots = make([]int, len(sig.Params))
	for i := range sig.Params {
		p := &sig.Params[i]
		if err := checkCallDesc(p.Type, false, info.String()+" parameter "+p.Name); err != nil {
			return nil, err
		}
		if p.CallerAllocates && !isCompoundDesc(p.Type) {
			return nil, errors.InvalidInput(errors.PhaseInvoke,
				info.String()+" parameter "+p.Name+" is caller-allocated but not a compound")
		}
		if p.Direction == typeinfo.DirIn || p.Direction == typeinfo.DirInOut {
			inv.hostArgs++
		}
		inv.argSlots[i] = slots
		slots++
	}

	if sig.Throws {
		inv.errSlot = slots
		slots++
	}
	inv.slots = slots
	return inv, nil
}

// Info returns the callable descriptor this invoker executes.
func (inv *Invoker) Info() *typeinfo.CallableInfo {
	return inv.info
}

// Entry returns the native entry address.
func (inv *Invoker) Entry() uint32 {
	return inv.entry
}

// Call dispatches the callable. Host arguments fill the self slot first,
// then in and inout parameters in declared order; surplus arguments are
// ignored, absent ones count as nil. A failure reported by the callee
// through the error slot comes back as Result.Err with a nil Go error;
// marshaling misuse and dispatcher faults come back as Go errors.
func (inv *Invoker) Call(ctx context.Context, args ...any) (*Result, error) {
	frame := make([]uint64, inv.slots)

	allocs := marshal.NewAllocationList()
	defer allocs.FreeAndRelease(inv.deps.Allocator)

	// Caller-allocated outs hold one invoker reference until their values
	// are handed to the host.
	var staged []*resource.Compound
	releaseStaged := func() {
		for _, c := range staged {
			c.Release()
		}
	}

	next := 0
	if inv.selfSlot >= 0 {
		if len(args) == 0 {
			return nil, errors.ArgumentCount(inv.hostArgs, len(args))
		}
		slot, err := inv.deps.Marshaler.FromHost(typeinfo.Iface(inv.info.Container), args[0], false, nil)
		if err != nil {
			return nil, annotate(err, inv.info.String(), "self")
		}
		frame[inv.selfSlot] = slot
		next = 1
	}

	sig := inv.info.Sig
	for i := range sig.Params {
		p := &sig.Params[i]
		switch p.Direction {
		case typeinfo.DirIn, typeinfo.DirInOut:
			var value any
			if next < len(args) {
				value = args[next]
			}
			next++

			// Full transfer hands temporaries to the callee; keep them
			// off the free list.
			list := allocs
			if p.Transfer == typeinfo.TransferEverything {
				list = nil
			}
			slot, err := inv.deps.Marshaler.FromHost(p.Type, value, p.Nullable || p.Optional, list)
			if err != nil {
				releaseStaged()
				return nil, annotate(err, inv.info.String(), p.Name)
			}
			frame[inv.argSlots[i]] = slot

		case typeinfo.DirOut:
			if !p.CallerAllocates {
				continue
			}
			c, err := inv.deps.Marshaler.Cache().Allocate(p.Type.Iface)
			if err != nil {
				releaseStaged()
				return nil, annotate(err, inv.info.String(), p.Name)
			}
			staged = append(staged, c)
			frame[inv.argSlots[i]] = uint64(c.Addr())
		}
	}

	if err := inv.deps.Dispatcher.Dispatch(ctx, inv.entry, frame); err != nil {
		releaseStaged()
		return nil, errors.Trap(err, inv.info.String()+" dispatch failed")
	}

	if inv.errSlot >= 0 && frame[inv.errSlot] != 0 {
		nerr, err := inv.readNativeError(uint32(frame[inv.errSlot]))
		releaseStaged()
		if err != nil {
			return nil, err
		}
		return &Result{OK: false, Err: nerr}, nil
	}

	values, err := inv.collectValues(frame)
	if err != nil {
		releaseStaged()
		return nil, err
	}
	releaseStaged()
	return &Result{OK: true, Values: values}, nil
}

// collectValues decodes the return slot and every out and inout parameter,
// return first, parameters in declared order. Each conversion contributes
// its whole vector, possibly empty.
func (inv *Invoker) collectValues(frame []uint64) ([]any, error) {
	sig := inv.info.Sig

	values, err := inv.deps.Marshaler.ToHost(sig.Return, frame[0], sig.ReturnTransfer)
	if err != nil {
		return nil, annotate(err, inv.info.String(), "return")
	}

	for i := range sig.Params {
		p := &sig.Params[i]
		if p.Direction == typeinfo.DirIn {
			continue
		}
		vec, err := inv.deps.Marshaler.ToHost(p.Type, frame[inv.argSlots[i]], p.Transfer)
		if err != nil {
			return nil, annotate(err, inv.info.String(), p.Name)
		}
		values = append(values, vec...)
	}
	return values, nil
}

const errorRecordSize = 8

// readNativeError decodes and frees the error record the callee stored in
// the error slot: a code at offset 0 and an optional message pointer at
// offset 4, both owned by the host once the call returns.
func (inv *Invoker) readNativeError(addr uint32) (*NativeError, error) {
	mem := inv.deps.Memory
	if mem == nil {
		return nil, errors.InvalidInput(errors.PhaseNative, "callee reported an error but no memory is attached")
	}

	code, err := mem.ReadU32(addr)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseNative, errors.KindOutOfBounds, err, "error record read failed")
	}
	msgPtr, err := mem.ReadU32(addr + 4)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseNative, errors.KindOutOfBounds, err, "error record read failed")
	}

	message := ""
	if msgPtr != 0 {
		message, err = marshal.ReadCString(mem, msgPtr)
		if err != nil {
			return nil, err
		}
		if inv.deps.Allocator != nil {
			inv.deps.Allocator.Free(msgPtr, uint32(len(message))+1, 1)
		}
	}
	if inv.deps.Allocator != nil {
		inv.deps.Allocator.Free(addr, errorRecordSize, 4)
	}
	return &NativeError{Code: int32(code), Message: message}, nil
}

// checkCallDesc rejects kinds that cannot travel through a call frame.
func checkCallDesc(desc typeinfo.TypeDesc, isReturn bool, what string) error {
	switch {
	case desc.Kind == typeinfo.KindVoid:
		if isReturn {
			return nil
		}
	case desc.Kind.IsScalar():
		return nil
	case desc.Kind == typeinfo.KindString, desc.Kind == typeinfo.KindFilename:
		return nil
	case desc.Kind == typeinfo.KindInterface:
		switch desc.Iface.(type) {
		case *typeinfo.EnumInfo, *typeinfo.StructInfo, *typeinfo.ObjectInfo:
			return nil
		}
	}
	return errors.Unsupported(errors.PhaseInvoke, what+" cannot travel through a call frame")
}

func isCompoundDesc(desc typeinfo.TypeDesc) bool {
	if desc.Kind != typeinfo.KindInterface {
		return false
	}
	switch desc.Iface.(type) {
	case *typeinfo.StructInfo, *typeinfo.ObjectInfo:
		return true
	}
	return false
}

// annotate fills a structured error's path with call context when the
// marshaler left it empty.
func annotate(err error, callable, position string) error {
	if be, ok := err.(*errors.Error); ok && len(be.Path) == 0 {
		be.Path = []string{callable, position}
	}
	return err
}
