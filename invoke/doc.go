// Package invoke builds call frames from runtime signatures and dispatches
// them through a native backend.
//
// Build validates a callable descriptor once and fixes its frame plan: slot
// 0 receives the return value, methods consume a self slot, declared
// parameters follow in order, and callables that report errors get one
// trailing error slot. Call then marshals host arguments into a fresh frame,
// dispatches, and decodes the results:
//
//	inv, err := invoke.Build(callable, entry, invoke.Deps{
//		Marshaler:  m,
//		Dispatcher: sys.Dispatch,
//		Memory:     sys.Memory,
//		Allocator:  sys.Allocator,
//	})
//	res, err := inv.Call(ctx, p, int32(3))
//
// # Error channels
//
// Call keeps the two failure channels apart. Misuse (wrong argument types,
// arity, marshaling failures, dispatcher faults) returns a non-nil Go
// error and never reaches the callee (or aborts the call). A failure the
// callee reports through the error slot returns a nil Go error and
// Result{OK: false, Err: *NativeError}: the native operation failed, the
// call machinery did not. Callers branch on Result.OK, not on the error.
//
// # Ownership during a call
//
// Temporary native copies of in parameters live on an AllocationList and
// are freed when the call returns, except values passed with full transfer,
// which the callee owns. Caller-allocated out parameters are allocated
// through the identity cache before dispatch so decoding them afterwards
// finds the same handle; the invoker's own reference is dropped once the
// values are handed to the host. The error record and its message become
// host property and are freed as soon as they are decoded.
//
// Cache memoizes invokers by entry address; one plan per entry serves all
// callers.
package invoke
