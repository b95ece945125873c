package engine

import (
	"context"

	"github.com/wippyai/native-bridge/invoke"
	"github.com/wippyai/native-bridge/typeinfo"
)

// Callable is a native function bound to its entry address, ready to call.
type Callable struct {
	inv *invoke.Invoker
}

// Call dispatches the callable. Arguments fill the instance slot first when
// the callable is a method, then the declared in and inout parameters in
// order. See invoke.Invoker.Call for the full contract.
func (c *Callable) Call(ctx context.Context, args ...any) (*invoke.Result, error) {
	return c.inv.Call(ctx, args...)
}

// Info returns the callable's descriptor.
func (c *Callable) Info() *typeinfo.CallableInfo {
	return c.inv.Info()
}

// Entry returns the native entry address the callable dispatches to.
func (c *Callable) Entry() uint32 {
	return c.inv.Entry()
}

func (c *Callable) String() string {
	return c.inv.Info().String()
}
