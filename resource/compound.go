package resource

import (
	"fmt"

	"github.com/wippyai/native-bridge/typeinfo"
)

// Mode tells who owns the native storage behind a compound.
type Mode uint8

const (
	// OwnBorrowed aliases foreign memory; the bridge never frees it.
	OwnBorrowed Mode = iota
	// OwnExclusive marks storage allocated by the bridge, freed when the
	// last reference is released.
	OwnExclusive
)

func (m Mode) String() string {
	if m == OwnExclusive {
		return "exclusive"
	}
	return "borrowed"
}

// Compound is a handle to one native struct or object instance. The address
// never changes for the handle's lifetime; the descriptor changes only
// through Cache.Retype. Reference counts are managed by the owning cache.
type Compound struct {
	cache *Cache
	info  typeinfo.Info
	addr  uint32
	size  uint32
	align uint32
	mode  Mode
	refs  int32
}

// Addr returns the native address of the instance.
func (c *Compound) Addr() uint32 { return c.addr }

// Mode returns the ownership mode.
func (c *Compound) Mode() Mode { return c.mode }

// Info returns the current descriptor of the instance.
func (c *Compound) Info() typeinfo.Info {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()
	return c.info
}

// Refs returns the current strong reference count.
func (c *Compound) Refs() int {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()
	return int(c.refs)
}

// Retain adds a strong reference.
func (c *Compound) Retain() {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()
	c.refs++
}

// Release drops a strong reference. When the count reaches zero the handle
// leaves the identity cache and exclusively owned storage is freed; the
// return reports that reclaim. Releasing a dead handle is a no-op.
func (c *Compound) Release() bool {
	return c.cache.release(c)
}

// String renders "native-struct: demo.Point 0x1000" style identities.
func (c *Compound) String() string {
	c.cache.mu.Lock()
	info := c.info
	c.cache.mu.Unlock()

	kind := "native-struct"
	if _, ok := info.(*typeinfo.ObjectInfo); ok {
		kind = "native-object"
	}
	return fmt.Sprintf("%s: %s 0x%x", kind, info.Header().Qualified(), c.addr)
}
