package invoke

import (
	"sync"

	"github.com/wippyai/native-bridge/typeinfo"
)

// Cache memoizes invokers by entry address. Signatures never change for a
// loaded native image, so the first prepared plan for an entry wins and
// later Build calls return it unchanged.
type Cache struct {
	mu       sync.Mutex
	invokers map[uint32]*Invoker
}

func NewCache() *Cache {
	return &Cache{invokers: make(map[uint32]*Invoker)}
}

// Build returns the cached invoker for entry or prepares and caches a new
// one.
func (c *Cache) Build(info *typeinfo.CallableInfo, entry uint32, deps Deps) (*Invoker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if inv, ok := c.invokers[entry]; ok {
		return inv, nil
	}
	inv, err := Build(info, entry, deps)
	if err != nil {
		return nil, err
	}
	c.invokers[entry] = inv
	return inv, nil
}

// Len reports how many invokers are cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.invokers)
}
