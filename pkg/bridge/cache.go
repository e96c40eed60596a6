package bridge

import (
	"sync"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/model"
)

// Cache indexes mapped classes by table name and by model. Entries are
// merged in; binding never drops entries it did not write, so a Cache can
// be shared between bridges and with application code.
type Cache struct {
	mu      sync.RWMutex
	byTable map[string]*mapping.Class
	byModel map[*model.Model]*mapping.Class
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{
		byTable: make(map[string]*mapping.Class),
		byModel: make(map[*model.Model]*mapping.Class),
	}
}

// Put records cls for m. A proxy model does not replace the class already
// registered for its shared table.
func (c *Cache) Put(m *model.Model, cls *mapping.Class) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byModel[m] = cls
	if _, taken := c.byTable[m.Table]; taken && m.Proxy {
		return
	}
	c.byTable[m.Table] = cls
}

// PutTable records cls under a table name only.
func (c *Cache) PutTable(table string, cls *mapping.Class) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTable[table] = cls
}

// Remove drops the entries of m that still point at cls. Entries that were
// replaced since cls was put are left alone.
func (c *Cache) Remove(m *model.Model, cls *mapping.Class) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byModel[m] == cls {
		delete(c.byModel, m)
	}
	if c.byTable[m.Table] == cls {
		delete(c.byTable, m.Table)
	}
}

// ByTable returns the class bound to a table.
func (c *Cache) ByTable(table string) (*mapping.Class, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cls, ok := c.byTable[table]
	return cls, ok
}

// ByModel returns the class bound to a model.
func (c *Cache) ByModel(m *model.Model) (*mapping.Class, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cls, ok := c.byModel[m]
	return cls, ok
}

// Merge copies every entry of other into c, overwriting on collision.
func (c *Cache) Merge(other *Cache) {
	if other == c {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range other.byTable {
		c.byTable[k] = v
	}
	for k, v := range other.byModel {
		c.byModel[k] = v
	}
}

// Tables returns the number of table entries.
func (c *Cache) Tables() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byTable)
}

// Reset removes every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTable = make(map[string]*mapping.Class)
	c.byModel = make(map[*model.Model]*mapping.Class)
}
