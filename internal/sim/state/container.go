package state

import (
	"sync"

	"github.com/signalsfoundry/transmitter-sim/model"
)

// Container holds data items kept aboard a vessel. Transmitters take
// items from it and hand unsent ones back.
type Container struct {
	mu       sync.Mutex
	id       string
	items    []*model.DataItem
	returned int
}

// NewContainer returns an empty container.
func NewContainer(id string) *Container {
	return &Container{id: id}
}

// ID returns the container identifier.
func (c *Container) ID() string { return c.id }

// Add stores items in the container.
func (c *Container) Add(items ...*model.DataItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range items {
		if it != nil {
			c.items = append(c.items, it)
		}
	}
}

// ReturnItem takes back an item that could not be sent. The item is kept
// exactly as handed over.
func (c *Container) ReturnItem(item *model.DataItem) {
	if item == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, item)
	c.returned++
}

// TakeAll removes and returns every stored item.
func (c *Container) TakeAll() []*model.DataItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.items
	c.items = nil
	return out
}

// Take removes and returns the items with the given IDs, in container order.
func (c *Container) Take(ids ...string) []*model.DataItem {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*model.DataItem
	kept := c.items[:0]
	for _, it := range c.items {
		if want[it.ID] {
			out = append(out, it)
			continue
		}
		kept = append(kept, it)
	}
	c.items = kept
	return out
}

// Items returns a copy of the stored item list.
func (c *Container) Items() []*model.DataItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*model.DataItem(nil), c.items...)
}

// Len returns the number of stored items.
func (c *Container) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Returned returns how many items were handed back by transmitters.
func (c *Container) Returned() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.returned
}
