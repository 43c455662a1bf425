package core

import "github.com/signalsfoundry/transmitter-sim/model"

// Queue is the FIFO of items waiting for transmission. The engine only ever
// works on the head; everything behind it stays untouched until the head is
// delivered or the queue is drained on abort.
type Queue struct {
	items []*model.DataItem
}

// NewQueue returns a queue holding items in order. Nil entries are skipped.
func NewQueue(items ...*model.DataItem) *Queue {
	q := &Queue{}
	q.Push(items...)
	return q
}

// Push appends items to the tail.
func (q *Queue) Push(items ...*model.DataItem) {
	for _, it := range items {
		if it != nil {
			q.items = append(q.items, it)
		}
	}
}

// Head returns the item at the front, or nil when empty.
func (q *Queue) Head() *model.DataItem {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// PopHead removes and returns the front item.
func (q *Queue) PopHead() *model.DataItem {
	if len(q.items) == 0 {
		return nil
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return head
}

// Len returns the number of queued items.
func (q *Queue) Len() int { return len(q.items) }

// Items returns the queued items in order. The slice is a copy; the items
// are not.
func (q *Queue) Items() []*model.DataItem {
	out := make([]*model.DataItem, len(q.items))
	copy(out, q.items)
	return out
}

// Drain empties the queue and returns what it held.
func (q *Queue) Drain() []*model.DataItem {
	out := q.items
	q.items = nil
	return out
}
