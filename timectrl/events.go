package timectrl

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// EventScheduler runs callbacks at simulation times read from a SimClock.
// The tick loop calls RunDue after each advance; scenario actions use
// Schedule and Cancel.
type EventScheduler struct {
	clock SimClock

	mu      sync.Mutex
	counter uint64
	events  []*scheduledEvent // ordered by 'when' (earliest first)
	index   map[string]*scheduledEvent
}

type scheduledEvent struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// NewEventScheduler creates a scheduler backed by clock.
func NewEventScheduler(clock SimClock) *EventScheduler {
	return &EventScheduler{
		clock: clock,
		index: make(map[string]*scheduledEvent),
	}
}

// Schedule registers f to run at simulation time at. Events sharing a time
// run in the order they were scheduled. It returns an ID usable with Cancel.
func (s *EventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("ev-%d", s.counter)
	ev := &scheduledEvent{id: id, when: at, f: f}

	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(ev.when)
	})
	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
	s.index[id] = ev
	return id
}

// ScheduleAfter registers f to run d after the current simulation time.
func (s *EventScheduler) ScheduleAfter(d time.Duration, f func()) string {
	return s.Schedule(s.clock.Now().Add(d), f)
}

// Cancel drops a pending event. Unknown or already-run IDs are ignored.
func (s *EventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev, ok := s.index[id]; ok {
		ev.cancelled = true
		delete(s.index, id)
	}
}

// Pending returns the number of events still waiting to run.
func (s *EventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Now returns the current time of the underlying clock.
func (s *EventScheduler) Now() time.Time {
	return s.clock.Now()
}

// RunDue executes every event scheduled at or before Now. Callbacks run
// outside the lock and may schedule further events; those run in the same
// call when already due.
func (s *EventScheduler) RunDue() int {
	ran := 0
	for {
		s.mu.Lock()
		ev := s.popDueLocked(s.clock.Now())
		s.mu.Unlock()
		if ev == nil {
			return ran
		}
		if ev.f != nil {
			ev.f()
		}
		ran++
	}
}

func (s *EventScheduler) popDueLocked(now time.Time) *scheduledEvent {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if ev.when.After(now) {
			return nil
		}
		s.events = s.events[1:]
		delete(s.index, ev.id)
		return ev
	}
	return nil
}
