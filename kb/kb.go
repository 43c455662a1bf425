package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/transmitter-sim/core"
	"github.com/signalsfoundry/transmitter-sim/model"
)

var (
	// ErrSubjectExists indicates a subject with the same ID is already known.
	ErrSubjectExists = errors.New("subject already exists")
	// ErrSubjectNotFound indicates a requested subject was not found.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrSubjectInvalid indicates a subject failed validation.
	ErrSubjectInvalid = errors.New("invalid subject")
)

// EventType indicates what kind of change happened in the archive.
type EventType int

const (
	// EventScienceCredited fires when streamed data earns science.
	EventScienceCredited EventType = iota
	// EventItemReceived fires when a transmitter delivers an item.
	EventItemReceived
)

// Subject is a science subject that streamed data is credited against.
type Subject struct {
	ID    string
	Title string

	// ScienceCap bounds the science the subject can ever yield.
	ScienceCap float64
	// DataScale is the amount of data worth one unit of science.
	DataScale float64

	// Science is the science earned so far.
	Science float64
	// DataReceived is the total data streamed against the subject.
	DataReceived float64
}

// Remaining returns the science still available from the subject.
func (s *Subject) Remaining() float64 {
	r := s.ScienceCap - s.Science
	if r < 0 {
		return 0
	}
	return r
}

// Reception records one item handed over by a transmitter.
type Reception struct {
	ItemID      string
	SubjectID   string
	Size        float64
	Transmitted float64
	Partial     bool
}

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type        EventType
	Subject     Subject
	Destination string
	Amount      float64
	Science     float64
	Reception   Reception
}

// Archive is an in-memory, thread-safe store of science subjects. It
// resolves data items to transfer streams and receives completed items.
type Archive struct {
	mu sync.RWMutex

	subjects  map[string]*Subject
	received  []Reception
	subs      map[int]func(Event)
	nextSubID int
}

// NewArchive constructs an empty archive.
func NewArchive() *Archive {
	return &Archive{
		subjects: make(map[string]*Subject),
		subs:     make(map[int]func(Event)),
	}
}

// AddSubject adds a new subject. A zero DataScale is stored as 1.
func (a *Archive) AddSubject(s *Subject) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: empty subject ID", ErrSubjectInvalid)
	}
	if s.ScienceCap < 0 || s.DataScale < 0 {
		return fmt.Errorf("%w: %q has negative cap or scale", ErrSubjectInvalid, s.ID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.subjects[s.ID]; exists {
		return fmt.Errorf("%w: %q", ErrSubjectExists, s.ID)
	}
	if s.DataScale == 0 {
		s.DataScale = 1
	}
	a.subjects[s.ID] = s
	return nil
}

// GetSubject returns a copy of the subject with the given ID.
func (a *Archive) GetSubject(id string) (Subject, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.subjects[id]
	if !ok {
		return Subject{}, fmt.Errorf("%w: %q", ErrSubjectNotFound, id)
	}
	return *s, nil
}

// ListSubjects returns copies of all subjects sorted by ID.
func (a *Archive) ListSubjects() []Subject {
	a.mu.RLock()
	defer a.mu.RUnlock()

	res := make([]Subject, 0, len(a.subjects))
	for _, s := range a.subjects {
		res = append(res, *s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Received returns the items delivered so far, in delivery order.
func (a *Archive) Received() []Reception {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Reception(nil), a.received...)
}

// Resolve opens a stream for item against its subject. It reports false
// when the subject is unknown.
func (a *Archive) Resolve(item *model.DataItem) (core.TransferContext, bool) {
	if item == nil {
		return nil, false
	}
	a.mu.RLock()
	_, ok := a.subjects[item.SubjectID]
	a.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &CommsStream{
		archive:   a,
		subjectID: item.SubjectID,
		size:      item.Size,
		value:     item.TransmitValue(),
	}, true
}

// Deliver records an item handed over by a transmitter.
func (a *Archive) Deliver(item *model.DataItem, partial bool) {
	rec := Reception{
		ItemID:      item.ID,
		SubjectID:   item.SubjectID,
		Size:        item.Size,
		Transmitted: item.Transmitted,
		Partial:     partial,
	}
	a.mu.Lock()
	a.received = append(a.received, rec)
	subs := a.subscribersLocked()
	a.mu.Unlock()

	ev := Event{Type: EventItemReceived, Reception: rec}
	for _, sub := range subs {
		sub(ev)
	}
}

// credit adds data to a subject, capped at its remaining science.
func (a *Archive) credit(subjectID, destination string, amount, value float64) {
	a.mu.Lock()
	s, ok := a.subjects[subjectID]
	if !ok {
		a.mu.Unlock()
		return
	}
	earned := amount / s.DataScale * value
	if r := s.Remaining(); earned > r {
		earned = r
	}
	s.DataReceived += amount
	s.Science += earned
	ev := Event{
		Type:        EventScienceCredited,
		Subject:     *s,
		Destination: destination,
		Amount:      amount,
		Science:     earned,
	}
	subs := a.subscribersLocked()
	a.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(ev)
	}
}

func (a *Archive) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(a.subs))
	for id := range a.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, a.subs[id])
	}
	return subs
}

// Subscribe registers a callback for archive events. It returns an
// unsubscribe function.
func (a *Archive) Subscribe(fn func(Event)) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextSubID
	a.nextSubID++
	a.subs[id] = fn

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subs, id)
	}
}

// CommsStream credits data streamed for one item to its subject.
type CommsStream struct {
	archive   *Archive
	subjectID string
	size      float64
	value     float64
	streamed  float64
}

// StreamData credits amount to the subject. Data past the item size is
// not credited.
func (c *CommsStream) StreamData(amount float64, destination string) {
	if amount <= 0 {
		return
	}
	if c.size > 0 {
		if left := c.size - c.streamed; amount > left {
			amount = left
		}
		if amount <= 0 {
			return
		}
	}
	c.streamed += amount
	c.archive.credit(c.subjectID, destination, amount, c.value)
}

// Streamed returns the data credited through this stream.
func (c *CommsStream) Streamed() float64 { return c.streamed }
