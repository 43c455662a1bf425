package kb

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/signalsfoundry/transmitter-sim/model"
)

func TestAddAndGetSubject(t *testing.T) {
	archive := NewArchive()
	if err := archive.AddSubject(&Subject{ID: "temp@orbit", Title: "Temperature Scan", ScienceCap: 8}); err != nil {
		t.Fatalf("AddSubject error: %v", err)
	}
	got, err := archive.GetSubject("temp@orbit")
	if err != nil {
		t.Fatalf("GetSubject error: %v", err)
	}
	if got.Title != "Temperature Scan" || got.DataScale != 1 {
		t.Fatalf("GetSubject returned %#v, want title and default scale", got)
	}
	if _, err := archive.GetSubject("missing"); !errors.Is(err, ErrSubjectNotFound) {
		t.Fatalf("GetSubject(missing) err = %v, want ErrSubjectNotFound", err)
	}
}

func TestAddSubjectValidation(t *testing.T) {
	archive := NewArchive()
	if err := archive.AddSubject(&Subject{ID: "s1"}); err != nil {
		t.Fatalf("first AddSubject error: %v", err)
	}
	if err := archive.AddSubject(&Subject{ID: "s1"}); !errors.Is(err, ErrSubjectExists) {
		t.Fatalf("duplicate err = %v, want ErrSubjectExists", err)
	}
	if err := archive.AddSubject(&Subject{}); !errors.Is(err, ErrSubjectInvalid) {
		t.Fatalf("empty ID err = %v, want ErrSubjectInvalid", err)
	}
	if err := archive.AddSubject(&Subject{ID: "neg", ScienceCap: -1}); !errors.Is(err, ErrSubjectInvalid) {
		t.Fatalf("negative cap err = %v, want ErrSubjectInvalid", err)
	}
}

func TestListSubjectsSorted(t *testing.T) {
	archive := NewArchive()
	for _, id := range []string{"c", "a", "b"} {
		if err := archive.AddSubject(&Subject{ID: id}); err != nil {
			t.Fatalf("AddSubject error: %v", err)
		}
	}
	got := archive.ListSubjects()
	if len(got) != 3 || got[0].ID != "a" || got[2].ID != "c" {
		t.Fatalf("ListSubjects = %v", got)
	}
}

func TestResolveUnknownSubject(t *testing.T) {
	archive := NewArchive()
	if _, ok := archive.Resolve(&model.DataItem{ID: "i", SubjectID: "nope"}); ok {
		t.Fatalf("Resolve should fail for an unknown subject")
	}
	if _, ok := archive.Resolve(nil); ok {
		t.Fatalf("Resolve should fail for a nil item")
	}
}

func TestStreamCreditsScience(t *testing.T) {
	archive := NewArchive()
	if err := archive.AddSubject(&Subject{ID: "s", ScienceCap: 10, DataScale: 2}); err != nil {
		t.Fatalf("AddSubject error: %v", err)
	}

	var events []Event
	archive.Subscribe(func(e Event) { events = append(events, e) })

	item := &model.DataItem{ID: "i", SubjectID: "s", Size: 30, BaseTransmitValue: 0.5, TransmitBonus: 2}
	stream, ok := archive.Resolve(item)
	if !ok {
		t.Fatalf("Resolve failed")
	}
	for i := 0; i < 4; i++ {
		stream.StreamData(10, "vessel-1")
	}

	s, _ := archive.GetSubject("s")
	if s.DataReceived != 30 {
		t.Fatalf("data received = %v, want 30 (clipped at item size)", s.DataReceived)
	}
	if math.Abs(s.Science-10) > 1e-9 {
		t.Fatalf("science = %v, want cap 10", s.Science)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Type != EventScienceCredited || events[0].Destination != "vessel-1" || events[0].Science != 5 {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[2].Science != 0 {
		t.Fatalf("capped subject must earn nothing more, got %v", events[2].Science)
	}
	if cs := stream.(*CommsStream); cs.Streamed() != 30 {
		t.Fatalf("streamed = %v, want 30", cs.Streamed())
	}
}

func TestDeliverRecordsReception(t *testing.T) {
	archive := NewArchive()
	var got Event
	unsubscribe := archive.Subscribe(func(e Event) { got = e })

	archive.Deliver(&model.DataItem{ID: "i1", SubjectID: "s", Size: 100, Transmitted: 40}, true)
	if got.Type != EventItemReceived || !got.Reception.Partial || got.Reception.Transmitted != 40 {
		t.Fatalf("event = %+v", got)
	}

	unsubscribe()
	got = Event{}
	archive.Deliver(&model.DataItem{ID: "i2", Size: 5, Transmitted: 5}, false)
	if got.Reception.ItemID != "" {
		t.Fatalf("unsubscribed callback still invoked")
	}

	rec := archive.Received()
	if len(rec) != 2 || rec[0].ItemID != "i1" || rec[1].Partial {
		t.Fatalf("Received = %+v", rec)
	}
}

func TestConcurrentAccess(t *testing.T) {
	archive := NewArchive()
	if err := archive.AddSubject(&Subject{ID: "s", ScienceCap: 1e9}); err != nil {
		t.Fatalf("AddSubject error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = archive.GetSubject("s")
			_ = archive.ListSubjects()
		}()
		go func() {
			defer wg.Done()
			stream, ok := archive.Resolve(&model.DataItem{ID: fmt.Sprintf("i-%d", i), SubjectID: "s", Size: 1, BaseTransmitValue: 1})
			if ok {
				stream.StreamData(1, "v")
			}
		}()
	}
	wg.Wait()

	s, _ := archive.GetSubject("s")
	if s.DataReceived != 10 {
		t.Fatalf("data received = %v, want 10", s.DataReceived)
	}
}
