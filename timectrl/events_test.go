package timectrl

import (
	"testing"
	"time"
)

func TestEventSchedulerSingleEvent(t *testing.T) {
	tc := NewTimeController(epoch, 10*time.Second, Accelerated)
	sched := NewEventScheduler(tc)

	counter := 0
	id := sched.Schedule(epoch.Add(10*time.Second), func() { counter++ })
	if id == "" {
		t.Fatalf("Schedule returned empty ID")
	}

	if ran := sched.RunDue(); ran != 0 || counter != 0 {
		t.Fatalf("event ran before its time")
	}

	tc.Step()
	if ran := sched.RunDue(); ran != 1 || counter != 1 {
		t.Fatalf("expected one run at t1, got ran=%d counter=%d", ran, counter)
	}

	sched.RunDue()
	if counter != 1 {
		t.Fatalf("event must not run twice, counter=%d", counter)
	}
	if sched.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", sched.Pending())
	}
}

func TestEventSchedulerOrdering(t *testing.T) {
	tc := NewTimeController(epoch, time.Minute, Accelerated)
	sched := NewEventScheduler(tc)

	var order []string
	sched.Schedule(epoch.Add(30*time.Second), func() { order = append(order, "c") })
	sched.Schedule(epoch.Add(10*time.Second), func() { order = append(order, "a") })
	sched.Schedule(epoch.Add(10*time.Second), func() { order = append(order, "b") })

	tc.Step()
	sched.RunDue()

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestEventSchedulerCancel(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, Accelerated)
	sched := NewEventScheduler(tc)

	ran := false
	id := sched.ScheduleAfter(time.Second, func() { ran = true })
	sched.Cancel(id)
	sched.Cancel("unknown")

	tc.Step()
	sched.RunDue()
	if ran {
		t.Fatalf("cancelled event ran")
	}
}

func TestEventSchedulerReentrantSchedule(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, Accelerated)
	sched := NewEventScheduler(tc)

	var order []string
	sched.ScheduleAfter(0, func() {
		order = append(order, "outer")
		sched.ScheduleAfter(0, func() { order = append(order, "inner") })
		sched.ScheduleAfter(time.Hour, func() { order = append(order, "later") })
	})

	if ran := sched.RunDue(); ran != 2 {
		t.Fatalf("ran = %d, want 2", ran)
	}
	if len(order) != 2 || order[1] != "inner" {
		t.Fatalf("order = %v", order)
	}
	if sched.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", sched.Pending())
	}
}
