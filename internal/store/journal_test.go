package store

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestJournalNewestFirst(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := s.AppendEvent(Event{
			Kind:      EventContainerCreated,
			Subject:   "u1",
			Target:    fmt.Sprintf("c%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	events, err := s.ListEvents(10, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Target != "c2" || events[2].Target != "c0" {
		t.Errorf("order = [%s %s %s], want newest first", events[0].Target, events[1].Target, events[2].Target)
	}
}

func TestJournalSubSecondOrdering(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	// 120ms then 100ms: a trailing-zero-trimmed key format would sort
	// ".1" after ".12" and flip these two.
	for _, evt := range []Event{
		{Kind: EventContainerCreated, Target: "later", Timestamp: base.Add(120 * time.Millisecond)},
		{Kind: EventContainerCreated, Target: "earlier", Timestamp: base.Add(100 * time.Millisecond)},
	} {
		if err := s.AppendEvent(evt); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	events, err := s.ListEvents(10, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Target != "later" || events[1].Target != "earlier" {
		t.Errorf("order = [%s %s], want [later earlier]", events[0].Target, events[1].Target)
	}
}

func TestJournalPaging(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := s.AppendEvent(Event{Kind: EventImageBuilt, Target: fmt.Sprintf("t%d", i), Timestamp: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatal(err)
		}
	}

	page0, err := s.ListEvents(2, 0)
	if err != nil {
		t.Fatal(err)
	}
	page1, err := s.ListEvents(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page0) != 2 || len(page1) != 2 {
		t.Fatalf("page sizes = %d, %d, want 2, 2", len(page0), len(page1))
	}
	if page0[0].Target != "t4" || page1[0].Target != "t2" {
		t.Errorf("pages = %s.., %s.., want t4.., t2..", page0[0].Target, page1[0].Target)
	}
}

func TestJournalConcurrentAppends(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Identical timestamps must not overwrite each other.
			_ = s.AppendEvent(Event{Kind: EventContainerStopped, Target: fmt.Sprintf("c%d", n), Timestamp: now})
		}(i)
	}
	wg.Wait()

	events, err := s.ListEvents(100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
}

func TestJournalAttrs(t *testing.T) {
	s := testStore(t)

	err := s.AppendEvent(Event{
		Kind:   EventContainerStopped,
		Target: "c1",
		Attrs:  map[string]string{"reason": StopReasonIdle},
	})
	if err != nil {
		t.Fatal(err)
	}

	events, err := s.ListEvents(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if events[0].Attrs["reason"] != StopReasonIdle {
		t.Errorf("reason = %q, want idle", events[0].Attrs["reason"])
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp was not defaulted")
	}
}
