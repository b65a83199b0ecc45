package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/trainbox/orchestrator/internal/events"
)

type testLogger struct {
	mu     sync.Mutex
	errors int
	infos  int
}

func (l *testLogger) Info(msg string, args ...any) {
	l.mu.Lock()
	l.infos++
	l.mu.Unlock()
}

func (l *testLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

type stubNotifier struct {
	name string
	err  error

	mu   sync.Mutex
	sent []Event
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Send(_ context.Context, event Event) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.sent = append(s.sent, event)
	s.mu.Unlock()
	return nil
}

func (s *stubNotifier) delivered() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.sent...)
}

func TestMultiFansOut(t *testing.T) {
	log := &testLogger{}
	a := &stubNotifier{name: "a"}
	b := &stubNotifier{name: "b"}
	m := NewMulti(log, a, b)

	ok := m.Notify(context.Background(), Event{Kind: "container.created", Target: "c1"})
	if !ok {
		t.Error("Notify = false, want true")
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("sent counts = %d, %d, want 1, 1", len(a.sent), len(b.sent))
	}
}

func TestMultiToleratesFailure(t *testing.T) {
	log := &testLogger{}
	bad := &stubNotifier{name: "bad", err: errors.New("boom")}
	good := &stubNotifier{name: "good"}
	m := NewMulti(log, bad, good)

	ok := m.Notify(context.Background(), Event{Kind: "container.stopped"})
	if !ok {
		t.Error("Notify = false although one sink succeeded")
	}
	if log.errors != 1 {
		t.Errorf("logged %d errors, want 1", log.errors)
	}
}

func TestMultiNoNotifiers(t *testing.T) {
	m := NewMulti(&testLogger{})
	if !m.Notify(context.Background(), Event{Kind: "image.built"}) {
		t.Error("Notify with empty chain = false, want true")
	}
}

func TestWebhookSend(t *testing.T) {
	var got Event
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, map[string]string{"Authorization": "Bearer tok"})
	err := wh.Send(context.Background(), Event{
		Kind:      "container.stopped",
		Target:    "c1",
		Attrs:     map[string]string{"reason": "idle"},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Kind != "container.stopped" || got.Attrs["reason"] != "idle" {
		t.Errorf("received %+v", got)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestWebhookNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, nil)
	if err := wh.Send(context.Background(), Event{Kind: "image.built"}); err == nil {
		t.Error("Send accepted a 502 response")
	}
}

func TestBridgeForwardsBusEvents(t *testing.T) {
	log := &testLogger{}
	sink := &stubNotifier{name: "sink"}
	m := NewMulti(log, sink)
	bus := events.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Bridge(ctx, bus, m)
		close(done)
	}()

	// Give the bridge a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	bus.Publish(events.Event{Kind: events.KindContainerCreated, Subject: "u1", Target: "c1"})

	deadline := time.After(2 * time.Second)
	for len(sink.delivered()) == 0 {
		select {
		case <-deadline:
			t.Fatal("bridge did not forward the event")
		case <-time.After(10 * time.Millisecond):
		}
	}
	got := sink.delivered()[0]
	if got.Kind != "container.created" || got.Subject != "u1" {
		t.Errorf("forwarded %+v", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not exit on cancel")
	}
}
