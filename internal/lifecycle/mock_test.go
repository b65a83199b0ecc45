package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/trainbox/orchestrator/internal/docker"
)

// mockDocker implements docker.API over an in-memory container table.
type mockDocker struct {
	mu        sync.Mutex
	nextID    int
	running   map[string]docker.SandboxInfo
	stopped   map[string]docker.SandboxInfo
	removed   []string
	networks  []string
	hostPorts map[string]string // container id -> port; default assigned
	specs     map[string]docker.SandboxSpec

	createErr error
	refuse    bool // SandboxHostPort returns ""
}

var _ docker.API = (*mockDocker)(nil)

func newMockDocker() *mockDocker {
	return &mockDocker{
		running:   make(map[string]docker.SandboxInfo),
		stopped:   make(map[string]docker.SandboxInfo),
		hostPorts: make(map[string]string),
		specs:     make(map[string]docker.SandboxSpec),
	}
}

func (m *mockDocker) CreateAndStartSandbox(_ context.Context, spec docker.SandboxSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.nextID++
	id := fmt.Sprintf("ctr-%d", m.nextID)
	m.running[id] = docker.SandboxInfo{ID: id, Labels: spec.Labels, State: "running"}
	m.hostPorts[id] = fmt.Sprintf("49%03d", m.nextID)
	m.specs[id] = spec
	return id, nil
}

func (m *mockDocker) specFor(id string) docker.SandboxSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.specs[id]
}

func (m *mockDocker) SandboxHostPort(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse {
		return "", nil
	}
	return m.hostPorts[id], nil
}

func (m *mockDocker) StopAndRemove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, id)
	delete(m.stopped, id)
	m.removed = append(m.removed, id)
	return nil
}

func (m *mockDocker) RemoveSandbox(ctx context.Context, id string) error {
	return m.StopAndRemove(ctx, id)
}

func (m *mockDocker) SandboxRunning(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok, nil
}

func (m *mockDocker) ListManagedSandboxes(_ context.Context, includeStopped bool) ([]docker.SandboxInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var infos []docker.SandboxInfo
	for _, info := range m.running {
		infos = append(infos, info)
	}
	if includeStopped {
		for _, info := range m.stopped {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func (m *mockDocker) EnsureNetwork(_ context.Context, name string) error {
	m.mu.Lock()
	m.networks = append(m.networks, name)
	m.mu.Unlock()
	return nil
}

func (m *mockDocker) removedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

// addOrphan plants a managed container the registry knows nothing about.
func (m *mockDocker) addOrphan(id string, labels map[string]string) {
	m.mu.Lock()
	m.running[id] = docker.SandboxInfo{ID: id, Labels: labels, State: "running"}
	m.mu.Unlock()
}

// kill simulates a container dying outside the orchestrator's control.
func (m *mockDocker) kill(id string) {
	m.mu.Lock()
	info := m.running[id]
	delete(m.running, id)
	info.State = "exited"
	m.stopped[id] = info
	m.mu.Unlock()
}

func (m *mockDocker) Ping(context.Context) error { return nil }
func (m *mockDocker) Close() error               { return nil }

func (m *mockDocker) BuildImage(context.Context, io.Reader, string, docker.BuildProgressFunc) error {
	return errors.New("not implemented in lifecycle tests")
}

func (m *mockDocker) RemoveImage(context.Context, string) error {
	return errors.New("not implemented in lifecycle tests")
}

func (m *mockDocker) PruneContainers(context.Context) (int, error) { return 0, nil }
func (m *mockDocker) PruneImages(context.Context) (int, error)     { return 0, nil }

// fakeClock is a controllable clock. After registers a waiter fired by
// Advance once the deadline passes.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []clockWaiter
}

type clockWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, clockWaiter{deadline: c.now.Add(d), ch: ch})
	c.mu.Unlock()
	return ch
}

// Advance moves the clock and fires every waiter whose deadline passed.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due, pending []clockWaiter
	for _, w := range c.waiters {
		if !w.deadline.After(now) {
			due = append(due, w)
		} else {
			pending = append(pending, w)
		}
	}
	c.waiters = pending
	c.mu.Unlock()

	for _, w := range due {
		w.ch <- now
	}
}

// waiterCount reports how many After calls are blocked, so tests can wait
// for a goroutine to reach its next tick before advancing.
func (c *fakeClock) waiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
