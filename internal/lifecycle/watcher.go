package lifecycle

import (
	"context"

	"github.com/trainbox/orchestrator/internal/store"
)

// startWatcher runs one watcher goroutine for a container. The watcher is
// cancelled through stop() when the record leaves running by any path, and
// exits within one tick.
func (m *Manager) startWatcher(rec store.ContainerRecord) {
	ctx, cancel := context.WithCancel(m.rootCtx)
	m.watchMu.Lock()
	m.watchers[rec.ContainerID] = cancel
	m.watchMu.Unlock()

	go m.watch(ctx, rec)
}

func (m *Manager) cancelWatcher(containerID string) {
	m.watchMu.Lock()
	cancel, ok := m.watchers[containerID]
	if ok {
		delete(m.watchers, containerID)
	}
	m.watchMu.Unlock()
	if ok {
		cancel()
	}
}

// watch ticks every CheckInterval and reaps the container when it has been
// idle past IdleLimit or alive past LifetimeLimit. The in-memory activity
// timestamp is persisted to the registry row once per tick so a restart
// recovers a fresh idle baseline.
func (m *Manager) watch(ctx context.Context, rec store.ContainerRecord) {
	defer m.cancelWatcher(rec.ContainerID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.cfg.CheckInterval):
		}

		current, err := m.store.GetContainer(rec.ContainerID)
		if err != nil {
			// Record purged; nothing left to watch.
			return
		}

		last, ok := m.activity.Last(rec.Subdomain)
		if ok {
			if err := m.store.TouchContainerActivity(rec.ContainerID, last); err != nil && !store.IsNotFound(err) {
				m.log.Warn("failed to persist activity", "container", rec.ContainerID, "error", err)
			}
		} else {
			last = current.LastActivity
		}

		now := m.clock.Now()
		switch {
		case now.Sub(last) >= m.cfg.IdleLimit:
			m.reap(current, store.StopReasonIdle)
			return
		case now.Sub(rec.CreatedAt) >= m.cfg.LifetimeLimit:
			m.reap(current, store.StopReasonLifetime)
			return
		}
	}
}

// reap tears a container down on the watcher's behalf. The root context is
// used so an in-flight reap survives its own watcher cancellation.
func (m *Manager) reap(rec store.ContainerRecord, reason string) {
	if err := m.stop(m.rootCtx, rec, reason); err != nil {
		m.log.Error("failed to reap sandbox", "container", rec.ContainerID, "reason", reason, "error", err)
	}
}
