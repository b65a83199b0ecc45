package lifecycle

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trainbox/orchestrator/internal/docker"
	"github.com/trainbox/orchestrator/internal/metrics"
	"github.com/trainbox/orchestrator/internal/store"
)

// Reconcile brings the runtime and the registry back in line: orphaned
// runtime containers are force-removed, running records whose container is
// gone are marked stopped, stale terminal records are purged, and stopped
// containers and dangling images are pruned. Single-flight: a call that
// overlaps a run in progress returns immediately.
func (m *Manager) Reconcile(ctx context.Context) error {
	if !m.reconciling.CompareAndSwap(false, true) {
		m.log.Debug("reconcile already in progress, skipping")
		return nil
	}
	defer m.reconciling.Store(false)
	metrics.ReconcileRunsTotal.Inc()

	sandboxes, err := m.docker.ListManagedSandboxes(ctx, true)
	if err != nil {
		return err
	}

	for _, sb := range sandboxes {
		if _, err := m.store.GetContainer(sb.ID); err == nil {
			continue
		} else if !store.IsNotFound(err) {
			m.log.Warn("reconcile lookup failed", "container", sb.ID, "error", err)
			continue
		}

		if err := m.docker.RemoveSandbox(ctx, sb.ID); err != nil {
			m.log.Warn("failed to remove orphan sandbox", "container", sb.ID, "error", err)
			continue
		}
		metrics.ReconcileOrphansRemoved.Inc()
		subdomain, subject, _ := docker.SandboxIdentity(sb.Labels)
		m.journal(store.Event{
			Kind:    store.EventContainerStopped,
			Subject: subject,
			Target:  sb.ID,
			Attrs:   map[string]string{"reason": store.StopReasonOrphan, "subdomain": subdomain},
		})
		m.log.Info("removed orphan sandbox", "container", sb.ID, "subdomain", subdomain)
	}

	running, err := m.store.ListRunningContainers()
	if err != nil {
		return err
	}
	for _, rec := range running {
		alive, err := m.docker.SandboxRunning(ctx, rec.ContainerID)
		if err != nil {
			m.log.Warn("reconcile inspect failed", "container", rec.ContainerID, "error", err)
			continue
		}
		if alive {
			continue
		}
		if err := m.stop(ctx, rec, store.StopReasonOrphan); err != nil {
			m.log.Warn("failed to mark dead sandbox stopped", "container", rec.ContainerID, "error", err)
		}
	}

	cutoff := m.clock.Now().Add(-m.cfg.StoppedRetention)
	purged, err := m.store.PurgeStoppedOlderThan(cutoff)
	if err != nil {
		m.log.Warn("failed to purge stale records", "error", err)
	} else if purged > 0 {
		m.log.Info("purged stale container records", "count", purged)
	}

	if _, err := m.docker.PruneContainers(ctx); err != nil {
		m.log.Warn("container prune failed", "error", err)
	}
	if _, err := m.docker.PruneImages(ctx); err != nil {
		m.log.Warn("image prune failed", "error", err)
	}

	return nil
}

// RunReconciler runs Reconcile once immediately and then on a schedule:
// the cron expression when configured, the fixed interval otherwise.
// Blocks until ctx or the manager is cancelled.
func (m *Manager) RunReconciler(ctx context.Context) {
	run := func() {
		if err := m.Reconcile(ctx); err != nil {
			m.log.Error("reconcile failed", "error", err)
		}
	}
	run()

	var schedule cron.Schedule
	if m.cfg.ReconcileSchedule != "" {
		var err error
		schedule, err = cron.ParseStandard(m.cfg.ReconcileSchedule)
		if err != nil {
			// Validate() catches this at startup; fall back to the interval.
			m.log.Error("invalid reconcile schedule, using interval", "schedule", m.cfg.ReconcileSchedule, "error", err)
			schedule = nil
		}
	}

	for {
		var wait time.Duration
		if schedule != nil {
			wait = schedule.Next(m.clock.Now()).Sub(m.clock.Now())
		} else {
			wait = m.cfg.ReconcileInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-m.rootCtx.Done():
			return
		case <-m.clock.After(wait):
			run()
		}
	}
}
