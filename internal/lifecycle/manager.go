// Package lifecycle owns sandbox containers from launch to removal: it
// enforces the launch policy, runs one watcher per container, and
// reconciles the registry against the runtime.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/trainbox/orchestrator/internal/activity"
	"github.com/trainbox/orchestrator/internal/clock"
	"github.com/trainbox/orchestrator/internal/config"
	"github.com/trainbox/orchestrator/internal/docker"
	"github.com/trainbox/orchestrator/internal/events"
	"github.com/trainbox/orchestrator/internal/logging"
	"github.com/trainbox/orchestrator/internal/metrics"
	"github.com/trainbox/orchestrator/internal/store"
)

// Manager is the only component that mutates container status. The
// registry stays the source of truth; the runtime is brought in line
// with it, never the other way around.
type Manager struct {
	docker   docker.API
	store    *store.Store
	activity *activity.Tracker
	bus      *events.Bus
	clock    clock.Clock
	log      *logging.Logger
	cfg      *config.Config

	rootCtx    context.Context
	rootCancel context.CancelFunc

	// per-subject locks serialise policy check + insert for one subject
	launchMu sync.Mutex
	launches map[string]*sync.Mutex

	watchMu  sync.Mutex
	watchers map[string]context.CancelFunc

	reconciling atomic.Bool
}

// New creates a Manager. Watchers and the reconciler stop when Close is
// called; running containers are left alone.
func New(d docker.API, s *store.Store, act *activity.Tracker, bus *events.Bus, clk clock.Clock, log *logging.Logger, cfg *config.Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		docker:     d,
		store:      s,
		activity:   act,
		bus:        bus,
		clock:      clk,
		log:        log,
		cfg:        cfg,
		rootCtx:    ctx,
		rootCancel: cancel,
		launches:   make(map[string]*sync.Mutex),
		watchers:   make(map[string]context.CancelFunc),
	}
}

// Close cancels all watchers and the reconcile loop. Sandbox containers
// keep running; the next boot recovers them.
func (m *Manager) Close() {
	m.rootCancel()
}

func (m *Manager) subjectLock(subject string) *sync.Mutex {
	m.launchMu.Lock()
	defer m.launchMu.Unlock()
	mu, ok := m.launches[subject]
	if !ok {
		mu = &sync.Mutex{}
		m.launches[subject] = mu
	}
	return mu
}

// Launch creates and starts a sandbox for (subject, exercise). The policy
// check and the registry insert run under a per-subject lock, so two
// concurrent launches for the same pair end with one success and one
// AlreadyRunningError.
func (m *Manager) Launch(ctx context.Context, subject, exerciseID string) (store.ContainerRecord, error) {
	mu := m.subjectLock(subject)
	mu.Lock()
	defer mu.Unlock()

	rec, err := m.launch(ctx, subject, exerciseID)
	if err != nil {
		metrics.LaunchesTotal.WithLabelValues("denied").Inc()
		return rec, err
	}
	metrics.LaunchesTotal.WithLabelValues("success").Inc()
	metrics.ContainersRunning.Inc()
	return rec, nil
}

func (m *Manager) launch(ctx context.Context, subject, exerciseID string) (store.ContainerRecord, error) {
	if existing, err := m.store.GetBySubjectExerciseRunning(subject, exerciseID); err == nil {
		return store.ContainerRecord{}, &AlreadyRunningError{Subdomain: existing.Subdomain}
	} else if !store.IsNotFound(err) {
		return store.ContainerRecord{}, err
	}

	count, err := m.store.CountRunningBySubject(subject)
	if err != nil {
		return store.ContainerRecord{}, err
	}
	if count >= m.cfg.MaxPerUser {
		return store.ContainerRecord{}, ErrQuotaExceeded
	}

	ex, err := m.store.GetExercise(exerciseID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.ContainerRecord{}, ErrUnknownExercise
		}
		return store.ContainerRecord{}, err
	}

	if err := m.docker.EnsureNetwork(ctx, m.cfg.NetworkName); err != nil {
		return store.ContainerRecord{}, fmt.Errorf("ensure network: %w", err)
	}

	subdomain := uuid.NewString()
	spec := docker.SandboxSpec{
		Image: ex.ImageTag,
		Name:  "training-" + subdomain,
		Env: []string{
			"TRAINING_SUBDOMAIN=" + subdomain,
			fmt.Sprintf("CALLBACK_URL=http://%s/api/containers/%s/complete", m.cfg.BaseDomain, subdomain),
		},
		Labels:  docker.SandboxLabels(subdomain, subject, exerciseID),
		Network: m.cfg.NetworkName,
	}

	containerID, err := m.docker.CreateAndStartSandbox(ctx, spec)
	if err != nil {
		return store.ContainerRecord{}, fmt.Errorf("start sandbox: %w", err)
	}

	hostPort, err := m.docker.SandboxHostPort(ctx, containerID)
	if err != nil || hostPort == "" {
		if stopErr := m.docker.StopAndRemove(ctx, containerID); stopErr != nil {
			m.log.Warn("failed to remove refused sandbox", "container", containerID, "error", stopErr)
		}
		if err != nil {
			return store.ContainerRecord{}, fmt.Errorf("%w: %s", ErrRuntimeRefused, err)
		}
		return store.ContainerRecord{}, ErrRuntimeRefused
	}

	now := m.clock.Now().UTC()
	rec := store.ContainerRecord{
		ContainerID:  containerID,
		ExerciseID:   exerciseID,
		Subject:      subject,
		Subdomain:    subdomain,
		Status:       store.StatusRunning,
		HostPort:     hostPort,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := m.store.InsertContainer(rec); err != nil {
		if stopErr := m.docker.StopAndRemove(ctx, containerID); stopErr != nil {
			m.log.Warn("failed to roll back sandbox", "container", containerID, "error", stopErr)
		}
		if store.IsConflict(err) {
			if existing, lookupErr := m.store.GetBySubjectExerciseRunning(subject, exerciseID); lookupErr == nil {
				return store.ContainerRecord{}, &AlreadyRunningError{Subdomain: existing.Subdomain}
			}
		}
		return store.ContainerRecord{}, fmt.Errorf("register sandbox: %w", err)
	}

	m.activity.Seed(subdomain, now)
	m.startWatcher(rec)

	if err := m.store.BumpProgressAttempt(subject, exerciseID); err != nil {
		m.log.Warn("failed to bump progress", "subject", subject, "exercise", exerciseID, "error", err)
	}
	m.journal(store.Event{
		Kind:    store.EventContainerCreated,
		Subject: subject,
		Target:  containerID,
		Attrs:   map[string]string{"exercise": exerciseID, "subdomain": subdomain, "host_port": hostPort},
	})
	m.bus.Publish(events.Event{Kind: events.KindContainerCreated, Subject: subject, Target: containerID, Attrs: map[string]string{"subdomain": subdomain}})
	m.log.Info("sandbox launched", "subject", subject, "exercise", exerciseID, "container", containerID, "subdomain", subdomain)

	return rec, nil
}

// Stop stops a container on behalf of a subject. Non-owners get
// ErrForbidden unless asAdmin is set. The runtime stop is best-effort;
// the registry transition always happens.
func (m *Manager) Stop(ctx context.Context, containerID, subject string, asAdmin bool) error {
	rec, err := m.store.GetContainer(containerID)
	if err != nil {
		return err
	}
	if !asAdmin && rec.Subject != subject {
		return ErrForbidden
	}
	reason := store.StopReasonUser
	if asAdmin {
		reason = store.StopReasonAdmin
	}
	return m.stop(ctx, rec, reason)
}

// stop is the single teardown path: runtime removal, status transition,
// activity eviction, watcher cancellation, journal entry. rec must be a
// freshly read record so the gauge moves only on a real transition out
// of running.
func (m *Manager) stop(ctx context.Context, rec store.ContainerRecord, reason string) error {
	if err := m.docker.StopAndRemove(ctx, rec.ContainerID); err != nil {
		m.log.Warn("runtime stop failed", "container", rec.ContainerID, "error", err)
	}

	final, err := m.store.SetContainerStatus(rec.ContainerID, store.StatusStopped)
	if err != nil {
		return err
	}

	m.activity.Evict(rec.Subdomain)
	m.cancelWatcher(rec.ContainerID)

	if rec.Status == store.StatusRunning {
		metrics.ContainersRunning.Dec()
	}
	metrics.StopsTotal.WithLabelValues(reason).Inc()

	m.journal(store.Event{
		Kind:    store.EventContainerStopped,
		Subject: rec.Subject,
		Target:  rec.ContainerID,
		Attrs:   map[string]string{"reason": reason, "subdomain": rec.Subdomain, "status": final},
	})
	m.bus.Publish(events.Event{Kind: events.KindContainerStopped, Subject: rec.Subject, Target: rec.ContainerID, Attrs: map[string]string{"reason": reason}})
	m.log.Info("sandbox stopped", "container", rec.ContainerID, "reason", reason, "status", final)
	return nil
}

// Complete handles the in-container completion callback. The record is
// looked up by subdomain in any status, progress is marked completed, and
// the container status moves to completed only from running. The sandbox
// itself keeps running until its watcher reaps it or the owner stops it.
func (m *Manager) Complete(ctx context.Context, subdomain string, payload map[string]string) (store.ContainerRecord, error) {
	rec, err := m.store.GetBySubdomain(subdomain)
	if err != nil {
		return store.ContainerRecord{}, err
	}

	if err := m.store.MarkProgressCompleted(rec.Subject, rec.ExerciseID, m.clock.Now()); err != nil {
		return store.ContainerRecord{}, fmt.Errorf("mark progress: %w", err)
	}

	final, err := m.store.SetContainerStatus(rec.ContainerID, store.StatusCompleted)
	if err != nil {
		return store.ContainerRecord{}, err
	}
	if rec.Status == store.StatusRunning && final == store.StatusCompleted {
		metrics.ContainersRunning.Dec()
	}

	attrs := map[string]string{"subdomain": subdomain, "exercise": rec.ExerciseID}
	for k, v := range payload {
		attrs["payload_"+k] = v
	}
	m.journal(store.Event{
		Kind:    store.EventExerciseCompleted,
		Subject: rec.Subject,
		Target:  rec.ContainerID,
		Attrs:   attrs,
	})
	m.bus.Publish(events.Event{Kind: events.KindExerciseCompleted, Subject: rec.Subject, Target: rec.ContainerID, Attrs: map[string]string{"exercise": rec.ExerciseID}})
	m.log.Info("exercise completed", "subject", rec.Subject, "exercise", rec.ExerciseID, "subdomain", subdomain)

	rec.Status = final
	return rec, nil
}

// RecoverAtBoot reseeds the activity tracker and restarts watchers for
// every record still marked running. The stored last-activity value is at
// least as old as the real one, so recovery can only delay reaping.
func (m *Manager) RecoverAtBoot() error {
	records, err := m.store.ListRunningContainers()
	if err != nil {
		return fmt.Errorf("list running containers: %w", err)
	}
	for _, rec := range records {
		last := rec.LastActivity
		if last.IsZero() {
			last = rec.CreatedAt
		}
		m.activity.Seed(rec.Subdomain, last)
		m.startWatcher(rec)
	}
	metrics.ContainersRunning.Set(float64(len(records)))
	m.log.Info("recovered running sandboxes", "count", len(records))
	return nil
}

func (m *Manager) journal(evt store.Event) {
	if err := m.store.AppendEvent(evt); err != nil {
		m.log.Warn("failed to journal event", "kind", evt.Kind, "error", err)
	}
}
