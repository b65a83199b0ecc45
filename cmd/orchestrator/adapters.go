package main

import (
	"context"
	"fmt"

	"github.com/trainbox/orchestrator/internal/builder"
	"github.com/trainbox/orchestrator/internal/docker"
	"github.com/trainbox/orchestrator/internal/lifecycle"
	"github.com/trainbox/orchestrator/internal/store"
	"github.com/trainbox/orchestrator/internal/web"
)

// --- Adapters bridging concrete types to web.Dependencies interfaces ---

func toContainerSummary(rec store.ContainerRecord) web.ContainerSummary {
	return web.ContainerSummary{
		ContainerID:  rec.ContainerID,
		ExerciseID:   rec.ExerciseID,
		Subject:      rec.Subject,
		Subdomain:    rec.Subdomain,
		Status:       rec.Status,
		CreatedAt:    rec.CreatedAt,
		LastActivity: rec.LastActivity,
	}
}

func toExerciseSummary(ex store.Exercise) web.ExerciseSummary {
	return web.ExerciseSummary{
		ID:          ex.ID,
		Title:       ex.Title,
		Description: ex.Description,
		Level:       ex.Level,
		Version:     ex.Version,
		ImageTag:    ex.ImageTag,
		CreatedAt:   ex.CreatedAt,
	}
}

// launcherAdapter converts lifecycle.Manager to web.SandboxLauncher.
type launcherAdapter struct{ m *lifecycle.Manager }

func (a *launcherAdapter) Launch(ctx context.Context, subject, exerciseID string) (web.ContainerSummary, error) {
	rec, err := a.m.Launch(ctx, subject, exerciseID)
	if err != nil {
		return web.ContainerSummary{}, err
	}
	return toContainerSummary(rec), nil
}

func (a *launcherAdapter) Stop(ctx context.Context, containerID, subject string, asAdmin bool) error {
	return a.m.Stop(ctx, containerID, subject, asAdmin)
}

func (a *launcherAdapter) Complete(ctx context.Context, subdomain string, payload map[string]string) (web.ContainerSummary, error) {
	rec, err := a.m.Complete(ctx, subdomain, payload)
	if err != nil {
		return web.ContainerSummary{}, err
	}
	return toContainerSummary(rec), nil
}

// builderAdapter converts builder.Builder to web.ExerciseBuilder.
type builderAdapter struct{ b *builder.Builder }

func (a *builderAdapter) Build(ctx context.Context, archivePath, subject string) (web.ExerciseSummary, error) {
	ex, err := a.b.Build(ctx, archivePath, subject)
	if err != nil {
		return web.ExerciseSummary{}, err
	}
	return toExerciseSummary(ex), nil
}

func (a *builderAdapter) Delete(ctx context.Context, id, subject string) error {
	return a.b.DeleteExercise(ctx, id, subject)
}

// catalogAdapter converts store.Store to web.CatalogReader.
type catalogAdapter struct{ s *store.Store }

func (a *catalogAdapter) ListExercises() ([]web.ExerciseSummary, error) {
	exercises, err := a.s.ListExercises()
	if err != nil {
		return nil, err
	}
	result := make([]web.ExerciseSummary, len(exercises))
	for i, ex := range exercises {
		result[i] = toExerciseSummary(ex)
	}
	return result, nil
}

func (a *catalogAdapter) ProgressBySubject(subject string) (map[string]web.ProgressSummary, error) {
	progress, err := a.s.ListProgressBySubject(subject)
	if err != nil {
		return nil, err
	}
	result := make(map[string]web.ProgressSummary, len(progress))
	for id, p := range progress {
		result[id] = web.ProgressSummary{Status: p.Status, Attempts: p.Attempts}
	}
	return result, nil
}

// registryAdapter converts store.Store to web.ContainerReader.
type registryAdapter struct{ s *store.Store }

func (a *registryAdapter) ListRunningBySubject(subject string) ([]web.ContainerSummary, error) {
	records, err := a.s.ListRunningBySubject(subject)
	if err != nil {
		return nil, err
	}
	result := make([]web.ContainerSummary, len(records))
	for i, rec := range records {
		result[i] = toContainerSummary(rec)
	}
	return result, nil
}

func (a *registryAdapter) ListRunning() ([]web.ContainerSummary, error) {
	records, err := a.s.ListRunningContainers()
	if err != nil {
		return nil, err
	}
	result := make([]web.ContainerSummary, len(records))
	for i, rec := range records {
		result[i] = toContainerSummary(rec)
	}
	return result, nil
}

// journalAdapter converts store.Store to web.EventReader.
type journalAdapter struct{ s *store.Store }

func (a *journalAdapter) ListEvents(limit, page int) ([]web.EventEntry, error) {
	events, err := a.s.ListEvents(limit, page)
	if err != nil {
		return nil, err
	}
	result := make([]web.EventEntry, len(events))
	for i, evt := range events {
		result[i] = web.EventEntry{
			Kind:      evt.Kind,
			Subject:   evt.Subject,
			Target:    evt.Target,
			Attrs:     evt.Attrs,
			Timestamp: evt.Timestamp,
		}
	}
	return result, nil
}

// healthAdapter checks runtime and store liveness for /healthz.
type healthAdapter struct {
	client *docker.Client
	store  *store.Store
}

func (a *healthAdapter) Check(ctx context.Context) error {
	if err := a.client.Ping(ctx); err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	if _, err := a.store.ListEvents(1, 0); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}
