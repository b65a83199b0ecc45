// Package builder turns uploaded exercise bundles into catalog images.
package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/trainbox/orchestrator/internal/docker"
	"github.com/trainbox/orchestrator/internal/events"
	"github.com/trainbox/orchestrator/internal/logging"
	"github.com/trainbox/orchestrator/internal/metrics"
	"github.com/trainbox/orchestrator/internal/store"
)

// ErrInvalidBundle marks an upload that failed validation: unsupported
// archive, missing required members, or bad metadata.
var ErrInvalidBundle = errors.New("invalid exercise bundle")

// ErrBuildFailed marks a bundle the runtime refused to build.
var ErrBuildFailed = errors.New("image build failed")

// Builder extracts uploaded bundles, builds their images, and records the
// result in the catalog.
type Builder struct {
	docker  docker.API
	store   *store.Store
	bus     *events.Bus
	log     *logging.Logger
	workDir string
}

// New creates a Builder extracting into workDir.
func New(d docker.API, s *store.Store, bus *events.Bus, log *logging.Logger, workDir string) *Builder {
	return &Builder{docker: d, store: s, bus: bus, log: log, workDir: workDir}
}

// Build processes an uploaded archive and returns the new catalog entry.
// The archive and the working directory are removed on every exit path.
// Failures surface as ErrInvalidBundle or ErrBuildFailed.
func (b *Builder) Build(ctx context.Context, archivePath, subject string) (store.Exercise, error) {
	defer os.Remove(archivePath)

	if err := os.MkdirAll(b.workDir, 0755); err != nil {
		return store.Exercise{}, fmt.Errorf("create work dir: %w", err)
	}
	workDir, err := os.MkdirTemp(b.workDir, "bundle-")
	if err != nil {
		return store.Exercise{}, fmt.Errorf("create extraction dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if err := extract(archivePath, workDir); err != nil {
		return store.Exercise{}, fmt.Errorf("%w: %s", ErrInvalidBundle, err)
	}

	// Both required members must sit at the archive root.
	for _, required := range []string{"Dockerfile", "metadata.json"} {
		if _, err := os.Stat(filepath.Join(workDir, required)); err != nil {
			return store.Exercise{}, fmt.Errorf("%w: bundle is missing %s", ErrInvalidBundle, required)
		}
	}

	metaRaw, err := os.ReadFile(filepath.Join(workDir, "metadata.json"))
	if err != nil {
		return store.Exercise{}, fmt.Errorf("%w: read metadata.json: %s", ErrInvalidBundle, err)
	}
	meta, err := parseMetadata(metaRaw)
	if err != nil {
		return store.Exercise{}, fmt.Errorf("%w: %s", ErrInvalidBundle, err)
	}
	tag := imageTag(meta)

	buildContext, err := packContext(workDir)
	if err != nil {
		return store.Exercise{}, fmt.Errorf("%w: %s", ErrInvalidBundle, err)
	}

	start := time.Now()
	err = b.docker.BuildImage(ctx, buildContext, tag, func(line string) {
		b.log.Debug("build progress", "tag", tag, "line", line)
	})
	metrics.BuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BuildsTotal.WithLabelValues("failed").Inc()
		return store.Exercise{}, fmt.Errorf("%w: %s", ErrBuildFailed, err)
	}

	now := time.Now().UTC()
	ex := store.Exercise{
		ID:          uuid.NewString(),
		Title:       meta.Title,
		Description: meta.Description,
		Level:       meta.Level,
		Version:     meta.Version,
		ImageTag:    tag,
		Metadata:    meta.Raw,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.store.InsertExercise(ex); err != nil {
		metrics.BuildsTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, store.ErrConflict) {
			return store.Exercise{}, fmt.Errorf("%w: %s", ErrInvalidBundle, err)
		}
		return store.Exercise{}, fmt.Errorf("record exercise: %w", err)
	}

	metrics.BuildsTotal.WithLabelValues("success").Inc()
	b.journal(store.Event{
		Kind:    store.EventImageBuilt,
		Subject: subject,
		Target:  ex.ID,
		Attrs:   map[string]string{"tag": tag, "title": meta.Title, "level": meta.Level},
	})
	b.bus.Publish(events.Event{Kind: events.KindImageBuilt, Subject: subject, Target: ex.ID, Attrs: map[string]string{"tag": tag}})
	b.log.Info("exercise image built", "tag", tag, "exercise", ex.ID, "duration", time.Since(start))

	return ex, nil
}

// DeleteExercise removes a catalog entry and its underlying image. The
// image removal is best-effort; a missing image does not resurrect the
// catalog row.
func (b *Builder) DeleteExercise(ctx context.Context, id, subject string) error {
	ex, err := b.store.DeleteExercise(id)
	if err != nil {
		return err
	}

	if err := b.docker.RemoveImage(ctx, ex.ImageTag); err != nil {
		b.log.Warn("failed to remove exercise image", "tag", ex.ImageTag, "error", err)
	}

	b.journal(store.Event{
		Kind:    store.EventImageDeleted,
		Subject: subject,
		Target:  id,
		Attrs:   map[string]string{"tag": ex.ImageTag},
	})
	b.bus.Publish(events.Event{Kind: events.KindImageDeleted, Subject: subject, Target: id, Attrs: map[string]string{"tag": ex.ImageTag}})
	return nil
}

func (b *Builder) journal(evt store.Event) {
	if err := b.store.AppendEvent(evt); err != nil {
		b.log.Warn("failed to journal event", "kind", evt.Kind, "error", err)
	}
}
