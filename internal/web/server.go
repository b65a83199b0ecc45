// Package web serves the orchestrator's HTTP API: exercise uploads, launch
// and stop operations, the completion callback, and the admin surface.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trainbox/orchestrator/internal/events"
	"github.com/trainbox/orchestrator/internal/logging"
)

// Dependencies defines what the web server needs from the rest of the
// application.
type Dependencies struct {
	Launcher SandboxLauncher
	Builder  ExerciseBuilder
	Catalog  CatalogReader
	Registry ContainerReader
	Journal  EventReader
	Health   HealthChecker
	EventBus *events.Bus
	Log      *logging.Logger

	BaseDomain    string
	UploadMaxSize int64
	UploadDir     string
}

// SandboxLauncher drives the container lifecycle.
type SandboxLauncher interface {
	Launch(ctx context.Context, subject, exerciseID string) (ContainerSummary, error)
	Stop(ctx context.Context, containerID, subject string, asAdmin bool) error
	Complete(ctx context.Context, subdomain string, payload map[string]string) (ContainerSummary, error)
}

// ExerciseBuilder builds catalog images from uploaded bundles.
type ExerciseBuilder interface {
	Build(ctx context.Context, archivePath, subject string) (ExerciseSummary, error)
	Delete(ctx context.Context, id, subject string) error
}

// CatalogReader reads the exercise catalog and per-subject progress.
type CatalogReader interface {
	ListExercises() ([]ExerciseSummary, error)
	ProgressBySubject(subject string) (map[string]ProgressSummary, error)
}

// ContainerReader reads the container registry.
type ContainerReader interface {
	ListRunningBySubject(subject string) ([]ContainerSummary, error)
	ListRunning() ([]ContainerSummary, error)
}

// EventReader reads the journal newest-first.
type EventReader interface {
	ListEvents(limit, page int) ([]EventEntry, error)
}

// HealthChecker verifies the runtime connection and store liveness.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// ExerciseSummary mirrors store.Exercise for API responses.
type ExerciseSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Level       string    `json:"level"`
	Version     string    `json:"version"`
	ImageTag    string    `json:"image_tag"`
	CreatedAt   time.Time `json:"created_at"`

	// Per-subject progress, filled in by the catalog handler.
	Status   string `json:"status,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// ProgressSummary mirrors store.Progress.
type ProgressSummary struct {
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
}

// ContainerSummary mirrors store.ContainerRecord.
type ContainerSummary struct {
	ContainerID  string    `json:"containerId"`
	ExerciseID   string    `json:"exerciseId"`
	Subject      string    `json:"subject"`
	Subdomain    string    `json:"subdomain"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// EventEntry mirrors store.Event.
type EventEntry struct {
	Kind      string            `json:"kind"`
	Subject   string            `json:"subject,omitempty"`
	Target    string            `json:"target,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Server is the orchestrator API HTTP server.
type Server struct {
	deps   Dependencies
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates a Server with all routes registered.
func NewServer(deps Dependencies) *Server {
	s := &Server{
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the route mux so the subdomain proxy can wrap it as the
// outer handler on the listener.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server with handler as the outer handler.
// A bind failure is returned to the caller and is fatal at startup.
func (s *Server) ListenAndServe(addr string, handler http.Handler) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE and proxied streams are long-lived
		IdleTimeout:  120 * time.Second,
	}
	s.deps.Log.Info("orchestrator listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	user := func(h http.HandlerFunc) http.Handler { return s.requireSubject(h) }
	admin := func(h http.HandlerFunc) http.Handler { return s.requireAdmin(h) }

	// Exercises
	s.mux.Handle("POST /api/exercises/upload", admin(s.apiUploadExercise))
	s.mux.Handle("GET /api/exercises", user(s.apiListExercises))
	s.mux.Handle("POST /api/exercises/launch/{exerciseId}", user(s.apiLaunchExercise))

	// Containers
	s.mux.Handle("GET /api/containers", user(s.apiListContainers))
	s.mux.Handle("POST /api/containers/{containerId}/stop", user(s.apiStopContainer))

	// Completion callback, invoked from inside the sandbox. No identity:
	// the unguessable subdomain is the capability.
	s.mux.HandleFunc("POST /api/containers/{subdomain}/complete", s.apiCompleteExercise)

	// Admin surface
	s.mux.Handle("POST /api/admin/containers/{containerId}/stop", admin(s.apiAdminStopContainer))
	s.mux.Handle("GET /api/admin/containers", admin(s.apiAdminListContainers))
	s.mux.Handle("DELETE /api/admin/exercises/{exerciseId}", admin(s.apiAdminDeleteExercise))
	s.mux.Handle("GET /api/admin/events", admin(s.apiAdminEvents))
	s.mux.Handle("GET /api/admin/events/stream", admin(s.apiAdminEventStream))

	// Operational endpoints
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", s.apiHealthz)
}
