package docker

import (
	"context"
	"io"
)

// API defines the runtime operations the orchestrator uses.
// Implemented by Client for production, and by mocks for testing.
type API interface {
	Ping(ctx context.Context) error
	EnsureNetwork(ctx context.Context, name string) error
	BuildImage(ctx context.Context, buildContext io.Reader, tag string, onProgress BuildProgressFunc) error
	CreateAndStartSandbox(ctx context.Context, spec SandboxSpec) (string, error)
	SandboxHostPort(ctx context.Context, id string) (string, error)
	StopAndRemove(ctx context.Context, id string) error
	RemoveSandbox(ctx context.Context, id string) error
	SandboxRunning(ctx context.Context, id string) (bool, error)
	ListManagedSandboxes(ctx context.Context, includeStopped bool) ([]SandboxInfo, error)
	PruneContainers(ctx context.Context) (int, error)
	PruneImages(ctx context.Context) (int, error)
	RemoveImage(ctx context.Context, ref string) error
	Close() error
}

// Verify Client implements API at compile time.
var _ API = (*Client)(nil)
