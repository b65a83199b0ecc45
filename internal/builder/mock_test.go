package builder

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/trainbox/orchestrator/internal/docker"
)

// mockDocker implements docker.API for builder tests. Only the image
// operations matter here; the sandbox operations fail loudly if called.
type mockDocker struct {
	mu          sync.Mutex
	builtTags   []string
	removedRefs []string
	buildErr    error
	contextSize int
}

var _ docker.API = (*mockDocker)(nil)

func (m *mockDocker) BuildImage(_ context.Context, buildContext io.Reader, tag string, onProgress docker.BuildProgressFunc) error {
	data, err := io.ReadAll(buildContext)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.contextSize = len(data)
	m.mu.Unlock()
	if m.buildErr != nil {
		return m.buildErr
	}
	if onProgress != nil {
		onProgress("Step 1/1 : FROM scratch")
	}
	m.mu.Lock()
	m.builtTags = append(m.builtTags, tag)
	m.mu.Unlock()
	return nil
}

func (m *mockDocker) RemoveImage(_ context.Context, ref string) error {
	m.mu.Lock()
	m.removedRefs = append(m.removedRefs, ref)
	m.mu.Unlock()
	return nil
}

func (m *mockDocker) Ping(context.Context) error                  { return nil }
func (m *mockDocker) EnsureNetwork(context.Context, string) error { return nil }
func (m *mockDocker) Close() error                                { return nil }

func (m *mockDocker) CreateAndStartSandbox(context.Context, docker.SandboxSpec) (string, error) {
	return "", errors.New("not implemented in builder tests")
}

func (m *mockDocker) SandboxHostPort(context.Context, string) (string, error) {
	return "", errors.New("not implemented in builder tests")
}

func (m *mockDocker) StopAndRemove(context.Context, string) error {
	return errors.New("not implemented in builder tests")
}

func (m *mockDocker) RemoveSandbox(context.Context, string) error {
	return errors.New("not implemented in builder tests")
}

func (m *mockDocker) SandboxRunning(context.Context, string) (bool, error) {
	return false, errors.New("not implemented in builder tests")
}

func (m *mockDocker) ListManagedSandboxes(context.Context, bool) ([]docker.SandboxInfo, error) {
	return nil, errors.New("not implemented in builder tests")
}

func (m *mockDocker) PruneContainers(context.Context) (int, error) { return 0, nil }
func (m *mockDocker) PruneImages(context.Context) (int, error)     { return 0, nil }
