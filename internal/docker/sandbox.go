package docker

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

// sandboxPort is the port every exercise image must listen on.
const sandboxPort = "8080/tcp"

// stopTimeoutSeconds is how long a sandbox gets to exit before SIGKILL.
const stopTimeoutSeconds = 10

// SandboxSpec describes a sandbox container to create.
type SandboxSpec struct {
	Image   string
	Name    string
	Env     []string
	Labels  map[string]string
	Network string
}

// SandboxInfo is the runtime view of a sandbox container.
type SandboxInfo struct {
	ID     string
	Labels map[string]string
	State  string
}

// CreateAndStartSandbox creates and starts a sandbox container. Port 8080/tcp
// is exposed and bound to a daemon-assigned ephemeral host port; the
// orchestrator never picks one itself. No restart policy is set — a sandbox
// that dies stays dead until reconciliation cleans it up.
func (c *Client) CreateAndStartSandbox(ctx context.Context, spec SandboxSpec) (string, error) {
	port, err := network.ParsePort(sandboxPort)
	if err != nil {
		return "", fmt.Errorf("parse sandbox port: %w", err)
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Labels:       spec.Labels,
		ExposedPorts: network.PortSet{port: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		PortBindings: network.PortMap{
			port: []network.PortBinding{{HostIP: netip.MustParseAddr("0.0.0.0"), HostPort: ""}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
	}
	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			spec.Network: {},
		},
	}

	resp, err := c.api.ContainerCreate(ctx, client.ContainerCreateOptions{
		Name:             spec.Name,
		Config:           cfg,
		HostConfig:       hostCfg,
		NetworkingConfig: netCfg,
	})
	if err != nil {
		return "", fmt.Errorf("create sandbox %s: %w", spec.Name, err)
	}

	if _, err := c.api.ContainerStart(ctx, resp.ID, client.ContainerStartOptions{}); err != nil {
		// Leave no half-created container behind.
		_, _ = c.api.ContainerRemove(ctx, resp.ID, client.ContainerRemoveOptions{Force: true})
		return "", fmt.Errorf("start sandbox %s: %w", spec.Name, err)
	}

	return resp.ID, nil
}

// SandboxHostPort reads back the ephemeral host port the daemon assigned to
// 8080/tcp. Returns an empty string when no binding is present.
func (c *Client) SandboxHostPort(ctx context.Context, id string) (string, error) {
	result, err := c.api.ContainerInspect(ctx, id, client.ContainerInspectOptions{})
	if err != nil {
		return "", fmt.Errorf("inspect sandbox %s: %w", id, err)
	}

	for port, bindings := range result.Container.NetworkSettings.Ports {
		if port.String() == sandboxPort && len(bindings) > 0 {
			return bindings[0].HostPort, nil
		}
	}
	return "", nil
}

// StopAndRemove stops and force-removes a sandbox. A container that is
// already stopped or already removed counts as success.
func (c *Client) StopAndRemove(ctx context.Context, id string) error {
	timeout := stopTimeoutSeconds
	if _, err := c.api.ContainerStop(ctx, id, client.ContainerStopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("stop sandbox %s: %w", id, err)
	}
	if _, err := c.api.ContainerRemove(ctx, id, client.ContainerRemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove sandbox %s: %w", id, err)
	}
	return nil
}

// RemoveSandbox force-removes a sandbox without a prior stop. Used by
// reconciliation on orphans.
func (c *Client) RemoveSandbox(ctx context.Context, id string) error {
	if _, err := c.api.ContainerRemove(ctx, id, client.ContainerRemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove sandbox %s: %w", id, err)
	}
	return nil
}

// SandboxRunning reports whether the container exists and is running.
// A missing container is (false, nil), not an error.
func (c *Client) SandboxRunning(ctx context.Context, id string) (bool, error) {
	result, err := c.api.ContainerInspect(ctx, id, client.ContainerInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect sandbox %s: %w", id, err)
	}
	return result.Container.State != nil && result.Container.State.Running, nil
}

// ListManagedSandboxes enumerates containers carrying the managed-sandbox
// label, optionally including stopped ones.
func (c *Client) ListManagedSandboxes(ctx context.Context, includeStopped bool) ([]SandboxInfo, error) {
	opts := client.ContainerListOptions{
		All:     includeStopped,
		Filters: make(client.Filters).Add("label", LabelManaged+"=true"),
	}
	result, err := c.api.ContainerList(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list sandboxes: %w", err)
	}

	infos := make([]SandboxInfo, 0, len(result.Items))
	for _, item := range result.Items {
		infos = append(infos, SandboxInfo{
			ID:     item.ID,
			Labels: item.Labels,
			State:  string(item.State),
		})
	}
	return infos, nil
}

// PruneContainers removes stopped containers. Best-effort cleanup after
// reconciliation.
func (c *Client) PruneContainers(ctx context.Context) (int, error) {
	report, err := c.api.ContainerPrune(ctx, client.ContainerPruneOptions{})
	if err != nil {
		return 0, err
	}
	return len(report.Report.ContainersDeleted), nil
}
