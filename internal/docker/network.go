package docker

import (
	"context"
	"fmt"

	"github.com/moby/moby/client"
)

// EnsureNetwork creates the named bridge network if it does not already
// exist. Transport errors are retried once before the call fails.
func (c *Client) EnsureNetwork(ctx context.Context, name string) error {
	err := c.ensureNetwork(ctx, name)
	if err == nil {
		return nil
	}
	if err := c.ensureNetwork(ctx, name); err != nil {
		return fmt.Errorf("ensure network %s: %w", name, err)
	}
	return nil
}

func (c *Client) ensureNetwork(ctx context.Context, name string) error {
	result, err := c.api.NetworkList(ctx, client.NetworkListOptions{
		Filters: make(client.Filters).Add("name", name),
	})
	if err != nil {
		return err
	}
	for _, nw := range result.Items {
		if nw.Name == name {
			return nil
		}
	}

	_, err = c.api.NetworkCreate(ctx, name, client.NetworkCreateOptions{Driver: "bridge"})
	return err
}
