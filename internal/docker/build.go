package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/moby/moby/client"
)

// buildEvent is one record of the Docker build progress stream.
type buildEvent struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// BuildProgressFunc receives each non-empty progress line of a build.
type BuildProgressFunc func(line string)

// BuildImage builds an image from a gzipped tar build context and tags it.
// The progress stream is decoded record by record; the first record carrying
// an error field fails the whole call with that message. onProgress may be
// nil.
func (c *Client) BuildImage(ctx context.Context, buildContext io.Reader, tag string, onProgress BuildProgressFunc) error {
	resp, err := c.api.ImageBuild(ctx, buildContext, client.ImageBuildOptions{
		Tags:   []string{tag},
		Remove: true,
	})
	if err != nil {
		return fmt.Errorf("build image %s: %w", tag, err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	// Build output lines can be long; give the scanner room.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		var event buildEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue // non-JSON noise in the stream
		}
		if event.Error != "" {
			msg := event.Error
			if event.ErrorDetail.Message != "" {
				msg = event.ErrorDetail.Message
			}
			return fmt.Errorf("build image %s: %s", tag, msg)
		}
		if line := strings.TrimSpace(event.Stream); line != "" && onProgress != nil {
			onProgress(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read build output for %s: %w", tag, err)
	}
	return nil
}

// RemoveImage removes an image by tag or ID, pruning untagged children.
func (c *Client) RemoveImage(ctx context.Context, ref string) error {
	_, err := c.api.ImageRemove(ctx, ref, client.ImageRemoveOptions{PruneChildren: true})
	return err
}

// PruneImages removes dangling images. Best-effort.
func (c *Client) PruneImages(ctx context.Context) (int, error) {
	report, err := c.api.ImagePrune(ctx, client.ImagePruneOptions{})
	if err != nil {
		return 0, err
	}
	return len(report.Report.ImagesDeleted), nil
}
