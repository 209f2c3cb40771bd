package imagepulse

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
)

// PullStats summarizes one completed pull: how much was downloaded,
// across how many layers, how long it took, and the progress log the
// daemon emitted.
type PullStats struct {
	Bytes    int64
	Layers   int
	Duration time.Duration
	Log      string
}

// ImagePuller performs image pulls. The worker depends on this
// interface so tests can substitute a fake for the docker daemon.
type ImagePuller interface {
	Pull(ctx context.Context, imageRef string) (PullStats, error)
}

// DockerPuller pulls images through the local docker daemon.
type DockerPuller struct {
	client *client.Client
}

// NewDockerPuller connects to the daemon using the standard DOCKER_*
// environment variables.
func NewDockerPuller() (*DockerPuller, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerPuller{client: c}, nil
}

// Pull pulls the image and tallies the daemon's progress stream.
// Registry credentials come from DOCKER_USER / DOCKER_PASSWORD when
// set.
func (p *DockerPuller) Pull(ctx context.Context, imageRef string) (PullStats, error) {
	authConfig := registry.AuthConfig{
		Username: os.Getenv("DOCKER_USER"),
		Password: os.Getenv("DOCKER_PASSWORD"),
	}
	encodedJSON, err := json.Marshal(authConfig)
	if err != nil {
		return PullStats{}, err
	}
	authStr := base64.URLEncoding.EncodeToString(encodedJSON)

	started := time.Now()
	out, err := p.client.ImagePull(ctx, imageRef, image.PullOptions{RegistryAuth: authStr})
	if err != nil {
		return PullStats{Duration: time.Since(started)}, err
	}
	defer out.Close()

	stats, err := tallyPullProgress(out)
	stats.Duration = time.Since(started)
	return stats, err
}

// tallyPullProgress decodes the daemon's jsonmessage stream, keeping
// the high-water mark of every layer's progress. The daemon reports
// per-layer totals as they become known, so the sum of totals is the
// image download size; when totals never arrive (cached layers) the
// currents are the best estimate.
func tallyPullProgress(r io.Reader) (PullStats, error) {
	type layerProgress struct {
		current int64
		total   int64
	}
	layers := make(map[string]*layerProgress)
	var logBuf strings.Builder

	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err == io.EOF {
			break
		} else if err != nil {
			return PullStats{Log: logBuf.String()}, fmt.Errorf("failed to decode pull progress: %w", err)
		}

		if msg.Error != nil {
			return PullStats{Log: logBuf.String()}, msg.Error
		}

		if msg.Status != "" {
			logBuf.WriteString(msg.Status)
			if msg.ID != "" {
				logBuf.WriteString(" [" + msg.ID + "]")
			}
			logBuf.WriteByte('\n')
		}

		if msg.ID == "" || msg.Progress == nil {
			continue
		}
		lp, ok := layers[msg.ID]
		if !ok {
			lp = &layerProgress{}
			layers[msg.ID] = lp
		}
		if msg.Progress.Current > lp.current {
			lp.current = msg.Progress.Current
		}
		if msg.Progress.Total > lp.total {
			lp.total = msg.Progress.Total
		}
	}

	var sumCurrent, sumTotal int64
	for _, lp := range layers {
		sumCurrent += lp.current
		sumTotal += lp.total
	}
	bytes := sumTotal
	if bytes == 0 {
		bytes = sumCurrent
	}

	return PullStats{Bytes: bytes, Layers: len(layers), Log: logBuf.String()}, nil
}
