package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

// Docker drives the container runtime contract via the Docker Engine API,
// grounded on the upstream implementation's bollard client usage
// (original_source/src/docker/sandbox.rs, network.rs, inspect.rs) ported
// to github.com/docker/docker/client.
type Docker struct {
	cli *client.Client
}

// NewDocker connects to the local Docker daemon using the standard
// environment-derived configuration (DOCKER_HOST, DOCKER_CERT_PATH, ...).
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	return &Docker{cli: cli}, nil
}

func (d *Docker) CreateNetwork(ctx context.Context, name string, labels map[string]string) error {
	_, err := d.cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge", Labels: labels})
	if err != nil {
		return fmt.Errorf("create network %s: %w", name, err)
	}
	return nil
}

func (d *Docker) RemoveNetwork(ctx context.Context, name string) error {
	if err := d.cli.NetworkRemove(ctx, name); err != nil {
		return fmt.Errorf("remove network %s: %w", name, err)
	}
	return nil
}

func (d *Docker) NetworkExists(ctx context.Context, name string) (bool, error) {
	_, err := d.cli.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect network %s: %w", name, err)
	}
	return true, nil
}

func (d *Docker) ListNetworksByPrefix(ctx context.Context, prefix string) ([]Named, error) {
	nets, err := d.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	var out []Named
	for _, n := range nets {
		if strings.HasPrefix(n.Name, prefix) {
			out = append(out, Named{Name: n.Name, Labels: n.Labels})
		}
	}
	return out, nil
}

func (d *Docker) PullImage(ctx context.Context, img string) error {
	rc, err := d.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer rc.Close()
	_, _ = io.Copy(io.Discard, rc)
	return nil
}

func (d *Docker) ImageExistsLocally(ctx context.Context, img string) (bool, error) {
	_, err := d.cli.ImageInspect(ctx, img)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect image %s: %w", img, err)
	}
	return true, nil
}

func (d *Docker) CreateContainer(ctx context.Context, spec ContainerSpec) error {
	cfg := &container.Config{
		Image:      spec.Image,
		Env:        spec.Env,
		Cmd:        spec.Command,
		Entrypoint: spec.Entrypoint,
		Labels:     spec.Labels,
	}

	if spec.HealthCheck != nil {
		cfg.Healthcheck = &container.HealthConfig{
			Test:     spec.HealthCheck.Test,
			Interval: time.Duration(spec.HealthCheck.Interval),
			Timeout:  time.Duration(spec.HealthCheck.Timeout),
			Retries:  spec.HealthCheck.Retries,
		}
	}

	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(spec.NetworkName),
	}

	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			spec.NetworkName: {
				Aliases: []string{spec.NetworkAlias},
			},
		},
	}

	_, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return fmt.Errorf("create container %s: %w", spec.Name, err)
	}
	return nil
}

func (d *Docker) StartContainer(ctx context.Context, name string) error {
	if err := d.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", name, err)
	}
	return nil
}

func (d *Docker) InspectContainer(ctx context.Context, name string) (ContainerState, error) {
	inspect, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		return ContainerState{}, fmt.Errorf("inspect container %s: %w", name, err)
	}

	state := ContainerState{}
	if inspect.State != nil {
		state.Status = Status(strings.ToLower(inspect.State.Status))
		if inspect.State.Health != nil {
			state.Health = Health(strings.ToLower(inspect.State.Health.Status))
		}
	}
	return state, nil
}

func (d *Docker) ContainerLogs(ctx context.Context, name string, tailLines int) (string, error) {
	rc, err := d.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", tailLines),
	})
	if err != nil {
		return "", fmt.Errorf("logs for container %s: %w", name, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return "", fmt.Errorf("read logs for container %s: %w", name, err)
	}
	return buf.String(), nil
}

func (d *Docker) RemoveContainer(ctx context.Context, name string) error {
	err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}

func (d *Docker) ListContainersByPrefix(ctx context.Context, prefix string) ([]Named, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", prefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	var out []Named
	for _, c := range containers {
		for _, n := range c.Names {
			trimmed := strings.TrimPrefix(n, "/")
			if strings.HasPrefix(trimmed, prefix) {
				out = append(out, Named{Name: trimmed, Labels: c.Labels})
			}
		}
	}
	return out, nil
}
