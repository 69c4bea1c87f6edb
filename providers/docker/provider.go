// Package docker provisions local containers, networks, volumes, and
// images through the Docker daemon. It backs local development stacks,
// typically a model inference container wired to a bridge network and a
// cache volume.
package docker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/landform-io/landform/internal/provider"
)

// Resource kinds served by this provider.
const (
	KindContainer = "docker:Container"
	KindNetwork   = "docker:Network"
	KindVolume    = "docker:Volume"
	KindImage     = "docker:Image"
)

var _ provider.ResourceProvider = (*Provider)(nil)

type Provider struct {
	client *client.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) ensureClient() error {
	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	p.client = cli
	return nil
}

// Schema marks the attributes Docker cannot change on a live object, so
// edits to them plan as replacements.
func (p *Provider) Schema(kind string) (provider.Schema, error) {
	switch kind {
	case KindContainer:
		return provider.Schema{
			Kind:     KindContainer,
			Required: []string{"image", "name"},
			Immutable: []string{
				"command", "env", "healthcheck", "image", "logging", "name",
				"networks", "ports", "secrets", "user", "volumes", "workingDir",
			},
		}, nil
	case KindNetwork:
		return provider.Schema{
			Kind:      KindNetwork,
			Required:  []string{"name"},
			Immutable: []string{"driver", "internal", "name"},
		}, nil
	case KindVolume:
		return provider.Schema{
			Kind:      KindVolume,
			Required:  []string{"name"},
			Immutable: []string{"driver", "name"},
		}, nil
	case KindImage:
		return provider.Schema{
			Kind:      KindImage,
			Required:  []string{"name"},
			Immutable: []string{"name"},
		}, nil
	}
	return provider.Schema{}, fmt.Errorf("unsupported kind %q", kind)
}

func (p *Provider) Create(ctx context.Context, kind string, attrs map[string]any) (string, map[string]any, error) {
	if err := p.ensureClient(); err != nil {
		return "", nil, provider.NewRetryableError(kind, provider.OpCreate, err)
	}

	switch kind {
	case KindContainer:
		return p.createContainer(ctx, attrs)
	case KindNetwork:
		return p.createNetwork(ctx, attrs)
	case KindVolume:
		return p.createVolume(ctx, attrs)
	case KindImage:
		return p.createImage(ctx, attrs)
	}
	return "", nil, provider.NewError(kind, provider.OpCreate, fmt.Errorf("unsupported kind %q", kind))
}

func (p *Provider) Update(ctx context.Context, kind, id string, attrs map[string]any) (map[string]any, error) {
	if err := p.ensureClient(); err != nil {
		return nil, provider.NewRetryableError(kind, provider.OpUpdate, err)
	}

	switch kind {
	case KindContainer:
		return p.updateContainer(ctx, id, attrs)
	case KindNetwork, KindVolume:
		// Everything mutable on these kinds is cosmetic; the engine only
		// sends updates for attrs the schema leaves mutable.
		return map[string]any{"id": id}, nil
	case KindImage:
		// Same tag, refreshed content.
		_, outputs, err := p.createImage(ctx, attrs)
		return outputs, err
	}
	return nil, provider.NewError(kind, provider.OpUpdate, fmt.Errorf("unsupported kind %q", kind))
}

func (p *Provider) Delete(ctx context.Context, kind, id string) error {
	if err := p.ensureClient(); err != nil {
		return provider.NewRetryableError(kind, provider.OpDelete, err)
	}

	switch kind {
	case KindContainer:
		timeout := 10 // seconds
		_ = p.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
		if err := p.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
			if !client.IsErrNotFound(err) {
				return p.classify(kind, provider.OpDelete, fmt.Errorf("failed to remove container: %w", err))
			}
		}
		return nil
	case KindNetwork:
		if err := p.client.NetworkRemove(ctx, id); err != nil {
			if !client.IsErrNotFound(err) {
				return p.classify(kind, provider.OpDelete, fmt.Errorf("failed to remove network: %w", err))
			}
		}
		return nil
	case KindVolume:
		if err := p.client.VolumeRemove(ctx, id, true); err != nil {
			if !client.IsErrNotFound(err) {
				return p.classify(kind, provider.OpDelete, fmt.Errorf("failed to remove volume: %w", err))
			}
		}
		return nil
	case KindImage:
		if _, err := p.client.ImageRemove(ctx, id, image.RemoveOptions{Force: true}); err != nil {
			if !client.IsErrNotFound(err) {
				return p.classify(kind, provider.OpDelete, fmt.Errorf("failed to remove image: %w", err))
			}
		}
		return nil
	}
	return provider.NewError(kind, provider.OpDelete, fmt.Errorf("unsupported kind %q", kind))
}

func (p *Provider) createContainer(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var desired ContainerConfig
	if err := decode(attrs, &desired); err != nil {
		return "", nil, provider.NewError(KindContainer, provider.OpCreate, err)
	}

	reader, err := p.client.ImagePull(ctx, desired.Image, image.PullOptions{})
	if err != nil {
		return "", nil, p.classify(KindContainer, provider.OpCreate, fmt.Errorf("failed to pull image %s: %w", desired.Image, err))
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	for hostPort, containerPort := range desired.Ports {
		port := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		portBindings[port] = []nat.PortBinding{
			{
				HostIP:   "0.0.0.0",
				HostPort: hostPort,
			},
		}
	}

	var binds []string
	for _, v := range desired.Volumes {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) > 0 {
			if strings.HasPrefix(parts[0], "./") || strings.HasPrefix(parts[0], "../") {
				abs, err := filepath.Abs(parts[0])
				if err == nil {
					parts[0] = abs
					binds = append(binds, strings.Join(parts, ":"))
					continue
				}
			}
		}
		binds = append(binds, v)
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        binds,
	}
	if len(desired.Networks) > 0 {
		hostConfig.NetworkMode = container.NetworkMode(desired.Networks[0])
	}

	if desired.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(desired.Restart),
		}
	}

	if desired.Logging != nil {
		hostConfig.LogConfig = container.LogConfig{
			Type:   desired.Logging.Driver,
			Config: desired.Logging.Options,
		}
	}

	// Secret files mount read-only.
	for _, secret := range desired.Secrets {
		absPath, err := filepath.Abs(secret.File)
		if err != nil {
			return "", nil, provider.NewError(KindContainer, provider.OpCreate, fmt.Errorf("failed to resolve secret file path: %w", err))
		}
		hostConfig.Binds = append(hostConfig.Binds, fmt.Sprintf("%s:%s:ro", absPath, secret.Target))
	}

	config := &container.Config{
		Image:      desired.Image,
		Cmd:        desired.Command,
		Env:        mapToEnvList(desired.Env),
		Labels:     desired.Labels,
		WorkingDir: desired.WorkingDir,
		User:       desired.User,
	}

	if desired.Healthcheck != nil {
		test := desired.Healthcheck.Test
		if len(test) == 0 {
			test = []string{"NONE"}
		}

		interval, _ := time.ParseDuration(desired.Healthcheck.Interval)
		timeout, _ := time.ParseDuration(desired.Healthcheck.Timeout)
		startPeriod, _ := time.ParseDuration(desired.Healthcheck.StartPeriod)

		config.Healthcheck = &container.HealthConfig{
			Test:        test,
			Interval:    interval,
			Timeout:     timeout,
			StartPeriod: startPeriod,
			Retries:     desired.Healthcheck.Retries,
		}
	}

	resp, err := p.client.ContainerCreate(ctx,
		config,
		hostConfig,
		&network.NetworkingConfig{},
		&v1.Platform{},
		desired.Name,
	)
	if err != nil {
		return "", nil, p.classify(KindContainer, provider.OpCreate, fmt.Errorf("failed to create container: %w", err))
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", nil, p.classify(KindContainer, provider.OpCreate, fmt.Errorf("failed to start container: %w", err))
	}

	return resp.ID, map[string]any{
		"id":    resp.ID,
		"name":  desired.Name,
		"image": desired.Image,
	}, nil
}

func (p *Provider) updateContainer(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var desired ContainerConfig
	if err := decode(attrs, &desired); err != nil {
		return nil, provider.NewError(KindContainer, provider.OpUpdate, err)
	}

	// Restart policy is the one setting Docker updates on a live
	// container; the schema forces replacement for the rest.
	if desired.Restart != "" {
		update := container.UpdateConfig{
			RestartPolicy: container.RestartPolicy{
				Name: container.RestartPolicyMode(desired.Restart),
			},
		}
		if _, err := p.client.ContainerUpdate(ctx, id, update); err != nil {
			return nil, p.classify(KindContainer, provider.OpUpdate, fmt.Errorf("failed to update container: %w", err))
		}
	}

	return map[string]any{
		"id":    id,
		"name":  desired.Name,
		"image": desired.Image,
	}, nil
}

func (p *Provider) createNetwork(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var desired NetworkConfig
	if err := decode(attrs, &desired); err != nil {
		return "", nil, provider.NewError(KindNetwork, provider.OpCreate, err)
	}

	resp, err := p.client.NetworkCreate(ctx, desired.Name, types.NetworkCreate{
		Driver:   desired.Driver,
		Internal: desired.Internal,
		Labels:   desired.Labels,
	})
	if err != nil {
		return "", nil, p.classify(KindNetwork, provider.OpCreate, fmt.Errorf("failed to create network: %w", err))
	}

	return resp.ID, map[string]any{
		"id":     resp.ID,
		"name":   desired.Name,
		"driver": desired.Driver,
	}, nil
}

func (p *Provider) createVolume(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var desired VolumeConfig
	if err := decode(attrs, &desired); err != nil {
		return "", nil, provider.NewError(KindVolume, provider.OpCreate, err)
	}

	vol, err := p.client.VolumeCreate(ctx, volume.CreateOptions{
		Name:   desired.Name,
		Driver: desired.Driver,
	})
	if err != nil {
		return "", nil, p.classify(KindVolume, provider.OpCreate, fmt.Errorf("failed to create volume: %w", err))
	}

	return vol.Name, map[string]any{
		"name":       vol.Name,
		"driver":     vol.Driver,
		"mountpoint": vol.Mountpoint,
	}, nil
}

func (p *Provider) createImage(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var desired ImageConfig
	if err := decode(attrs, &desired); err != nil {
		return "", nil, provider.NewError(KindImage, provider.OpCreate, err)
	}

	if desired.BuildContext != "" {
		tar, err := archive.TarWithOptions(desired.BuildContext, &archive.TarOptions{})
		if err != nil {
			return "", nil, provider.NewError(KindImage, provider.OpCreate, fmt.Errorf("failed to create build context tar: %w", err))
		}

		opts := types.ImageBuildOptions{
			Tags:       []string{desired.Name},
			Dockerfile: desired.Dockerfile,
			Remove:     true,
		}

		resp, err := p.client.ImageBuild(ctx, tar, opts)
		if err != nil {
			return "", nil, p.classify(KindImage, provider.OpCreate, fmt.Errorf("failed to build image: %w", err))
		}
		// Drain output to completion or the build stalls.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	} else {
		reader, err := p.client.ImagePull(ctx, desired.Name, image.PullOptions{})
		if err != nil {
			return "", nil, p.classify(KindImage, provider.OpCreate, fmt.Errorf("failed to pull image: %w", err))
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	inspect, _, err := p.client.ImageInspectWithRaw(ctx, desired.Name)
	if err != nil {
		return "", nil, p.classify(KindImage, provider.OpCreate, fmt.Errorf("failed to inspect image: %w", err))
	}

	return inspect.ID, map[string]any{
		"id":   inspect.ID,
		"name": desired.Name,
	}, nil
}

// classify wraps daemon errors, flagging connection failures retryable.
func (p *Provider) classify(kind string, op provider.Op, err error) error {
	if client.IsErrConnectionFailed(err) {
		return provider.NewRetryableError(kind, op, err)
	}
	return provider.NewError(kind, op, err)
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
