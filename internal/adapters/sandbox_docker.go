package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/ZanzyTHEbar/errbuilder-go"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog/log"

	"hbuild/internal/ports"
	"hbuild/internal/shared"
	"hbuild/internal/types"
)

const sandboxLabel = "io.hbuild.sandbox"

// DockerSandboxProvider creates sandboxes through the Docker Engine API.
// Podman's compatible socket works as well when DOCKER_HOST points at it.
type DockerSandboxProvider struct {
	client *client.Client
}

func NewDockerSandboxProvider() (*DockerSandboxProvider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create container client").
			WithCause(err)
	}
	return &DockerSandboxProvider{client: cli}, nil
}

func (p *DockerSandboxProvider) Close() error {
	return p.client.Close()
}

func (p *DockerSandboxProvider) Create(ctx context.Context, spec types.SandboxSpec) (ports.SandboxPort, error) {
	sb := &DockerSandbox{client: p.client, name: spec.Name}
	mounts, err := sb.prepareMounts(ctx, spec)
	if err != nil {
		_ = sb.removeVolumes(ctx)
		return nil, err
	}

	config := &container.Config{
		Image:      spec.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: types.SandboxHome,
		Labels:     map[string]string{sandboxLabel: spec.Name},
	}
	hostConfig := &container.HostConfig{
		Mounts:     mounts,
		UsernsMode: container.UsernsMode(spec.UserNS),
	}
	resp, err := p.client.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	if cerrdefs.IsConflict(err) {
		// A crashed run may have left a container with the same name.
		log.Ctx(ctx).Warn().Str("sandbox", spec.Name).Msg("removing stale sandbox")
		_ = p.client.ContainerRemove(ctx, spec.Name, container.RemoveOptions{Force: true})
		resp, err = p.client.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	}
	if err != nil {
		_ = sb.removeVolumes(ctx)
		return nil, fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}
	sb.id = resp.ID
	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = sb.Remove(ctx)
		return nil, fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}
	return sb, nil
}

// DockerSandbox is one running container plus the overlay volumes backing
// its overlay mounts.
type DockerSandbox struct {
	client  *client.Client
	name    string
	id      string
	volumes []string
}

func (s *DockerSandbox) ID() string { return s.id }

func (s *DockerSandbox) prepareMounts(ctx context.Context, spec types.SandboxSpec) ([]mount.Mount, error) {
	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		if m.Overlay == nil {
			mounts = append(mounts, mount.Mount{
				Type:     mount.TypeBind,
				Source:   m.Source,
				Target:   m.Target,
				ReadOnly: m.ReadOnly,
			})
			continue
		}
		name, _ := shared.ObjectName(spec.Name + "-" + path.Base(m.Target))
		_, err := s.client.VolumeCreate(ctx, volume.CreateOptions{
			Name:   name,
			Driver: "local",
			DriverOpts: map[string]string{
				"type":   "overlay",
				"device": "overlay",
				"o":      fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", m.Source, m.Overlay.Upper, m.Overlay.Work),
			},
			Labels: map[string]string{sandboxLabel: spec.Name},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create overlay for %s: %w", m.Target, err)
		}
		s.volumes = append(s.volumes, name)
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: name,
			Target: m.Target,
		})
	}
	return mounts, nil
}

func (s *DockerSandbox) Exec(ctx context.Context, req types.ExecRequest) (types.ExecResult, error) {
	created, err := s.client.ContainerExecCreate(ctx, s.id, container.ExecOptions{
		Cmd:          req.Args,
		Env:          envList(req.Env),
		WorkingDir:   req.Workdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return types.ExecResult{}, fmt.Errorf("failed to create exec in %s: %w", s.name, err)
	}
	attached, err := s.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return types.ExecResult{}, fmt.Errorf("failed to attach exec in %s: %w", s.name, err)
	}
	defer attached.Close()

	var output bytes.Buffer
	if _, err := stdcopy.StdCopy(&output, &output, attached.Reader); err != nil {
		return types.ExecResult{Output: output.Bytes()}, fmt.Errorf("failed to read exec output in %s: %w", s.name, err)
	}
	inspect, err := s.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return types.ExecResult{Output: output.Bytes()}, fmt.Errorf("failed to inspect exec in %s: %w", s.name, err)
	}
	return types.ExecResult{ExitCode: inspect.ExitCode, Output: output.Bytes()}, nil
}

// Kill sends SIGKILL. Missing or stopped containers are not an error.
func (s *DockerSandbox) Kill(ctx context.Context) error {
	if s.id == "" {
		return nil
	}
	err := s.client.ContainerKill(ctx, s.id, "SIGKILL")
	if err == nil || client.IsErrNotFound(err) || cerrdefs.IsConflict(err) {
		return nil
	}
	return fmt.Errorf("failed to kill sandbox %s: %w", s.name, err)
}

func (s *DockerSandbox) Remove(ctx context.Context) error {
	var errs []error
	if s.id != "" {
		err := s.client.ContainerRemove(ctx, s.id, container.RemoveOptions{Force: true})
		if err != nil && !client.IsErrNotFound(err) {
			errs = append(errs, fmt.Errorf("failed to remove sandbox %s: %w", s.name, err))
		}
	}
	errs = append(errs, s.removeVolumes(ctx))
	return errors.Join(errs...)
}

func (s *DockerSandbox) removeVolumes(ctx context.Context) error {
	var errs []error
	for _, name := range s.volumes {
		if err := s.client.VolumeRemove(ctx, name, true); err != nil && !client.IsErrNotFound(err) {
			errs = append(errs, fmt.Errorf("failed to remove overlay %s: %w", name, err))
		}
	}
	s.volumes = nil
	return errors.Join(errs...)
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+"="+env[key])
	}
	return out
}

var (
	_ ports.SandboxProviderPort = (*DockerSandboxProvider)(nil)
	_ ports.SandboxPort         = (*DockerSandbox)(nil)
)
