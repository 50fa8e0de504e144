package app

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"hbuild/internal/core"
	"hbuild/internal/ports"
	"hbuild/internal/types"
)

// run carries the per-operation machinery: one sandbox set, one step
// engine and the host layout.
type run struct {
	svc       *Service
	registry  *core.Registry
	layout    types.Layout
	engine    core.StepEngine
	sandboxes *core.SandboxSet
	selected  map[string]struct{}
	prepared  bool
	debs      []string
}

func (s *Service) newRun(registry *core.Registry, logs ports.LogSinkPort) *run {
	return &run{
		svc:       s,
		registry:  registry,
		layout:    s.Config.Layout,
		engine:    core.NewStepEngine(s.Config.Sandbox.Path, logs),
		sandboxes: core.NewSandboxSet(s.Sandbox, s.Config.Sandbox.Image, s.Config.Sandbox.UserNS, s.Config.Sandbox.NamePrefix),
		selected:  map[string]struct{}{},
	}
}

func (r *run) apply(ctx context.Context, unit types.Unit, op types.Operation) error {
	switch op {
	case types.OperationBuild:
		return r.build(ctx, unit)
	case types.OperationInstall:
		return r.install(ctx, unit)
	case types.OperationUnbuild:
		return r.svc.State.Regress(ctx, unit.Identity())
	case types.OperationPackage:
		return r.pack(ctx, unit)
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("operation %s does not apply per unit", op))
}

// prepareLayout creates the shared directories every sandbox mounts.
func (r *run) prepareLayout() error {
	if r.prepared {
		return nil
	}
	l := r.layout
	if err := r.svc.Staging.EnsureDirs(l.SourcesDir, l.BuildsDir, l.ToolsDir, l.PackagesDir, l.WorksDir, l.PatchesDir, l.SystemRoot, l.Prefix); err != nil {
		return err
	}
	r.prepared = true
	return nil
}

// unitDirs returns the host directories of a Source, Tool or Package.
func (r *run) unitDirs(unit types.Unit) (types.UnitDirs, error) {
	src, err := r.registry.SourceOf(unit)
	if err != nil {
		return types.UnitDirs{}, err
	}
	switch u := unit.(type) {
	case *types.Source:
		return r.layout.SourceDirs(u), nil
	case *types.Tool:
		return r.layout.ToolDirs(u, src), nil
	case *types.Package:
		return r.layout.PackageDirs(u, src), nil
	}
	return types.UnitDirs{}, errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("%s has no directories of its own", unit.Identity()))
}

// sandboxFor opens the sandbox of owner and names the step target. Stages
// pass their own name so output is attributed to them.
func (r *run) sandboxFor(owner types.Unit, stage string) (*core.Sandbox, core.StepTarget, error) {
	if err := r.prepareLayout(); err != nil {
		return nil, core.StepTarget{}, err
	}
	dirs, err := r.unitDirs(owner)
	if err != nil {
		return nil, core.StepTarget{}, err
	}
	kind := owner.Kind()
	workdir := types.SandboxBuildDir
	withPatches := false
	if kind == types.UnitKindSource {
		workdir = types.SandboxSourceDir
		withPatches = r.svc.Staging.Exists(dirs.Patch)
		err = r.svc.Staging.EnsureDirs(dirs.Source)
	} else {
		err = r.svc.Staging.EnsureDirs(dirs.Build, dirs.Collect, dirs.Work)
	}
	if err != nil {
		return nil, core.StepTarget{}, err
	}
	sb, err := r.sandboxes.Open(owner.Identity(), core.MountPlan(kind, dirs, r.layout, withPatches))
	if err != nil {
		return nil, core.StepTarget{}, err
	}
	return sb, core.StepTarget{
		Unit:         owner.Identity(),
		Stage:        stage,
		Workdir:      workdir,
		Placeholders: core.SandboxPlaceholders(kind, r.layout.Target),
	}, nil
}

func (r *run) state(ctx context.Context, identity string) (types.UnitState, error) {
	return r.svc.State.Get(ctx, identity)
}

func (r *run) advance(ctx context.Context, identity string, state types.UnitState) error {
	return r.svc.State.Advance(ctx, identity, state)
}

// mergeTarget is where a unit's collect directory is synchronised to.
func (r *run) mergeTarget(owner types.Unit) (string, []string) {
	if owner.Kind() == types.UnitKindTool {
		return r.layout.Prefix, nil
	}
	return r.layout.SystemRoot, []string{debianDir}
}

func (r *run) merge(ctx context.Context, owner types.Unit) error {
	dirs, err := r.unitDirs(owner)
	if err != nil {
		return err
	}
	target, exclude := r.mergeTarget(owner)
	return r.svc.Staging.Merge(ctx, dirs.Collect, target, exclude)
}

// ownerOf returns the unit whose sandbox and directories serve unit.
func (r *run) ownerOf(unit types.Unit) (types.Unit, error) {
	if stage, ok := unit.(*types.Stage); ok {
		return r.registry.Owner(stage)
	}
	return unit, nil
}

func (r *run) isSelected(identity string) bool {
	_, ok := r.selected[identity]
	return ok
}

const debianDir = "DEBIAN"
