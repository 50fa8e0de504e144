package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"hbuild/internal/core"
	"hbuild/internal/types"
)

// build walks a unit up the state ladder. Each finished phase is recorded
// before the next starts, so an interrupted build resumes where it
// stopped.
func (r *run) build(ctx context.Context, unit types.Unit) error {
	if r.isSelected(unit.Identity()) {
		if err := r.forceRebuild(ctx, unit); err != nil {
			return err
		}
	}
	switch u := unit.(type) {
	case *types.Source:
		return r.buildSource(ctx, u)
	case *types.Tool:
		return r.buildTool(ctx, u)
	case *types.Package:
		return r.buildPackage(ctx, u)
	case *types.Stage:
		return r.buildStage(ctx, u)
	}
	return nil
}

// forceRebuild clears the state of an installed unit so its whole ladder
// runs again. A source also loses its tree, since acquisition needs an
// empty directory. Units that are not installed just resume.
func (r *run) forceRebuild(ctx context.Context, unit types.Unit) error {
	id := unit.Identity()
	state, err := r.state(ctx, id)
	if err != nil {
		return err
	}
	if !state.AtLeast(types.UnitStateInstalled) {
		return nil
	}
	log.Ctx(ctx).Info().Msg("rebuilding selected unit")
	if src, ok := unit.(*types.Source); ok {
		if err := r.svc.Staging.RemoveTree(r.layout.SourceDirs(src).Source); err != nil {
			return err
		}
	}
	return r.svc.State.Reset(ctx, id)
}

func (r *run) buildSource(ctx context.Context, src *types.Source) error {
	id := src.Identity()
	state, err := r.state(ctx, id)
	if err != nil {
		return err
	}
	if state.AtLeast(types.UnitStateInstalled) {
		log.Ctx(ctx).Debug().Msg("source already prepared")
		return nil
	}
	sb, target, err := r.sandboxFor(src, "")
	if err != nil {
		return err
	}

	if !state.AtLeast(types.UnitStateConfigured) {
		if err := r.engine.Run(ctx, sb, target, types.StepPhaseAcquire, core.AcquireSteps(src)); err != nil {
			return err
		}
		if err := r.engine.Run(ctx, sb, target, types.StepPhaseExtract, core.ExtractSteps(src)); err != nil {
			return err
		}
		if err := r.advance(ctx, id, types.UnitStateConfigured); err != nil {
			return err
		}
	}
	if !state.AtLeast(types.UnitStateBuilt) {
		if r.svc.Staging.Exists(r.layout.SourceDirs(src).Patch) {
			if err := r.engine.Run(ctx, sb, target, types.StepPhasePatch, core.PatchSteps(src)); err != nil {
				return err
			}
		}
		if err := r.engine.Run(ctx, sb, target, types.StepPhaseRegenerate, src.Regenerate); err != nil {
			return err
		}
		if err := r.advance(ctx, id, types.UnitStateBuilt); err != nil {
			return err
		}
	}
	return r.advance(ctx, id, types.UnitStateInstalled)
}

// configureOwner runs the owner's configure steps once. Stages and their
// owner share the configured build tree.
func (r *run) configureOwner(ctx context.Context, owner types.Unit) error {
	id := owner.Identity()
	state, err := r.state(ctx, id)
	if err != nil {
		return err
	}
	if state.AtLeast(types.UnitStateConfigured) {
		return nil
	}
	var steps []types.Step
	switch u := owner.(type) {
	case *types.Tool:
		steps = u.Configure
	case *types.Package:
		steps = u.Configure
	}
	sb, target, err := r.sandboxFor(owner, "")
	if err != nil {
		return err
	}
	if err := r.engine.Run(ctx, sb, target, types.StepPhaseConfigure, steps); err != nil {
		return err
	}
	return r.advance(ctx, id, types.UnitStateConfigured)
}

func (r *run) buildTool(ctx context.Context, tool *types.Tool) error {
	return r.buildOwned(ctx, tool, tool, "", tool.Compile, tool.Install)
}

func (r *run) buildPackage(ctx context.Context, pkg *types.Package) error {
	return r.buildOwned(ctx, pkg, pkg, "", pkg.Build, nil)
}

func (r *run) buildStage(ctx context.Context, stage *types.Stage) error {
	owner, err := r.ownerOf(stage)
	if err != nil {
		return err
	}
	if stage.OwnerKind == types.UnitKindTool {
		return r.buildOwned(ctx, stage, owner, stage.Name, stage.Compile, stage.Install)
	}
	return r.buildOwned(ctx, stage, owner, stage.Name, stage.Build, nil)
}

// buildOwned runs the build and install phases of a Tool, a Package or one
// of their stages inside the owner's sandbox, then merges the owner's
// collect directory into the shared tree.
func (r *run) buildOwned(ctx context.Context, unit types.Unit, owner types.Unit, stage string, build []types.Step, install []types.Step) error {
	id := unit.Identity()
	if err := r.configureOwner(ctx, owner); err != nil {
		return err
	}
	state, err := r.state(ctx, id)
	if err != nil {
		return err
	}
	if state.AtLeast(types.UnitStateInstalled) {
		log.Ctx(ctx).Debug().Msg("already installed")
		return nil
	}
	// A stage is configured as soon as its owner is.
	if !state.AtLeast(types.UnitStateConfigured) {
		if err := r.advance(ctx, id, types.UnitStateConfigured); err != nil {
			return err
		}
		state = types.UnitStateConfigured
	}
	sb, target, err := r.sandboxFor(owner, stage)
	if err != nil {
		return err
	}

	buildPhase, installPhase := types.StepPhaseBuild, types.StepPhaseInstall
	if owner.Kind() == types.UnitKindTool {
		buildPhase = types.StepPhaseCompile
	}
	if !state.AtLeast(types.UnitStateBuilt) {
		if err := r.engine.Run(ctx, sb, target, buildPhase, build); err != nil {
			return err
		}
		if err := r.advance(ctx, id, types.UnitStateBuilt); err != nil {
			return err
		}
	}
	if err := r.engine.Run(ctx, sb, target, installPhase, install); err != nil {
		return err
	}
	if err := r.merge(ctx, owner); err != nil {
		return err
	}
	return r.advance(ctx, id, types.UnitStateInstalled)
}
