package app

import (
	"context"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"hbuild/internal/core"
	"hbuild/internal/ports"
	"hbuild/internal/types"
)

// plan is a resolved operation: the linked registry, the full graph and
// the ordered work for one selection.
type plan struct {
	registry   *core.Registry
	graph      core.DependencyGraph
	resolution core.Resolution
	states     map[string]types.UnitState
}

func (s *Service) loadRegistry() (*core.Registry, error) {
	if s.Config.PkgsrcDir == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("pkgsrc_dir is required")
	}
	files, err := s.Units.LoadDir(s.Config.PkgsrcDir)
	if err != nil {
		return nil, err
	}
	registry := core.NewRegistry(files)
	if err := registry.Link(); err != nil {
		return nil, err
	}
	return registry, nil
}

func newGraph(ctx context.Context, registry *core.Registry) (core.DependencyGraph, error) {
	return core.NewGraphBuilder(registry).Build(ctx)
}

func (s *Service) plan(ctx context.Context, selection []string, op types.Operation) (plan, error) {
	return s.resolvePlan(ctx, core.ResolveRequest{Selection: selection, Operation: op})
}

// resolvePlan loads the units and the stored states and resolves req
// against them. req.States is filled in here.
func (s *Service) resolvePlan(ctx context.Context, req core.ResolveRequest) (plan, error) {
	registry, err := s.loadRegistry()
	if err != nil {
		return plan{}, err
	}
	dg, err := newGraph(ctx, registry)
	if err != nil {
		return plan{}, err
	}
	states, err := s.State.Snapshot(ctx)
	if err != nil {
		return plan{}, err
	}
	req.States = states
	res, err := core.NewGraphResolver().Resolve(ctx, dg, req)
	if err != nil {
		return plan{}, err
	}
	return plan{registry: registry, graph: dg, resolution: res, states: states}, nil
}

// execute applies op to every unit in order. Sandboxes opened along the
// way are tidied when it returns, whatever the outcome. done, if set, is
// called after each unit with its result.
func (s *Service) execute(ctx context.Context, registry *core.Registry, order []string, selected map[string]struct{}, op types.Operation, logs ports.LogSinkPort, done func(identity string, err error)) (err error) {
	run := s.newRun(registry, logs)
	for identity := range selected {
		run.selected[identity] = struct{}{}
	}
	defer func() {
		tidyErr := run.sandboxes.TidyAll(context.WithoutCancel(ctx))
		if err == nil && tidyErr != nil {
			err = errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to tidy sandboxes").
				WithCause(tidyErr)
		}
	}()

	for _, identity := range order {
		unit, lookupErr := registry.Lookup(identity)
		if lookupErr != nil {
			return lookupErr
		}
		logger := log.Ctx(ctx).With().Str("unit", identity).Str("operation", string(op)).Logger()
		logger.Info().Msg("processing unit")
		applyErr := run.apply(logger.WithContext(ctx), unit, op)
		if done != nil {
			done(identity, applyErr)
		}
		if applyErr != nil {
			logger.Error().Err(applyErr).Msg("unit failed")
			return applyErr
		}
	}
	return nil
}

func (s *Service) runOperation(ctx context.Context, req OperationRequest, op types.Operation) (OperationResult, error) {
	p, err := s.plan(ctx, req.Selection, op)
	if err != nil {
		return OperationResult{}, err
	}
	result := OperationResult{Order: p.resolution.Order, Skipped: p.resolution.Skipped}
	if len(p.resolution.Order) == 0 {
		log.Ctx(ctx).Info().Str("operation", string(op)).Msg("nothing to do")
		return result, nil
	}
	return result, s.execute(ctx, p.registry, p.resolution.Order, p.resolution.Selection, op, s.Logs, nil)
}

func (s *Service) Build(ctx context.Context, req OperationRequest) (OperationResult, error) {
	return s.runOperation(ctx, req, types.OperationBuild)
}

func (s *Service) Install(ctx context.Context, req OperationRequest) (OperationResult, error) {
	return s.runOperation(ctx, req, types.OperationInstall)
}

func (s *Service) Unbuild(ctx context.Context, req OperationRequest) (OperationResult, error) {
	return s.runOperation(ctx, req, types.OperationUnbuild)
}
