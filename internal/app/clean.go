package app

import (
	"context"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"hbuild/internal/types"
)

// Clean removes everything the selected units put on disk and forgets
// their state. Staged files are unlinked one unit at a time since units
// share parent directories in the system root; the unit trees are then
// removed in parallel, and state is reset only once the files are gone.
func (s *Service) Clean(ctx context.Context, req OperationRequest) (OperationResult, error) {
	p, err := s.plan(ctx, req.Selection, types.OperationClean)
	if err != nil {
		return OperationResult{}, err
	}
	result := OperationResult{Order: p.resolution.Order, Skipped: p.resolution.Skipped}
	run := s.newRun(p.registry, s.Logs)

	var trees []string
	for _, identity := range p.resolution.Order {
		unit, err := p.registry.Lookup(identity)
		if err != nil {
			return result, err
		}
		switch u := unit.(type) {
		case *types.Source:
			trees = append(trees, run.layout.SourceDir(u))
		case *types.Tool, *types.Package:
			dirs, err := run.unitDirs(u)
			if err != nil {
				return result, err
			}
			target, _ := run.mergeTarget(u)
			if err := s.Staging.Unstage(ctx, dirs.Collect, target); err != nil {
				return result, err
			}
			trees = append(trees, dirs.Build, dirs.Work)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, tree := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			log.Ctx(ctx).Debug().Str("path", tree).Msg("removing tree")
			return s.Staging.RemoveTree(tree)
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	for _, identity := range p.resolution.Order {
		if err := s.State.Reset(ctx, identity); err != nil {
			return result, err
		}
	}
	return result, nil
}
