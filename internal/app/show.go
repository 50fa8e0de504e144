package app

import (
	"context"
	"os"

	"hbuild/internal/core"
	"hbuild/internal/types"
)

// Show prints what a build of the selection would do, as an indented tree
// with installed units marked or as a DOT graph.
func (s *Service) Show(ctx context.Context, req ShowRequest) (OperationResult, error) {
	p, err := s.plan(ctx, req.Selection, types.OperationShow)
	if err != nil {
		return OperationResult{}, err
	}
	out := req.Out
	if out == nil {
		out = os.Stdout
	}
	if req.DOT {
		err = core.RenderDOT(out, p.resolution.Reduced)
	} else {
		err = core.RenderTree(out, p.graph, p.resolution)
	}
	return OperationResult{Order: p.resolution.Order, Skipped: p.resolution.Skipped}, err
}
