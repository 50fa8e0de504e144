package app

import (
	"context"

	"hbuild/internal/types"
)

type ValidateResult struct {
	Sources  int
	Tools    int
	Packages int
	Stages   int
	Edges    int
}

// Validate loads and links every unit description and builds the full
// dependency graph without touching state or sandboxes.
func (s *Service) Validate(ctx context.Context) (ValidateResult, error) {
	registry, err := s.loadRegistry()
	if err != nil {
		return ValidateResult{}, err
	}
	dg, err := newGraph(ctx, registry)
	if err != nil {
		return ValidateResult{}, err
	}
	result := ValidateResult{
		Sources:  len(registry.Sources()),
		Tools:    len(registry.Tools()),
		Packages: len(registry.Packages()),
	}
	for _, unit := range dg.Units {
		if unit.Kind() == types.UnitKindStage {
			result.Stages++
		}
	}
	result.Edges, err = dg.Graph.Size()
	return result, err
}
