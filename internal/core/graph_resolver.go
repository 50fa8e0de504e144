package core

import (
	"context"
	"fmt"
	"slices"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/dominikbraun/graph"
	"github.com/rs/zerolog/log"

	"hbuild/internal/types"
)

type ResolveRequest struct {
	Selection []string
	Operation types.Operation
	States    map[string]types.UnitState
	// Reduce computes the transitive reduction needed for rendering. Show
	// always reduces.
	Reduce bool
}

// Resolution is the outcome of resolving a graph for one operation.
type Resolution struct {
	// Order is dependency-first with already installed units removed.
	Order []string
	// Skipped lists the units dropped by the installed filter, in order.
	Skipped []string
	// Reduced is the selection subgraph after transitive reduction. It is
	// nil unless the request asked for it.
	Reduced   graph.Graph[string, string]
	Selection map[string]struct{}
}

func (r Resolution) Selected(identity string) bool {
	_, ok := r.Selection[identity]
	return ok
}

type GraphResolver struct{}

func NewGraphResolver() GraphResolver {
	return GraphResolver{}
}

func (GraphResolver) Resolve(ctx context.Context, dg DependencyGraph, req ResolveRequest) (Resolution, error) {
	selected := map[string]struct{}{}
	for _, name := range req.Selection {
		if !dg.Contains(name) {
			return Resolution{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("unknown unit in selection: %s", name))
		}
		selected[name] = struct{}{}
	}

	sub, err := selectSubgraph(dg, req.Selection)
	if err != nil {
		return Resolution{}, err
	}
	// Same order as sorting the reduced graph: a transitive edge is never
	// the last predecessor a vertex waits on.
	order, err := graph.StableTopologicalSort(sub, func(a, b string) bool {
		return dg.Index[a] > dg.Index[b]
	})
	if err != nil {
		return Resolution{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("dependency graph is not sortable").
			WithCause(err)
	}
	slices.Reverse(order)

	result := Resolution{Selection: selected}
	if req.Reduce || req.Operation == types.OperationShow {
		result.Reduced, err = graph.TransitiveReduction(sub)
		if err != nil {
			return Resolution{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("transitive reduction failed").
				WithCause(err)
		}
	}
	filter := !(req.Operation.Resets() && len(req.Selection) == 0)
	for _, identity := range order {
		if filter && req.States[identity] == types.UnitStateInstalled && !result.Selected(identity) {
			result.Skipped = append(result.Skipped, identity)
			continue
		}
		result.Order = append(result.Order, identity)
	}
	log.Ctx(ctx).Debug().
		Str("operation", string(req.Operation)).
		Int("selected", len(selected)).
		Int("order", len(result.Order)).
		Int("skipped", len(result.Skipped)).
		Msg("resolved build order")
	return result, nil
}

// selectSubgraph returns the graph induced by the selected roots and
// everything they transitively depend on. An empty selection keeps the
// whole graph.
func selectSubgraph(dg DependencyGraph, selection []string) (graph.Graph[string, string], error) {
	keep := map[string]struct{}{}
	if len(selection) == 0 {
		for identity := range dg.Units {
			keep[identity] = struct{}{}
		}
	} else {
		for _, root := range selection {
			err := graph.DFS(dg.Graph, root, func(identity string) bool {
				keep[identity] = struct{}{}
				return false
			})
			if err != nil {
				return nil, errbuilder.New().
					WithCode(errbuilder.CodeInternal).
					WithMsg(fmt.Sprintf("failed to walk dependencies of %s", root)).
					WithCause(err)
			}
		}
	}

	nodes := make([]string, 0, len(keep))
	for identity := range keep {
		nodes = append(nodes, identity)
	}
	slices.SortFunc(nodes, func(a, b string) int { return dg.Index[a] - dg.Index[b] })

	sub := graph.New(graph.StringHash, graph.Directed(), graph.Acyclic())
	for _, identity := range nodes {
		if err := sub.AddVertex(identity); err != nil {
			return nil, err
		}
	}
	adjacency, err := dg.Graph.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	for _, from := range nodes {
		targets := make([]string, 0, len(adjacency[from]))
		for to := range adjacency[from] {
			if _, ok := keep[to]; ok {
				targets = append(targets, to)
			}
		}
		slices.SortFunc(targets, func(a, b string) int { return dg.Index[a] - dg.Index[b] })
		for _, to := range targets {
			if err := sub.AddEdge(from, to); err != nil {
				return nil, err
			}
		}
	}
	return sub, nil
}
