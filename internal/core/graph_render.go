package core

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"hbuild/internal/types"
)

// RenderTree writes the reduced graph as an indented tree rooted at the
// units nothing else depends on. Units the installed filter dropped are
// suffixed with "(installed)".
func RenderTree(w io.Writer, dg DependencyGraph, res Resolution) error {
	if err := requireReduced(res); err != nil {
		return err
	}
	adjacency, err := res.Reduced.AdjacencyMap()
	if err != nil {
		return err
	}
	predecessors, err := res.Reduced.PredecessorMap()
	if err != nil {
		return err
	}
	skipped := map[string]struct{}{}
	for _, identity := range res.Skipped {
		skipped[identity] = struct{}{}
	}
	byIndex := func(a, b string) int { return dg.Index[a] - dg.Index[b] }

	var roots []string
	for identity, preds := range predecessors {
		if len(preds) == 0 {
			roots = append(roots, identity)
		}
	}
	slices.SortFunc(roots, byIndex)

	var walk func(identity string, depth int) error
	walk = func(identity string, depth int) error {
		label := identity
		if _, ok := skipped[identity]; ok {
			label += " (installed)"
		}
		if _, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), label); err != nil {
			return err
		}
		children := make([]string, 0, len(adjacency[identity]))
		for child := range adjacency[identity] {
			children = append(children, child)
		}
		slices.SortFunc(children, byIndex)
		for _, child := range children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := walk(root, 0); err != nil {
			return err
		}
	}
	return nil
}

func RenderDOT(w io.Writer, g graph.Graph[string, string]) error {
	return draw.DOT(g, w)
}

func requireReduced(res Resolution) error {
	if res.Reduced == nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("resolution was not reduced")
	}
	return nil
}

// GraphNode is the wire form of one node in a result_graph message.
type GraphNode struct {
	Identity string         `json:"identity"`
	Kind     types.UnitKind `json:"kind"`
	Deps     []string       `json:"deps"`
	Skipped  bool           `json:"skipped,omitempty"`
}

// GraphJSON encodes the reduced graph in build order, skipped units
// included, for publication to the event queue.
func GraphJSON(dg DependencyGraph, res Resolution) ([]byte, error) {
	if err := requireReduced(res); err != nil {
		return nil, err
	}
	adjacency, err := res.Reduced.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	skipped := map[string]struct{}{}
	for _, identity := range res.Skipped {
		skipped[identity] = struct{}{}
	}
	identities := make([]string, 0, len(adjacency))
	for identity := range adjacency {
		identities = append(identities, identity)
	}
	slices.SortFunc(identities, func(a, b string) int { return dg.Index[a] - dg.Index[b] })

	nodes := make([]GraphNode, 0, len(identities))
	for _, identity := range identities {
		deps := make([]string, 0, len(adjacency[identity]))
		for dep := range adjacency[identity] {
			deps = append(deps, dep)
		}
		slices.SortFunc(deps, func(a, b string) int { return dg.Index[a] - dg.Index[b] })
		_, skip := skipped[identity]
		node := GraphNode{Identity: identity, Deps: deps, Skipped: skip}
		if unit, ok := dg.Units[identity]; ok {
			node.Kind = unit.Kind()
		}
		nodes = append(nodes, node)
	}
	return json.Marshal(nodes)
}
