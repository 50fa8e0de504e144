package core

import (
	"context"
	"errors"
	"fmt"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/dominikbraun/graph"
	"github.com/rs/zerolog/log"

	"hbuild/internal/types"
)

// DependencyGraph is the full unit graph. Edges point from a dependent to
// its dependency.
type DependencyGraph struct {
	Graph graph.Graph[string, string]
	// Units is the symbol table from identity to unit.
	Units map[string]types.Unit
	// Index records insertion order and breaks ties when sorting.
	Index map[string]int
}

func (d DependencyGraph) Contains(identity string) bool {
	_, ok := d.Units[identity]
	return ok
}

type GraphBuilder struct {
	Registry *Registry
}

func NewGraphBuilder(registry *Registry) GraphBuilder {
	return GraphBuilder{Registry: registry}
}

func (b GraphBuilder) Build(ctx context.Context) (DependencyGraph, error) {
	if b.Registry == nil || !b.Registry.Linked() {
		return DependencyGraph{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("graph builder requires a linked registry")
	}
	dg := DependencyGraph{
		Graph: graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
		Units: map[string]types.Unit{},
		Index: map[string]int{},
	}

	var ordered []types.Unit
	for _, src := range b.Registry.Sources() {
		ordered = append(ordered, src)
	}
	for _, tool := range b.Registry.Tools() {
		ordered = append(ordered, tool)
		for i := range tool.Stages {
			ordered = append(ordered, &tool.Stages[i])
		}
	}
	for _, pkg := range b.Registry.Packages() {
		ordered = append(ordered, pkg)
		for i := range pkg.Stages {
			ordered = append(ordered, &pkg.Stages[i])
		}
	}
	for _, unit := range ordered {
		if err := dg.addNode(ctx, unit); err != nil {
			return DependencyGraph{}, err
		}
	}

	for _, unit := range ordered {
		deps, err := b.Registry.Deps(unit)
		if err != nil {
			return DependencyGraph{}, err
		}
		for _, dep := range deps {
			if !dg.Contains(dep) {
				return DependencyGraph{}, errbuilder.New().
					WithCode(errbuilder.CodeInvalidArgument).
					WithMsg(fmt.Sprintf("unable to resolve dependency %s -> %s", unit.Identity(), dep))
			}
			if err := dg.addEdge(unit.Identity(), dep); err != nil {
				return DependencyGraph{}, err
			}
		}
		for _, stage := range stagesOf(unit) {
			if err := dg.addEdge(unit.Identity(), stage); err != nil {
				return DependencyGraph{}, err
			}
		}
	}

	if err := b.addSystemEdges(&dg); err != nil {
		return DependencyGraph{}, err
	}

	edges, err := dg.Graph.Size()
	if err != nil {
		return DependencyGraph{}, err
	}
	log.Ctx(ctx).Debug().Int("nodes", len(dg.Units)).Int("edges", edges).Msg("dependency graph built")
	return dg, nil
}

// addSystemEdges makes every ordinary package depend on every package
// marked as a system package.
func (b GraphBuilder) addSystemEdges(dg *DependencyGraph) error {
	var system []string
	for _, pkg := range b.Registry.Packages() {
		if pkg.SystemPackage {
			system = append(system, pkg.Identity())
		}
	}
	if len(system) == 0 {
		return nil
	}
	for _, pkg := range b.Registry.Packages() {
		if pkg.SystemPackage || pkg.NoDeps {
			continue
		}
		for _, sys := range system {
			if err := dg.addEdge(pkg.Identity(), sys); err != nil {
				return err
			}
		}
	}
	return nil
}

func stagesOf(unit types.Unit) []string {
	var stages []types.Stage
	switch u := unit.(type) {
	case *types.Tool:
		stages = u.Stages
	case *types.Package:
		stages = u.Stages
	default:
		return nil
	}
	out := make([]string, 0, len(stages))
	for i := range stages {
		out = append(out, stages[i].Identity())
	}
	return out
}

func (d *DependencyGraph) addNode(ctx context.Context, unit types.Unit) error {
	identity := unit.Identity()
	assert.NotEmpty(ctx, identity, "unit identity must be set")
	if err := d.Graph.AddVertex(identity); err != nil {
		if errors.Is(err, graph.ErrVertexAlreadyExists) {
			return duplicateUnit(identity)
		}
		return err
	}
	d.Index[identity] = len(d.Units)
	d.Units[identity] = unit
	return nil
}

func (d *DependencyGraph) addEdge(from string, to string) error {
	err := d.Graph.AddEdge(from, to)
	switch {
	case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
		return nil
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("dependency cycle: %s -> %s", from, to)).
			WithCause(err)
	default:
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to add edge %s -> %s", from, to)).
			WithCause(err)
	}
}
