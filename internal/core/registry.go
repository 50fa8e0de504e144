package core

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"hbuild/internal/types"
)

// ParseIdentity splits a dependency reference into its parts. It accepts
// name, source[name] and parent[stage].
func ParseIdentity(value string) (types.Identity, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return types.Identity{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("identity is empty")
	}
	open := strings.IndexByte(trimmed, '[')
	if open < 0 {
		if strings.ContainsRune(trimmed, ']') {
			return types.Identity{}, invalidIdentity(trimmed)
		}
		return types.Identity{Name: trimmed}, nil
	}
	if !strings.HasSuffix(trimmed, "]") || open == 0 {
		return types.Identity{}, invalidIdentity(trimmed)
	}
	outer := trimmed[:open]
	inner := trimmed[open+1 : len(trimmed)-1]
	if inner == "" || strings.ContainsAny(inner, "[]") {
		return types.Identity{}, invalidIdentity(trimmed)
	}
	if outer == "source" {
		return types.Identity{Kind: types.UnitKindSource, Name: inner}, nil
	}
	return types.Identity{Kind: types.UnitKindStage, Name: outer, Stage: inner}, nil
}

func invalidIdentity(value string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("malformed identity %q", value))
}

// Registry owns every loaded unit. It is built once per process and
// handed to the components that need lookups.
type Registry struct {
	sources  []*types.Source
	tools    []*types.Tool
	packages []*types.Package

	sourceByName  map[string]*types.Source
	toolByName    map[string]*types.Tool
	packageByName map[string]*types.Package
	linked        bool
}

// NewRegistry collects the units of every file in order. Call Link before
// any lookup.
func NewRegistry(files []types.PkgsrcFile) *Registry {
	r := &Registry{
		sourceByName:  map[string]*types.Source{},
		toolByName:    map[string]*types.Tool{},
		packageByName: map[string]*types.Package{},
	}
	for _, file := range files {
		if file.Source != nil {
			src := *file.Source
			r.sources = append(r.sources, &src)
		}
		for i := range file.Tools {
			tool := file.Tools[i]
			tool.Stages = ownStages(tool.Stages, tool.Name, types.UnitKindTool)
			r.tools = append(r.tools, &tool)
		}
		for i := range file.Packages {
			pkg := file.Packages[i]
			pkg.Stages = ownStages(pkg.Stages, pkg.Name, types.UnitKindPackage)
			r.packages = append(r.packages, &pkg)
		}
	}
	return r
}

func ownStages(stages []types.Stage, owner string, kind types.UnitKind) []types.Stage {
	out := make([]types.Stage, len(stages))
	for i, stage := range stages {
		stage.Owner = owner
		stage.OwnerKind = kind
		out[i] = stage
	}
	return out
}

// Link indexes all units and checks every named reference. Forward
// references across files are allowed because indexing completes before
// any reference is checked.
func (r *Registry) Link() error {
	if r.linked {
		return nil
	}
	for _, src := range r.sources {
		if _, ok := r.sourceByName[src.Name]; ok {
			return duplicateUnit(types.SourceIdentity(src.Name))
		}
		r.sourceByName[src.Name] = src
	}
	for _, tool := range r.tools {
		if _, ok := r.toolByName[tool.Name]; ok {
			return duplicateUnit(tool.Name)
		}
		r.toolByName[tool.Name] = tool
	}
	for _, pkg := range r.packages {
		if _, ok := r.packageByName[pkg.Name]; ok {
			return duplicateUnit(pkg.Name)
		}
		if _, ok := r.toolByName[pkg.Name]; ok {
			return duplicateUnit(pkg.Name)
		}
		r.packageByName[pkg.Name] = pkg
	}

	for _, tool := range r.tools {
		if err := r.linkOwner(tool.Name, tool.FromSource, tool.Stages); err != nil {
			return err
		}
	}
	for _, pkg := range r.packages {
		if err := r.linkOwner(pkg.Name, pkg.FromSource, pkg.Stages); err != nil {
			return err
		}
	}
	r.linked = true
	return nil
}

func (r *Registry) linkOwner(name string, fromSource string, stages []types.Stage) error {
	if _, ok := r.sourceByName[fromSource]; !ok {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unable to resolve source %q for %s", fromSource, name))
	}
	seen := map[string]struct{}{}
	for _, stage := range stages {
		if _, ok := seen[stage.Name]; ok {
			return duplicateUnit(types.StageIdentity(name, stage.Name))
		}
		seen[stage.Name] = struct{}{}
	}
	return nil
}

func duplicateUnit(identity string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeAlreadyExists).
		WithMsg(fmt.Sprintf("duplicate unit %s", identity))
}

func (r *Registry) Sources() []*types.Source   { return r.sources }
func (r *Registry) Tools() []*types.Tool       { return r.tools }
func (r *Registry) Packages() []*types.Package { return r.packages }
func (r *Registry) Linked() bool               { return r.linked }

// Lookup resolves any identity form to its unit.
func (r *Registry) Lookup(identity string) (types.Unit, error) {
	id, err := ParseIdentity(identity)
	if err != nil {
		return nil, err
	}
	switch id.Kind {
	case types.UnitKindSource:
		if src, ok := r.sourceByName[id.Name]; ok {
			return src, nil
		}
	case types.UnitKindStage:
		if stage := r.findStage(id.Name, id.Stage); stage != nil {
			return stage, nil
		}
	default:
		if tool, ok := r.toolByName[id.Name]; ok {
			return tool, nil
		}
		if pkg, ok := r.packageByName[id.Name]; ok {
			return pkg, nil
		}
	}
	return nil, errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("unknown unit %s", identity))
}

func (r *Registry) findStage(owner string, name string) *types.Stage {
	var stages []types.Stage
	if tool, ok := r.toolByName[owner]; ok {
		stages = tool.Stages
	} else if pkg, ok := r.packageByName[owner]; ok {
		stages = pkg.Stages
	}
	for i := range stages {
		if stages[i].Name == name {
			return &stages[i]
		}
	}
	return nil
}

func (r *Registry) Source(name string) (*types.Source, bool) {
	src, ok := r.sourceByName[name]
	return src, ok
}

func (r *Registry) Tool(name string) (*types.Tool, bool) {
	tool, ok := r.toolByName[name]
	return tool, ok
}

func (r *Registry) Package(name string) (*types.Package, bool) {
	pkg, ok := r.packageByName[name]
	return pkg, ok
}

// Owner returns the Tool or Package a stage belongs to.
func (r *Registry) Owner(stage *types.Stage) (types.Unit, error) {
	return r.Lookup(stage.Owner)
}

// SourceOf returns the Source a Tool, Package or Stage is built from.
func (r *Registry) SourceOf(unit types.Unit) (*types.Source, error) {
	var name string
	switch u := unit.(type) {
	case *types.Source:
		return u, nil
	case *types.Tool:
		name = u.FromSource
	case *types.Package:
		name = u.FromSource
	case *types.Stage:
		owner, err := r.Owner(u)
		if err != nil {
			return nil, err
		}
		return r.SourceOf(owner)
	}
	src, ok := r.sourceByName[name]
	if !ok {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("unable to resolve source %q for %s", name, unit.Identity()))
	}
	return src, nil
}

// Deps returns the full declared dependency list of a unit. A stage
// depends on its owner's dependencies followed by its own.
func (r *Registry) Deps(unit types.Unit) ([]string, error) {
	stage, ok := unit.(*types.Stage)
	if !ok {
		return unit.Deps(), nil
	}
	owner, err := r.Owner(stage)
	if err != nil {
		return nil, err
	}
	return append(owner.Deps(), stage.Deps()...), nil
}

// Version returns the version of a unit; stages report their owner's.
func (r *Registry) Version(unit types.Unit) string {
	switch u := unit.(type) {
	case *types.Source:
		return u.Version
	case *types.Tool:
		return u.Version
	case *types.Package:
		return u.Version
	case *types.Stage:
		owner, err := r.Owner(u)
		if err != nil {
			return ""
		}
		return r.Version(owner)
	}
	return ""
}
