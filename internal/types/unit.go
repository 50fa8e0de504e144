package types

import "gopkg.in/yaml.v3"

// Unit is implemented by Source, Tool, Package and Stage only.
type Unit interface {
	Kind() UnitKind
	Identity() string
	// Deps lists the identities this unit declares directly. Stages
	// return only their own requirements; owner deps are joined by the
	// registry.
	Deps() []string
	unit()
}

// StepArgs accepts a YAML sequence or, for shell steps, a single string.
type StepArgs []string

func (a *StepArgs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*a = StepArgs{node.Value}
		return nil
	}
	var values []string
	if err := node.Decode(&values); err != nil {
		return err
	}
	*a = values
	return nil
}

type Step struct {
	Args    StepArgs          `yaml:"args"`
	Shell   bool              `yaml:"shell,omitempty"`
	Environ map[string]string `yaml:"environ,omitempty"`
	Workdir string            `yaml:"workdir,omitempty"`
}

// ToolRequirement is either a plain tool name or a tool restricted to
// some of its stages.
type ToolRequirement struct {
	Tool              string   `yaml:"tool"`
	StageDependencies []string `yaml:"stage-dependencies,omitempty"`
}

func (r *ToolRequirement) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Tool = node.Value
		r.StageDependencies = nil
		return nil
	}
	type plain ToolRequirement
	var decoded plain
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*r = ToolRequirement(decoded)
	return nil
}

// Identities expands the requirement into graph identities.
func (r ToolRequirement) Identities() []string {
	if len(r.StageDependencies) == 0 {
		return []string{r.Tool}
	}
	out := make([]string, 0, len(r.StageDependencies))
	for _, stage := range r.StageDependencies {
		out = append(out, StageIdentity(r.Tool, stage))
	}
	return out
}

type Requirements struct {
	ToolsRequired []ToolRequirement `yaml:"tools-required,omitempty"`
	PkgsRequired  []string          `yaml:"pkgs-required,omitempty"`
}

func (r Requirements) identities() []string {
	var deps []string
	for _, tool := range r.ToolsRequired {
		deps = append(deps, tool.Identities()...)
	}
	deps = append(deps, r.PkgsRequired...)
	return deps
}

type Source struct {
	Name           string            `yaml:"name"`
	Version        string            `yaml:"version"`
	Subdir         string            `yaml:"subdir,omitempty"`
	URL            string            `yaml:"url,omitempty"`
	Format         string            `yaml:"format,omitempty"`
	Git            string            `yaml:"git,omitempty"`
	Branch         string            `yaml:"branch,omitempty"`
	Commit         string            `yaml:"commit,omitempty"`
	Tag            string            `yaml:"tag,omitempty"`
	ExtractStrip   *int              `yaml:"extract-strip,omitempty"`
	PatchPathStrip int               `yaml:"patch-path-strip,omitempty"`
	ToolsRequired  []ToolRequirement `yaml:"tools-required,omitempty"`
	Regenerate     []Step            `yaml:"regenerate,omitempty"`
}

func (*Source) Kind() UnitKind { return UnitKindSource }

func (s *Source) Identity() string { return SourceIdentity(s.Name) }

func (s *Source) Deps() []string {
	return Requirements{ToolsRequired: s.ToolsRequired}.identities()
}

func (*Source) unit() {}

type Stage struct {
	Name         string `yaml:"name"`
	Requirements `yaml:",inline"`
	Compile      []Step `yaml:"compile,omitempty"`
	Install      []Step `yaml:"install,omitempty"`
	Build        []Step `yaml:"build,omitempty"`

	// Owner is the name of the Tool or Package this stage belongs to. It
	// is filled in by the registry.
	Owner     string   `yaml:"-"`
	OwnerKind UnitKind `yaml:"-"`
}

func (*Stage) Kind() UnitKind { return UnitKindStage }

func (s *Stage) Identity() string { return StageIdentity(s.Owner, s.Name) }

func (s *Stage) Deps() []string { return s.identities() }

func (*Stage) unit() {}

type Tool struct {
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
	FromSource   string `yaml:"from_source"`
	Requirements `yaml:",inline"`
	Configure    []Step  `yaml:"configure,omitempty"`
	Compile      []Step  `yaml:"compile,omitempty"`
	Install      []Step  `yaml:"install,omitempty"`
	Stages       []Stage `yaml:"stages,omitempty"`
}

func (*Tool) Kind() UnitKind { return UnitKindTool }

func (t *Tool) Identity() string { return t.Name }

func (t *Tool) Deps() []string {
	return append(t.identities(), SourceIdentity(t.FromSource))
}

func (*Tool) unit() {}

type PackageMetadata struct {
	Summary      string `yaml:"summary"`
	Description  string `yaml:"description"`
	Section      string `yaml:"section"`
	Maintainer   string `yaml:"maintainer"`
	Website      string `yaml:"website"`
	Architecture string `yaml:"architecture,omitempty"`
}

type Package struct {
	Name          string          `yaml:"name"`
	Version       string          `yaml:"version"`
	FromSource    string          `yaml:"from_source"`
	SystemPackage bool            `yaml:"system-package,omitempty"`
	NoDeps        bool            `yaml:"no-deps,omitempty"`
	Metadata      PackageMetadata `yaml:"metadata"`
	Requirements  `yaml:",inline"`
	Configure     []Step  `yaml:"configure,omitempty"`
	Build         []Step  `yaml:"build,omitempty"`
	Stages        []Stage `yaml:"stages,omitempty"`
}

func (*Package) Kind() UnitKind { return UnitKindPackage }

func (p *Package) Identity() string { return p.Name }

func (p *Package) Deps() []string {
	return append(p.identities(), SourceIdentity(p.FromSource))
}

func (*Package) unit() {}

// PkgsrcFile is one unit description file. Any section may be absent.
type PkgsrcFile struct {
	Path     string    `yaml:"-"`
	Source   *Source   `yaml:"source,omitempty"`
	Tools    []Tool    `yaml:"tools,omitempty"`
	Packages []Package `yaml:"packages,omitempty"`
}
