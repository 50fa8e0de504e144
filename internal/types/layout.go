package types

import "path/filepath"

// Layout holds the host directories shared by every unit.
type Layout struct {
	LogsDir     string
	SourcesDir  string
	ToolsDir    string
	PackagesDir string
	BuildsDir   string
	WorksDir    string
	PatchesDir  string
	DebsDir     string
	SystemRoot  string
	Prefix      string
	Target      string
}

// UnitDirs are the host directories owned by a single unit. Stages share
// their owner's directories.
type UnitDirs struct {
	Source  string
	Build   string
	Collect string
	Work    string
	Patch   string
}

func (l Layout) SourceDir(src *Source) string {
	if src.Subdir != "" {
		return filepath.Join(l.SourcesDir, src.Subdir, src.Name)
	}
	return filepath.Join(l.SourcesDir, src.Name)
}

func (l Layout) SourceDirs(src *Source) UnitDirs {
	return UnitDirs{
		Source: l.SourceDir(src),
		Patch:  filepath.Join(l.PatchesDir, src.Name),
	}
}

func (l Layout) ToolDirs(tool *Tool, src *Source) UnitDirs {
	return UnitDirs{
		Source:  l.SourceDir(src),
		Build:   filepath.Join(l.BuildsDir, tool.Name),
		Collect: filepath.Join(l.ToolsDir, tool.Name),
		Work:    filepath.Join(l.WorksDir, tool.Name),
	}
}

func (l Layout) PackageDirs(pkg *Package, src *Source) UnitDirs {
	return UnitDirs{
		Source:  l.SourceDir(src),
		Build:   filepath.Join(l.BuildsDir, pkg.Name),
		Collect: filepath.Join(l.PackagesDir, pkg.Name),
		Work:    filepath.Join(l.WorksDir, pkg.Name),
	}
}

// Sandbox-side mount points.
const (
	SandboxHome         = "/home/hbuild"
	SandboxSourceDir    = SandboxHome + "/source"
	SandboxBuildDir     = SandboxHome + "/build"
	SandboxCollectDir   = SandboxHome + "/collect"
	SandboxSourceRoot   = SandboxHome + "/source_root"
	SandboxBuildRoot    = SandboxHome + "/build_root"
	SandboxSystemRoot   = SandboxHome + "/system_root"
	SandboxSystemPrefix = SandboxHome + "/system_prefix"
	SandboxPatchRoot    = SandboxHome + "/patch_root"
	SandboxPatchDir     = SandboxHome + "/patch"
)

// Mount describes one filesystem view inside a sandbox. When Overlay is
// set, Source is the lower layer and writes land in Overlay.Upper.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
	Overlay  *OverlayLayers
}

type OverlayLayers struct {
	Upper string
	Work  string
}

type SandboxSpec struct {
	Name   string
	Image  string
	UserNS string
	Mounts []Mount
}

type ExecRequest struct {
	Args    []string
	Env     map[string]string
	Workdir string
}

type ExecResult struct {
	ExitCode int
	Output   []byte
}
