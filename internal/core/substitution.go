package core

import (
	"runtime"
	"strconv"
	"strings"

	"hbuild/internal/types"
)

// DefaultSandboxPath is appended to every step's PATH.
const DefaultSandboxPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Placeholders holds the values substituted for @TOKEN@ markers in step
// arguments, environment values and working directories.
type Placeholders struct {
	ThisSourceDir  string
	ThisBuildDir   string
	ThisCollectDir string
	SourceRoot     string
	BuildRoot      string
	SysrootDir     string
	Prefix         string
	Target         string
	Parallelism    int
}

// SandboxPlaceholders returns the sandbox-side paths for a unit kind.
// Sources have no build or collect directory of their own, so both point
// at the source tree.
func SandboxPlaceholders(kind types.UnitKind, target string) Placeholders {
	p := Placeholders{
		ThisSourceDir:  types.SandboxSourceDir,
		ThisBuildDir:   types.SandboxBuildDir,
		ThisCollectDir: types.SandboxCollectDir,
		SourceRoot:     types.SandboxSourceRoot,
		BuildRoot:      types.SandboxBuildRoot,
		SysrootDir:     types.SandboxSystemRoot,
		Prefix:         types.SandboxSystemPrefix,
		Target:         target,
		Parallelism:    runtime.NumCPU(),
	}
	if kind == types.UnitKindSource {
		p.ThisBuildDir = types.SandboxSourceDir
		p.ThisCollectDir = types.SandboxSourceDir
		p.BuildRoot = types.SandboxSourceRoot
	}
	return p
}

func (p Placeholders) replacer() *strings.Replacer {
	return strings.NewReplacer(
		"@THIS_SOURCE_DIR@", p.ThisSourceDir,
		"@THIS_BUILD_DIR@", p.ThisBuildDir,
		"@THIS_COLLECT_DIR@", p.ThisCollectDir,
		"@SOURCE_ROOT@", p.SourceRoot,
		"@BUILD_ROOT@", p.BuildRoot,
		"@SYSROOT_DIR@", p.SysrootDir,
		"@PREFIX@", p.Prefix,
		"@TARGET@", p.Target,
		"@PARALLELISM@", strconv.Itoa(p.Parallelism),
	)
}

func (p Placeholders) Substitute(value string) string {
	return p.replacer().Replace(value)
}

// PrepareStep substitutes every placeholder in step and composes its
// environment. PATH always starts with the prefix bin directory and
// ACLOCAL_PATH with the prefix aclocal directory.
func PrepareStep(step types.Step, p Placeholders, defaultWorkdir string, defaultPath string) types.ExecRequest {
	r := p.replacer()
	if defaultPath == "" {
		defaultPath = DefaultSandboxPath
	}

	args := make([]string, 0, len(step.Args))
	for _, arg := range step.Args {
		args = append(args, r.Replace(arg))
	}
	if step.Shell {
		args = []string{"/bin/sh", "-c", strings.Join(args, " ")}
	}

	env := make(map[string]string, len(step.Environ)+2)
	for key, value := range step.Environ {
		env[key] = r.Replace(value)
	}
	path := []string{p.Prefix + "/bin"}
	if extra := env["PATH"]; extra != "" {
		path = append(path, extra)
	}
	env["PATH"] = strings.Join(append(path, defaultPath), ":")
	aclocal := p.Prefix + "/share/aclocal"
	if extra := env["ACLOCAL_PATH"]; extra != "" {
		aclocal += ":" + extra
	}
	env["ACLOCAL_PATH"] = aclocal

	workdir := defaultWorkdir
	if step.Workdir != "" {
		workdir = r.Replace(step.Workdir)
	}
	return types.ExecRequest{Args: args, Env: env, Workdir: workdir}
}
