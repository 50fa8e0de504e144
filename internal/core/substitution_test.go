package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"hbuild/internal/types"
)

func TestPrepareStepSubstitutesPlaceholders(t *testing.T) {
	p := SandboxPlaceholders(types.UnitKindPackage, "aarch64-linux-gnu")
	p.Parallelism = 8
	step := types.Step{
		Args:    types.StepArgs{"./configure", "--prefix=@PREFIX@", "--host=@TARGET@", "-j@PARALLELISM@"},
		Environ: map[string]string{"DESTDIR": "@THIS_COLLECT_DIR@", "CFLAGS": "-I@SYSROOT_DIR@/include"},
		Workdir: "@THIS_BUILD_DIR@/sub",
	}

	req := PrepareStep(step, p, "/unused", "")
	expectedArgs := []string{
		"./configure",
		"--prefix=" + types.SandboxSystemPrefix,
		"--host=aarch64-linux-gnu",
		"-j8",
	}
	if diff := cmp.Diff(expectedArgs, req.Args); diff != "" {
		t.Fatalf("unexpected args (-want +got):\n%s", diff)
	}
	require.Equal(t, types.SandboxCollectDir, req.Env["DESTDIR"])
	require.Equal(t, "-I"+types.SandboxSystemRoot+"/include", req.Env["CFLAGS"])
	require.Equal(t, types.SandboxBuildDir+"/sub", req.Workdir)
	require.Equal(t, types.SandboxSystemPrefix+"/bin:"+DefaultSandboxPath, req.Env["PATH"])
	require.Equal(t, types.SandboxSystemPrefix+"/share/aclocal", req.Env["ACLOCAL_PATH"])
}

func TestPrepareStepComposesPaths(t *testing.T) {
	p := SandboxPlaceholders(types.UnitKindTool, "x86_64-linux-gnu")
	step := types.Step{
		Args:    types.StepArgs{"true"},
		Environ: map[string]string{"PATH": "/opt/bin", "ACLOCAL_PATH": "/opt/aclocal"},
	}

	req := PrepareStep(step, p, types.SandboxBuildDir, "/bin")
	require.Equal(t, types.SandboxSystemPrefix+"/bin:/opt/bin:/bin", req.Env["PATH"])
	require.Equal(t, types.SandboxSystemPrefix+"/share/aclocal:/opt/aclocal", req.Env["ACLOCAL_PATH"])
	require.Equal(t, types.SandboxBuildDir, req.Workdir)
}

func TestPrepareStepShell(t *testing.T) {
	p := SandboxPlaceholders(types.UnitKindSource, "x86_64-linux-gnu")
	step := types.Step{Args: types.StepArgs{"autoreconf -fi && echo @THIS_BUILD_DIR@"}, Shell: true}

	req := PrepareStep(step, p, types.SandboxSourceDir, "")
	expected := []string{"/bin/sh", "-c", "autoreconf -fi && echo " + types.SandboxSourceDir}
	if diff := cmp.Diff(expected, req.Args); diff != "" {
		t.Fatalf("unexpected args (-want +got):\n%s", diff)
	}
}

func TestSandboxPlaceholdersForSources(t *testing.T) {
	p := SandboxPlaceholders(types.UnitKindSource, "x86_64-linux-gnu")
	require.Equal(t, types.SandboxSourceDir, p.ThisBuildDir)
	require.Equal(t, types.SandboxSourceDir, p.ThisCollectDir)
	require.Equal(t, types.SandboxSourceRoot, p.BuildRoot)
	require.Positive(t, p.Parallelism)

	p = SandboxPlaceholders(types.UnitKindTool, "x86_64-linux-gnu")
	require.Equal(t, types.SandboxBuildDir, p.ThisBuildDir)
	require.Equal(t, types.SandboxBuildRoot, p.BuildRoot)
}

func TestPlaceholdersLeaveUnknownTokens(t *testing.T) {
	p := SandboxPlaceholders(types.UnitKindTool, "x86_64-linux-gnu")
	require.Equal(t, "@UNKNOWN@/"+types.SandboxSourceDir, p.Substitute("@UNKNOWN@/@THIS_SOURCE_DIR@"))
}
