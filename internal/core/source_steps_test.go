package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"hbuild/internal/types"
)

func TestAcquireStepsGit(t *testing.T) {
	src := &types.Source{Name: "foo", Git: "https://example.com/foo.git", Tag: "v1.0.0"}
	steps := AcquireSteps(src)
	require.Len(t, steps, 2)
	if diff := cmp.Diff(types.StepArgs{"git", "clone", "https://example.com/foo.git", "@THIS_SOURCE_DIR@"}, steps[0].Args); diff != "" {
		t.Fatalf("unexpected clone (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(types.StepArgs{"git", "checkout", "v1.0.0"}, steps[1].Args); diff != "" {
		t.Fatalf("unexpected checkout (-want +got):\n%s", diff)
	}

	src = &types.Source{Name: "foo", Git: "https://example.com/foo.git", Branch: "main", Commit: "abc123"}
	steps = AcquireSteps(src)
	require.Len(t, steps, 1, "branch clones need no checkout")
	require.Contains(t, steps[0].Args, "-b")
	require.Empty(t, ExtractSteps(src))
}

func TestAcquireAndExtractArchive(t *testing.T) {
	strip := 0
	src := &types.Source{Name: "bar", URL: "https://example.com/dl/bar-2.1.tar.gz?mirror=1", Format: "tar.gz", ExtractStrip: &strip}

	acquire := AcquireSteps(src)
	require.Len(t, acquire, 1)
	require.Equal(t, "wget", acquire[0].Args[0])
	require.Equal(t, "@SOURCE_ROOT@", acquire[0].Workdir)

	extract := ExtractSteps(src)
	require.Len(t, extract, 1)
	expected := types.StepArgs{"tar", "-xzvf", "@SOURCE_ROOT@/bar-2.1.tar.gz", "-C", "@THIS_SOURCE_DIR@", "--strip-components=0"}
	if diff := cmp.Diff(expected, extract[0].Args); diff != "" {
		t.Fatalf("unexpected extract (-want +got):\n%s", diff)
	}

	src = &types.Source{Name: "baz", URL: "https://example.com/baz.tar.xz", Format: "tar.xz"}
	extract = ExtractSteps(src)
	require.Equal(t, "-xvf", extract[0].Args[1])
	require.Equal(t, "--strip-components=1", extract[0].Args[5])
}

func TestPatchSteps(t *testing.T) {
	steps := PatchSteps(&types.Source{Name: "foo", PatchPathStrip: 1})
	require.Len(t, steps, 1)
	require.True(t, steps[0].Shell)
	require.Contains(t, steps[0].Args[0], types.SandboxPatchDir)
	require.Contains(t, steps[0].Args[0], "patch -p1 -i")
}

func TestMountPlan(t *testing.T) {
	layout := types.Layout{
		SourcesDir: "/w/sources",
		BuildsDir:  "/w/builds",
		PatchesDir: "/w/patches",
		SystemRoot: "/w/system",
		Prefix:     "/w/system/usr/local",
	}
	tool := &types.Tool{Name: "foo-tool"}
	src := &types.Source{Name: "foo"}
	layout.ToolsDir, layout.WorksDir, layout.PackagesDir = "/w/tools", "/w/work", "/w/packages"

	mounts := MountPlan(types.UnitKindTool, layout.ToolDirs(tool, src), layout, false)
	prefix := mounts[len(mounts)-1]
	require.Equal(t, types.SandboxSystemPrefix, prefix.Target)
	require.Equal(t, &types.OverlayLayers{Upper: "/w/tools/foo-tool", Work: "/w/work/foo-tool"}, prefix.Overlay)

	pkg := &types.Package{Name: "foo"}
	mounts = MountPlan(types.UnitKindPackage, layout.PackageDirs(pkg, src), layout, false)
	root := mounts[len(mounts)-1]
	require.Equal(t, types.SandboxSystemRoot, root.Target)
	require.Equal(t, "/w/packages/foo", root.Overlay.Upper)

	without := MountPlan(types.UnitKindSource, layout.SourceDirs(src), layout, false)
	with := MountPlan(types.UnitKindSource, layout.SourceDirs(src), layout, true)
	require.Len(t, with, len(without)+1)
	require.Equal(t, types.Mount{Source: "/w/patches/foo", Target: types.SandboxPatchDir, ReadOnly: true}, with[len(with)-1])
}
