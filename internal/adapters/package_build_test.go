package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"hbuild/internal/types"
)

func samplePackage() *types.Package {
	return &types.Package{
		Name:    "bar",
		Version: "2.1-1",
		Metadata: types.PackageMetadata{
			Summary:     "bar utilities",
			Description: "First line.\n\nSecond paragraph.",
			Section:     "utils",
			Maintainer:  "Dev <dev@example.com>",
			Website:     "https://example.com/bar",
		},
	}
}

func TestBuildControl(t *testing.T) {
	control, err := BuildControl(samplePackage(), map[string]string{"zlib": "", "foo": "1.0.0"}, 42)
	require.NoError(t, err)

	expected := "Package: bar\n" +
		"Version: 2.1-1\n" +
		"Architecture: amd64\n" +
		"Description: bar utilities\n" +
		" First line.\n" +
		" .\n" +
		" Second paragraph.\n" +
		"Section: utils\n" +
		"Maintainer: Dev <dev@example.com>\n" +
		"Homepage: https://example.com/bar\n" +
		"Installed-Size: 42\n" +
		"Depends: foo (>= 1.0.0), zlib\n"
	if diff := cmp.Diff(expected, control); diff != "" {
		t.Fatalf("unexpected control (-want +got):\n%s", diff)
	}
}

func TestBuildControlRejectsBadVersions(t *testing.T) {
	pkg := samplePackage()
	pkg.Version = "x1"
	_, err := BuildControl(pkg, nil, 0)
	require.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))

	_, err = BuildControl(samplePackage(), map[string]string{"foo": "bad version"}, 0)
	require.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestDebFileName(t *testing.T) {
	pkg := samplePackage()
	require.Equal(t, "bar_2.1-1_amd64.deb", DebFileName(pkg))
	pkg.Metadata.Architecture = "arm64"
	require.Equal(t, "bar_2.1-1_arm64.deb", DebFileName(pkg))
}

func TestBuildDebRunsPackager(t *testing.T) {
	root := t.TempDir()
	script := filepath.Join(root, "fake-dpkg-deb")
	// Arguments: --root-owner-group --build <staging> <output>
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$3\" > \"$4\"\n"), 0o755))

	staging := filepath.Join(root, "packages", "bar")
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "usr", "bin"), 0o755))
	packager := DebPackagerAdapter{Command: script}

	deb, err := packager.BuildDeb(t.Context(), types.DebRequest{
		Package:    samplePackage(),
		StagingDir: staging,
		OutputDir:  filepath.Join(root, "debs"),
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "debs", "bar_2.1-1_amd64.deb"), deb)

	data, err := os.ReadFile(deb)
	require.NoError(t, err)
	require.Equal(t, staging+"\n", string(data))
	control, err := os.ReadFile(filepath.Join(staging, "DEBIAN", "control"))
	require.NoError(t, err)
	require.Contains(t, string(control), "Package: bar\n")
}

func TestBuildDebReportsFailure(t *testing.T) {
	root := t.TempDir()
	script := filepath.Join(root, "failing-dpkg-deb")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho broken >&2\nexit 1\n"), 0o755))

	_, err := DebPackagerAdapter{Command: script}.BuildDeb(t.Context(), types.DebRequest{
		Package:    samplePackage(),
		StagingDir: filepath.Join(root, "staging"),
		OutputDir:  filepath.Join(root, "debs"),
	})
	require.Equal(t, errbuilder.CodeInternal, errbuilder.CodeOf(err))

	_, err = NewDebPackagerAdapter().BuildDeb(t.Context(), types.DebRequest{})
	require.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}
