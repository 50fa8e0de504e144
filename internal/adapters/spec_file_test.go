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

const fooPkgsrc = `
source:
  name: foo
  version: 1.0.0
  git: https://example.com/foo.git
  tag: v1.0.0
  regenerate:
    - args: autoreconf -fi
      shell: true
tools:
  - name: foo-tool
    version: 1.0.0
    from_source: foo
    configure:
      - args: ["@THIS_SOURCE_DIR@/configure", "--prefix=@PREFIX@"]
    compile:
      - args: ["make", "-j@PARALLELISM@"]
    install:
      - args: ["make", "install"]
        environ:
          DESTDIR: "@THIS_COLLECT_DIR@"
    stages:
      - name: bootstrap
        pkgs-required: [libc]
packages:
  - name: foo
    version: 1.0.0-1
    from_source: foo
    tools-required:
      - foo-tool
      - tool: foo-tool
        stage-dependencies: [bootstrap]
    metadata:
      summary: foo library
      maintainer: Dev <dev@example.com>
`

func TestParsePkgsrc(t *testing.T) {
	file, err := ParsePkgsrc([]byte(fooPkgsrc))
	require.NoError(t, err)

	require.NotNil(t, file.Source)
	require.Equal(t, "v1.0.0", file.Source.Tag)
	require.Len(t, file.Source.Regenerate, 1)
	require.True(t, file.Source.Regenerate[0].Shell)
	if diff := cmp.Diff(types.StepArgs{"autoreconf -fi"}, file.Source.Regenerate[0].Args); diff != "" {
		t.Fatalf("unexpected regenerate args (-want +got):\n%s", diff)
	}

	require.Len(t, file.Tools, 1)
	tool := file.Tools[0]
	require.Equal(t, "@THIS_COLLECT_DIR@", tool.Install[0].Environ["DESTDIR"])
	require.Len(t, tool.Stages, 1)
	require.Equal(t, []string{"libc"}, tool.Stages[0].PkgsRequired)

	require.Len(t, file.Packages, 1)
	pkg := file.Packages[0]
	expected := []types.ToolRequirement{
		{Tool: "foo-tool"},
		{Tool: "foo-tool", StageDependencies: []string{"bootstrap"}},
	}
	if diff := cmp.Diff(expected, pkg.ToolsRequired); diff != "" {
		t.Fatalf("unexpected tool requirements (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"foo-tool", "foo-tool[bootstrap]", "source[foo]"}, pkg.Deps()); diff != "" {
		t.Fatalf("unexpected deps (-want +got):\n%s", diff)
	}
	require.Equal(t, "foo library", pkg.Metadata.Summary)
}

func TestParsePkgsrcValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "source without fetch",
			yaml:    "source: {name: foo, version: '1'}",
			wantErr: "either url or git is required",
		},
		{
			name:    "url and git",
			yaml:    "source: {name: foo, version: '1', url: http://x/a.tgz, format: tgz, git: http://x/a.git, tag: v1}",
			wantErr: "mutually exclusive",
		},
		{
			name:    "git without ref",
			yaml:    "source: {name: foo, version: '1', git: http://x/a.git}",
			wantErr: "branch, commit or tag",
		},
		{
			name:    "url without format",
			yaml:    "source: {name: foo, version: '1', url: http://x/a.tgz}",
			wantErr: "need a format",
		},
		{
			name:    "tool without source",
			yaml:    "tools: [{name: t, version: '1'}]",
			wantErr: "tool t: from_source is required",
		},
		{
			name:    "package bad version",
			yaml:    "packages: [{name: p, version: 'not a version', from_source: s}]",
			wantErr: "not a valid Debian version",
		},
		{
			name:    "bracketed stage",
			yaml:    "packages: [{name: p, version: '1', from_source: s, stages: [{name: 'a[b]'}]}]",
			wantErr: "must not contain any of",
		},
		{
			name:    "package name with comma",
			yaml:    "packages: [{name: 'a,b', version: '1', from_source: s}]",
			wantErr: `package "a,b": name must not contain any of`,
		},
		{
			name:    "tool name with colon",
			yaml:    "tools: [{name: 'x:y', version: '1', from_source: s}]",
			wantErr: `tool "x:y": name must not contain any of`,
		},
		{
			name:    "source name with semicolon",
			yaml:    "source: {name: 'f;g', version: '1', git: http://x/a.git, tag: v1}",
			wantErr: `source "f;g": name must not contain any of`,
		},
		{
			name:    "stage name with colon",
			yaml:    "packages: [{name: p, version: '1', from_source: s, stages: [{name: 'a:b'}]}]",
			wantErr: `p: stage name "a:b" must not contain any of`,
		},
		{
			name:    "unnamed package",
			yaml:    "packages: [{version: '1', from_source: s}]",
			wantErr: "package: name is required",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePkgsrc([]byte(tc.yaml))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadDirOrdersAndSkipsHidden(t *testing.T) {
	root := t.TempDir()
	write := func(rel string, content string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	write("b/bar.yml", "source: {name: bar, version: '1', url: http://x/bar.tgz, format: tgz}")
	write("a.yaml", "source: {name: foo, version: '1', git: http://x/foo.git, branch: main}")
	write(".git/config.yaml", "this: [is not: valid")
	write("README.md", "not a pkgsrc file")

	files, err := NewPkgsrcFileAdapter().LoadDir(root)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "foo", files[0].Source.Name)
	require.Equal(t, filepath.Join(root, "a.yaml"), files[0].Path)
	require.Equal(t, "bar", files[1].Source.Name)
}

func TestLoadDirErrors(t *testing.T) {
	_, err := NewPkgsrcFileAdapter().LoadDir("")
	require.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))

	_, err = NewPkgsrcFileAdapter().LoadDir(filepath.Join(t.TempDir(), "missing"))
	require.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.yaml"), []byte("tools: [{name: t}]"), 0644))
	_, err = NewPkgsrcFileAdapter().LoadDir(root)
	require.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
	require.Contains(t, err.Error(), "bad.yaml")
}
