package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func writeMemFile(t *testing.T, fs afero.Fs, path string, size int) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, make([]byte, size), 0o644))
}

func TestStagingMergeSkipsExcluded(t *testing.T) {
	fs := afero.NewMemMapFs()
	staging := NewStagingAdapterWithFs(fs)
	writeMemFile(t, fs, "/collect/foo/usr/lib/libfoo.so", 10)
	writeMemFile(t, fs, "/collect/foo/DEBIAN/control", 10)
	writeMemFile(t, fs, "/system/usr/lib/existing.so", 10)

	require.NoError(t, staging.Merge(t.Context(), "/collect/foo", "/system", []string{"DEBIAN"}))
	require.True(t, staging.Exists("/system/usr/lib/libfoo.so"))
	require.True(t, staging.Exists("/system/usr/lib/existing.so"))
	require.False(t, staging.Exists("/system/DEBIAN"))

	// Merging a missing tree is a no-op.
	require.NoError(t, staging.Merge(t.Context(), "/collect/none", "/system", nil))
}

func TestStagingMergeOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	staging := NewStagingAdapterWithFs(fs)
	require.NoError(t, fs.MkdirAll("/collect/bin", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/collect/bin/tool", []byte("new"), 0o755))
	require.NoError(t, fs.MkdirAll("/prefix/bin", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/prefix/bin/tool", []byte("old"), 0o755))

	require.NoError(t, staging.Merge(t.Context(), "/collect", "/prefix", nil))
	data, err := afero.ReadFile(fs, "/prefix/bin/tool")
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
}

func TestStagingUnstage(t *testing.T) {
	fs := afero.NewMemMapFs()
	staging := NewStagingAdapterWithFs(fs)
	writeMemFile(t, fs, "/collect/foo/usr/lib/foo/libfoo.so", 10)
	writeMemFile(t, fs, "/collect/foo/usr/include/foo.h", 10)
	require.NoError(t, staging.Merge(t.Context(), "/collect/foo", "/system", nil))
	writeMemFile(t, fs, "/system/usr/include/bar.h", 10)

	require.NoError(t, staging.Unstage(t.Context(), "/collect/foo", "/system"))
	require.False(t, staging.Exists("/collect/foo"))
	require.False(t, staging.Exists("/system/usr/lib/foo"), "emptied mirrored dirs are pruned")
	require.False(t, staging.Exists("/system/usr/include/foo.h"))
	require.True(t, staging.Exists("/system/usr/include/bar.h"), "files of other units survive")
	require.True(t, staging.Exists("/system"))

	require.NoError(t, staging.Unstage(t.Context(), "/collect/foo", "/system"))
}

func TestStagingInstalledSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	staging := NewStagingAdapterWithFs(fs)
	writeMemFile(t, fs, "/pkg/usr/lib/a.so", 1)
	writeMemFile(t, fs, "/pkg/usr/lib/b.so", 2048)
	writeMemFile(t, fs, "/pkg/DEBIAN/control", 4096)

	size, err := staging.InstalledSize("/pkg")
	require.NoError(t, err)
	// usr, usr/lib, 1 KiB for a.so, 2 KiB for b.so.
	require.Equal(t, int64(5), size)
}

func TestStagingEnsureAndRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	staging := NewStagingAdapterWithFs(fs)
	require.NoError(t, staging.EnsureDirs("/a/b", "", "  ", "/c"))
	require.True(t, staging.Exists("/a/b"))
	require.True(t, staging.Exists("/c"))

	require.NoError(t, staging.RemoveTree("/a"))
	require.False(t, staging.Exists("/a/b"))
	require.NoError(t, staging.RemoveTree(""))
	require.True(t, staging.Exists("/c"))
}

func TestStagingMergeKeepsSymlinks(t *testing.T) {
	root := t.TempDir()
	staging := NewStagingAdapter()
	collect := filepath.Join(root, "collect")
	target := filepath.Join(root, "prefix")
	require.NoError(t, os.MkdirAll(filepath.Join(collect, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(collect, "lib", "libfoo.so.1"), []byte("elf"), 0o644))
	require.NoError(t, os.Symlink("libfoo.so.1", filepath.Join(collect, "lib", "libfoo.so")))

	require.NoError(t, staging.Merge(t.Context(), collect, target, nil))
	link, err := os.Readlink(filepath.Join(target, "lib", "libfoo.so"))
	require.NoError(t, err)
	require.Equal(t, "libfoo.so.1", link)
}
