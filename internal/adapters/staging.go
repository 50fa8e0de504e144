package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/afero"

	"hbuild/internal/ports"
)

// StagingAdapter manages unit directories on the host. It works on any
// afero filesystem; symlinks are preserved when the filesystem supports
// them.
type StagingAdapter struct {
	Fs afero.Fs
}

func NewStagingAdapter() StagingAdapter {
	return StagingAdapter{Fs: afero.NewOsFs()}
}

func NewStagingAdapterWithFs(fs afero.Fs) StagingAdapter {
	return StagingAdapter{Fs: fs}
}

func (a StagingAdapter) EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := a.Fs.MkdirAll(dir, 0o755); err != nil {
			return stagingError(fmt.Sprintf("failed to create %s", dir), err)
		}
	}
	return nil
}

func (a StagingAdapter) Exists(path string) bool {
	ok, err := afero.Exists(a.Fs, path)
	return err == nil && ok
}

func (a StagingAdapter) Merge(ctx context.Context, from string, to string, exclude []string) error {
	if !a.Exists(from) {
		return nil
	}
	if err := a.Fs.MkdirAll(to, 0o755); err != nil {
		return stagingError(fmt.Sprintf("failed to create %s", to), err)
	}
	err := afero.Walk(a.Fs, from, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(from, path)
		if err != nil || rel == "." {
			return err
		}
		if slices.Contains(exclude, strings.SplitN(rel, string(filepath.Separator), 2)[0]) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		dest := filepath.Join(to, rel)
		switch {
		case info.IsDir():
			return a.Fs.MkdirAll(dest, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			return a.copySymlink(path, dest)
		default:
			return a.copyFile(path, dest, info.Mode().Perm())
		}
	})
	if err != nil {
		return stagingError(fmt.Sprintf("failed to merge %s into %s", from, to), err)
	}
	return nil
}

func (a StagingAdapter) copySymlink(src string, dest string) error {
	linker, ok := a.Fs.(afero.Symlinker)
	if !ok {
		return fmt.Errorf("filesystem cannot copy symlink %s", src)
	}
	target, err := linker.ReadlinkIfPossible(src)
	if err != nil {
		return err
	}
	if err := a.Fs.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return linker.SymlinkIfPossible(target, dest)
}

func (a StagingAdapter) copyFile(src string, dest string, mode os.FileMode) error {
	in, err := a.Fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := a.Fs.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	out, err := a.Fs.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Unstage removes from target everything the unit staged under collect.
// Directories mirrored from collect are pruned when they end up empty;
// target itself is never removed.
func (a StagingAdapter) Unstage(ctx context.Context, collect string, target string) error {
	if !a.Exists(collect) {
		return nil
	}
	var dirs []string
	err := afero.Walk(a.Fs, collect, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(collect, path)
		if err != nil || rel == "." {
			return err
		}
		staged := filepath.Join(target, rel)
		if info.IsDir() {
			dirs = append(dirs, staged)
			return nil
		}
		if err := a.Fs.Remove(staged); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})
	if err != nil {
		return stagingError(fmt.Sprintf("failed to unstage %s", collect), err)
	}
	if err := a.Fs.RemoveAll(collect); err != nil {
		return stagingError(fmt.Sprintf("failed to remove %s", collect), err)
	}
	// Deepest first so parents see their children gone.
	slices.SortFunc(dirs, func(x, y string) int { return len(y) - len(x) })
	for _, dir := range dirs {
		if err := a.removeIfEmpty(dir); err != nil {
			return stagingError(fmt.Sprintf("failed to prune %s", dir), err)
		}
	}
	return nil
}

func (a StagingAdapter) removeIfEmpty(dir string) error {
	if !a.Exists(dir) {
		return nil
	}
	empty, err := afero.IsEmpty(a.Fs, dir)
	if err != nil || !empty {
		return err
	}
	return a.Fs.Remove(dir)
}

func (a StagingAdapter) RemoveTree(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := a.Fs.RemoveAll(path); err != nil {
		return stagingError(fmt.Sprintf("failed to remove %s", path), err)
	}
	return nil
}

// InstalledSize counts one KiB per directory and each file rounded up to
// whole KiB. The DEBIAN control directory is not counted.
func (a StagingAdapter) InstalledSize(root string) (int64, error) {
	var total int64
	err := afero.Walk(a.Fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if info.IsDir() {
			if info.Name() == debianControlDir && filepath.Dir(path) == filepath.Clean(root) {
				return filepath.SkipDir
			}
			total++
			return nil
		}
		total += (info.Size() + 1023) / 1024
		return nil
	})
	if err != nil {
		return 0, stagingError(fmt.Sprintf("failed to size %s", root), err)
	}
	return total, nil
}

func stagingError(msg string, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(msg).
		WithCause(err)
}

var _ ports.StagingPort = StagingAdapter{}
