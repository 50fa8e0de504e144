package ports

import "context"

// StagingPort manages host-side unit directories and merges staged
// output into the shared system root or prefix.
type StagingPort interface {
	EnsureDirs(dirs ...string) error
	Exists(path string) bool
	// Merge copies the tree under from into to, skipping top-level
	// entries named in exclude.
	Merge(ctx context.Context, from string, to string, exclude []string) error
	// Unstage unlinks every file present under collect from target, then
	// removes collect and prunes empty directories left in target.
	Unstage(ctx context.Context, collect string, target string) error
	RemoveTree(path string) error
	// InstalledSize returns the size in KiB the way dpkg counts it.
	InstalledSize(root string) (int64, error)
}
