package ports

import "hbuild/internal/types"

// UnitLoaderPort reads unit description files. Structural checks of
// required keys happen here; cross-file references are resolved later by
// the registry.
type UnitLoaderPort interface {
	LoadDir(dir string) ([]types.PkgsrcFile, error)
}
