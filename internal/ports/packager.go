package ports

import (
	"context"

	"hbuild/internal/types"
)

type PackagerPort interface {
	// BuildDeb writes the control file into the staging dir and emits the
	// archive into the output dir, returning its path.
	BuildDeb(ctx context.Context, req types.DebRequest) (string, error)
}
