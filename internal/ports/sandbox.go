package ports

import (
	"context"

	"hbuild/internal/types"
)

type SandboxProviderPort interface {
	Create(ctx context.Context, spec types.SandboxSpec) (SandboxPort, error)
}

// SandboxPort is one live execution environment. Kill and Remove must be
// safe to call on an exited or already removed sandbox.
type SandboxPort interface {
	ID() string
	Exec(ctx context.Context, req types.ExecRequest) (types.ExecResult, error)
	Kill(ctx context.Context) error
	Remove(ctx context.Context) error
}
