package ports

import (
	"context"

	"hbuild/internal/types"
)

// StateStorePort persists the per-identity configured/built/installed
// ladder. Mutations are durable when they return.
type StateStorePort interface {
	Snapshot(ctx context.Context) (map[string]types.UnitState, error)
	Get(ctx context.Context, identity string) (types.UnitState, error)
	// Advance moves identity to state, which must be the current rung or
	// the next one.
	Advance(ctx context.Context, identity string, state types.UnitState) error
	// Regress moves identity exactly one rung down.
	Regress(ctx context.Context, identity string) error
	Reset(ctx context.Context, identity string) error
}
