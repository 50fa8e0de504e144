package app

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"hbuild/internal/types"
)

// install re-merges a built unit's collect directory and marks it
// installed. Sources have nothing to install.
func (r *run) install(ctx context.Context, unit types.Unit) error {
	if unit.Kind() == types.UnitKindSource {
		event := log.Ctx(ctx).Debug()
		if r.isSelected(unit.Identity()) {
			event = log.Ctx(ctx).Warn()
		}
		event.Msg("sources cannot be installed, skipping")
		return nil
	}
	id := unit.Identity()
	state, err := r.state(ctx, id)
	if err != nil {
		return err
	}
	if !state.AtLeast(types.UnitStateBuilt) {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("%s is not built", id))
	}
	owner, err := r.ownerOf(unit)
	if err != nil {
		return err
	}
	if err := r.prepareLayout(); err != nil {
		return err
	}
	if err := r.merge(ctx, owner); err != nil {
		return err
	}
	return r.advance(ctx, id, types.UnitStateInstalled)
}
