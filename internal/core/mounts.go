package core

import (
	"hbuild/internal/types"
)

// MountPlan lists the filesystem views a unit's sandbox gets. Tools see
// the system prefix through an overlay and packages see the system root
// through one, so installs land in the unit's collect directory.
func MountPlan(kind types.UnitKind, dirs types.UnitDirs, layout types.Layout, withPatches bool) []types.Mount {
	switch kind {
	case types.UnitKindSource:
		mounts := []types.Mount{
			{Source: dirs.Source, Target: types.SandboxSourceDir},
			{Source: layout.SourcesDir, Target: types.SandboxSourceRoot},
			{Source: layout.SystemRoot, Target: types.SandboxSystemRoot, ReadOnly: true},
			{Source: layout.Prefix, Target: types.SandboxSystemPrefix, ReadOnly: true},
			{Source: layout.PatchesDir, Target: types.SandboxPatchRoot, ReadOnly: true},
		}
		if withPatches {
			mounts = append(mounts, types.Mount{Source: dirs.Patch, Target: types.SandboxPatchDir, ReadOnly: true})
		}
		return mounts
	case types.UnitKindTool:
		return append(unitMounts(dirs, layout),
			types.Mount{Source: layout.SystemRoot, Target: types.SandboxSystemRoot, ReadOnly: true},
			types.Mount{
				Source:  layout.Prefix,
				Target:  types.SandboxSystemPrefix,
				Overlay: &types.OverlayLayers{Upper: dirs.Collect, Work: dirs.Work},
			},
		)
	case types.UnitKindPackage:
		return append(unitMounts(dirs, layout),
			types.Mount{Source: layout.Prefix, Target: types.SandboxSystemPrefix, ReadOnly: true},
			types.Mount{
				Source:  layout.SystemRoot,
				Target:  types.SandboxSystemRoot,
				Overlay: &types.OverlayLayers{Upper: dirs.Collect, Work: dirs.Work},
			},
		)
	}
	return nil
}

func unitMounts(dirs types.UnitDirs, layout types.Layout) []types.Mount {
	return []types.Mount{
		{Source: dirs.Source, Target: types.SandboxSourceDir},
		{Source: dirs.Build, Target: types.SandboxBuildDir},
		{Source: dirs.Collect, Target: types.SandboxCollectDir},
		{Source: layout.SourcesDir, Target: types.SandboxSourceRoot, ReadOnly: true},
		{Source: layout.BuildsDir, Target: types.SandboxBuildRoot, ReadOnly: true},
	}
}
