package app

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"hbuild/internal/types"
)

// Package emits a .deb for every Package in the resolved order.
func (s *Service) Package(ctx context.Context, req OperationRequest) (PackageResult, error) {
	p, err := s.plan(ctx, req.Selection, types.OperationPackage)
	if err != nil {
		return PackageResult{}, err
	}
	result := PackageResult{OperationResult: OperationResult{Order: p.resolution.Order, Skipped: p.resolution.Skipped}}
	run := s.newRun(p.registry, s.Logs)
	for _, identity := range p.resolution.Order {
		unit, err := p.registry.Lookup(identity)
		if err != nil {
			return result, err
		}
		if err := run.pack(ctx, unit); err != nil {
			return result, err
		}
	}
	result.Debs = run.debs
	return result, nil
}

func (r *run) pack(ctx context.Context, unit types.Unit) error {
	pkg, ok := unit.(*types.Package)
	if !ok {
		log.Ctx(ctx).Debug().Str("unit", unit.Identity()).Msg("not a package, skipping")
		return nil
	}
	state, err := r.state(ctx, pkg.Identity())
	if err != nil {
		return err
	}
	if !state.AtLeast(types.UnitStateBuilt) {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("%s must be built before packaging", pkg.Name))
	}
	dirs, err := r.unitDirs(pkg)
	if err != nil {
		return err
	}
	if err := r.svc.Staging.EnsureDirs(r.layout.DebsDir); err != nil {
		return err
	}
	size, err := r.svc.Staging.InstalledSize(dirs.Collect)
	if err != nil {
		return err
	}
	path, err := r.svc.Packager.BuildDeb(ctx, types.DebRequest{
		Package:       pkg,
		StagingDir:    dirs.Collect,
		OutputDir:     r.layout.DebsDir,
		Depends:       r.debDepends(pkg),
		InstalledSize: size,
	})
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("unit", pkg.Name).Str("deb", path).Msg("package written")
	r.debs = append(r.debs, path)
	return nil
}

// debDepends maps each required package to the version it is built at.
func (r *run) debDepends(pkg *types.Package) map[string]string {
	depends := map[string]string{}
	for _, name := range pkg.PkgsRequired {
		if dep, ok := r.registry.Package(name); ok {
			depends[dep.Name] = dep.Version
		}
	}
	return depends
}
