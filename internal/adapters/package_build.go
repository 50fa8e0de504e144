package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	debversion "github.com/knqyf263/go-deb-version"
	"github.com/rs/zerolog/log"

	"hbuild/internal/ports"
	"hbuild/internal/shared"
	"hbuild/internal/types"
)

const (
	debianControlDir    = "DEBIAN"
	defaultArchitecture = "amd64"
)

// DebPackagerAdapter turns a package's collect directory into a .deb
// with dpkg-deb.
type DebPackagerAdapter struct {
	// Command is the dpkg-deb binary. Tests may point it elsewhere.
	Command string
}

func NewDebPackagerAdapter() DebPackagerAdapter {
	return DebPackagerAdapter{Command: "dpkg-deb"}
}

func (a DebPackagerAdapter) BuildDeb(ctx context.Context, req types.DebRequest) (string, error) {
	if req.Package == nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("package is required")
	}
	if strings.TrimSpace(req.StagingDir) == "" || strings.TrimSpace(req.OutputDir) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("staging and output directories are required")
	}
	control, err := BuildControl(req.Package, req.Depends, req.InstalledSize)
	if err != nil {
		return "", err
	}
	controlDir := filepath.Join(req.StagingDir, debianControlDir)
	if err := os.MkdirAll(controlDir, 0o755); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create control directory").
			WithCause(err)
	}
	if err := os.WriteFile(filepath.Join(controlDir, "control"), []byte(control), 0o644); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write control file").
			WithCause(err)
	}
	if err := os.MkdirAll(req.OutputDir, 0o750); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create output directory").
			WithCause(err)
	}

	output := filepath.Join(req.OutputDir, DebFileName(req.Package))
	command := a.Command
	if command == "" {
		command = "dpkg-deb"
	}
	cmd := exec.CommandContext(ctx, command, "--root-owner-group", "--build", req.StagingDir, output)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("dpkg-deb build failed").
			WithCause(shared.CommandError(out, err))
	}
	log.Ctx(ctx).Info().Str("package", req.Package.Name).Str("deb", output).Msg("package built")
	return output, nil
}

func architecture(pkg *types.Package) string {
	if arch := strings.TrimSpace(pkg.Metadata.Architecture); arch != "" {
		return arch
	}
	return defaultArchitecture
}

func DebFileName(pkg *types.Package) string {
	return fmt.Sprintf("%s_%s_%s.deb", pkg.Name, pkg.Version, architecture(pkg))
}

// BuildControl renders the DEBIAN/control file for pkg. Dependencies are
// emitted as minimum-version constraints sorted by name.
func BuildControl(pkg *types.Package, depends map[string]string, installedSize int64) (string, error) {
	if _, err := debversion.NewVersion(pkg.Version); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid version %q for %s", pkg.Version, pkg.Name)).
			WithCause(err)
	}
	var builder strings.Builder
	writeField := func(key string, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		builder.WriteString(key)
		builder.WriteString(": ")
		builder.WriteString(value)
		builder.WriteString("\n")
	}
	writeField("Package", pkg.Name)
	writeField("Version", pkg.Version)
	writeField("Architecture", architecture(pkg))
	writeField("Description", formatDescription(pkg.Metadata))
	writeField("Section", pkg.Metadata.Section)
	writeField("Maintainer", pkg.Metadata.Maintainer)
	writeField("Homepage", pkg.Metadata.Website)
	writeField("Installed-Size", fmt.Sprintf("%d", installedSize))

	if len(depends) > 0 {
		names := make([]string, 0, len(depends))
		for name := range depends {
			names = append(names, name)
		}
		sort.Strings(names)
		entries := make([]string, 0, len(names))
		for _, name := range names {
			version := depends[name]
			if version == "" {
				entries = append(entries, name)
				continue
			}
			if _, err := debversion.NewVersion(version); err != nil {
				return "", errbuilder.New().
					WithCode(errbuilder.CodeInvalidArgument).
					WithMsg(fmt.Sprintf("invalid dependency version %q for %s", version, name)).
					WithCause(err)
			}
			entries = append(entries, fmt.Sprintf("%s (>= %s)", name, version))
		}
		writeField("Depends", strings.Join(entries, ", "))
	}
	return builder.String(), nil
}

// formatDescription puts the summary on the first line and the long
// description on indented continuation lines.
func formatDescription(meta types.PackageMetadata) string {
	summary := strings.TrimSpace(meta.Summary)
	long := strings.TrimSpace(meta.Description)
	if long == "" {
		return summary
	}
	lines := strings.Split(long, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = " ."
			continue
		}
		lines[i] = " " + line
	}
	return summary + "\n" + strings.Join(lines, "\n")
}

var _ ports.PackagerPort = DebPackagerAdapter{}
