package adapters

import (
	"fmt"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	debversion "github.com/knqyf263/go-deb-version"
	"gopkg.in/yaml.v3"

	"hbuild/internal/ports"
	"hbuild/internal/types"
)

// PkgsrcFileAdapter loads unit description files. Each file may carry a
// source, a list of tools and a list of packages.
type PkgsrcFileAdapter struct{}

func NewPkgsrcFileAdapter() PkgsrcFileAdapter {
	return PkgsrcFileAdapter{}
}

func (a PkgsrcFileAdapter) LoadDir(dir string) ([]types.PkgsrcFile, error) {
	paths, err := findPkgsrcFiles(dir)
	if err != nil {
		return nil, err
	}
	files := make([]types.PkgsrcFile, 0, len(paths))
	for _, path := range paths {
		file, err := a.LoadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func (a PkgsrcFileAdapter) LoadFile(path string) (types.PkgsrcFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.PkgsrcFile{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("pkgsrc file not found").
			WithCause(err)
	}
	file, err := ParsePkgsrc(data)
	if err != nil {
		return types.PkgsrcFile{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid pkgsrc file %s", path)).
			WithCause(err)
	}
	file.Path = path
	return file, nil
}

// ParsePkgsrc decodes one file and checks the keys each unit kind needs.
func ParsePkgsrc(data []byte) (types.PkgsrcFile, error) {
	var file types.PkgsrcFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return types.PkgsrcFile{}, err
	}
	if file.Source != nil {
		if err := validateSource(file.Source); err != nil {
			return types.PkgsrcFile{}, err
		}
	}
	for i := range file.Tools {
		tool := &file.Tools[i]
		if err := requireFields("tool", tool.Name, map[string]string{
			"name": tool.Name, "version": tool.Version, "from_source": tool.FromSource,
		}); err != nil {
			return types.PkgsrcFile{}, err
		}
		if err := validateStages(tool.Name, tool.Stages); err != nil {
			return types.PkgsrcFile{}, err
		}
	}
	for i := range file.Packages {
		pkg := &file.Packages[i]
		if err := requireFields("package", pkg.Name, map[string]string{
			"name": pkg.Name, "version": pkg.Version, "from_source": pkg.FromSource,
		}); err != nil {
			return types.PkgsrcFile{}, err
		}
		if _, err := debversion.NewVersion(pkg.Version); err != nil {
			return types.PkgsrcFile{}, fmt.Errorf("package %s: version %q is not a valid Debian version: %w", pkg.Name, pkg.Version, err)
		}
		if err := validateStages(pkg.Name, pkg.Stages); err != nil {
			return types.PkgsrcFile{}, err
		}
	}
	return file, nil
}

func validateSource(src *types.Source) error {
	if err := requireFields("source", src.Name, map[string]string{
		"name": src.Name, "version": src.Version,
	}); err != nil {
		return err
	}
	switch {
	case src.Git != "" && src.URL != "":
		return fmt.Errorf("source %s: url and git are mutually exclusive", src.Name)
	case src.Git != "":
		if src.Branch == "" && src.Commit == "" && src.Tag == "" {
			return fmt.Errorf("source %s: git sources need a branch, commit or tag", src.Name)
		}
	case src.URL != "":
		if src.Format == "" {
			return fmt.Errorf("source %s: url sources need a format", src.Name)
		}
	default:
		return fmt.Errorf("source %s: either url or git is required", src.Name)
	}
	return nil
}

// Brackets delimit stage identities; the rest separate fields of broker
// messages.
const reservedNameChars = "[],:;"

func validateStages(owner string, stages []types.Stage) error {
	for _, stage := range stages {
		if strings.TrimSpace(stage.Name) == "" {
			return fmt.Errorf("%s: stage name is required", owner)
		}
		if strings.ContainsAny(stage.Name, reservedNameChars) {
			return fmt.Errorf("%s: stage name %q must not contain any of %q", owner, stage.Name, reservedNameChars)
		}
	}
	return nil
}

func requireFields(kind string, name string, fields map[string]string) error {
	for _, key := range []string{"name", "version", "from_source"} {
		value, ok := fields[key]
		if ok && strings.TrimSpace(value) == "" {
			if name == "" {
				return fmt.Errorf("%s: %s is required", kind, key)
			}
			return fmt.Errorf("%s %s: %s is required", kind, name, key)
		}
	}
	if strings.ContainsAny(name, reservedNameChars) {
		return fmt.Errorf("%s %q: name must not contain any of %q", kind, name, reservedNameChars)
	}
	return nil
}

var _ ports.UnitLoaderPort = PkgsrcFileAdapter{}
