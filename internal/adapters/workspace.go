package adapters

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// findPkgsrcFiles returns every YAML file below root in lexical order.
func findPkgsrcFiles(root string) ([]string, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("pkgsrc directory is empty")
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && shouldSkipPkgsrcDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to scan pkgsrc directory").
			WithCause(err)
	}
	sort.Strings(paths)
	return paths, nil
}

func shouldSkipPkgsrcDir(name string) bool {
	return strings.HasPrefix(name, ".")
}
