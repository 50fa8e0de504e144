// Package shared provides small helpers used across packages.
package shared

import (
	"fmt"
	"strings"
)

// CommandError wraps a command execution error with its trimmed output
// for cleaner error messages.
func CommandError(output []byte, err error) error {
	return fmt.Errorf("%s: %w", strings.TrimSpace(string(output)), err)
}

// ObjectName folds s into the character set container engines accept for
// container and volume names, [a-zA-Z0-9_.-]. Every other rune becomes a
// dash. The second result reports whether anything was replaced.
func ObjectName(s string) (string, bool) {
	folded := false
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			return r
		}
		folded = true
		return '-'
	}, s)
	return name, folded
}
