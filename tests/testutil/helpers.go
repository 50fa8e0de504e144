// Package testutil provides shared test helpers used across integration,
// e2e, and unit test packages.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// RepoRoot returns the absolute path to the repository root by walking
// up from the current working directory. It fails the test if the
// working directory cannot be determined.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// WritePkgsrc writes each named document into a fresh pkgsrc directory and
// returns its path.
func WritePkgsrc(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "pkgsrc")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// RunHbuild runs the hbuild command from the repository root with its
// working state redirected into a temporary directory. It returns the
// combined output and the command error.
func RunHbuild(t *testing.T, args ...string) (string, error) {
	t.Helper()
	work := t.TempDir()
	cmd := exec.Command("go", append([]string{"run", "./cmd/hbuild"}, args...)...)
	cmd.Dir = RepoRoot(t)
	cmd.Env = append(os.Environ(),
		"GO111MODULE=on",
		"HBUILD_LOGS_DIR="+filepath.Join(work, "logs"),
		"HBUILD_STATE_FILE="+filepath.Join(work, "state.json"),
		"HBUILD_BROKER_KIND=memory",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
