package app

import (
	"io"
	"path/filepath"

	"hbuild/internal/types"
)

type Config struct {
	PkgsrcDir string
	Layout    types.Layout
	StateFile string
	LogDB     string
	Sandbox   SandboxConfig
	Broker    BrokerConfig
}

type SandboxConfig struct {
	Image  string
	UserNS string
	// Path is appended to every step's PATH inside the sandbox.
	Path string
	// NamePrefix keeps sandboxes of concurrent runners apart.
	NamePrefix string
}

type BrokerConfig struct {
	Kind        types.BrokerKind
	URL         string
	QueuePrefix string
}

// Queues are the broker queue names for one deployment.
type Queues struct {
	Dispatch string
	Runners  string
	Events   string
}

func (b BrokerConfig) Queues() Queues {
	return Queues{
		Dispatch: b.QueuePrefix + "dispatch",
		Runners:  b.QueuePrefix + "runners",
		Events:   b.QueuePrefix + "events",
	}
}

const (
	DefaultStateFile    = "hbuild.lock"
	DefaultSandboxImage = "hbuild:latest"
	defaultLogDBName    = "hbuild.db"
)

func (c Config) withDefaults() Config {
	if c.StateFile == "" {
		c.StateFile = DefaultStateFile
	}
	if c.Sandbox.Image == "" {
		c.Sandbox.Image = DefaultSandboxImage
	}
	c.Layout = absLayout(c.Layout)
	if c.LogDB == "" && c.Layout.LogsDir != "" {
		c.LogDB = filepath.Join(c.Layout.LogsDir, defaultLogDBName)
	}
	return c
}

// absLayout makes every host directory absolute; bind mounts and overlay
// options reject relative paths.
func absLayout(l types.Layout) types.Layout {
	for _, dir := range []*string{
		&l.LogsDir, &l.SourcesDir, &l.ToolsDir, &l.PackagesDir, &l.BuildsDir,
		&l.WorksDir, &l.PatchesDir, &l.DebsDir, &l.SystemRoot, &l.Prefix,
	} {
		if *dir == "" {
			continue
		}
		if abs, err := filepath.Abs(*dir); err == nil {
			*dir = abs
		}
	}
	return l
}

type OperationRequest struct {
	Selection []string
}

type OperationResult struct {
	Order   []string
	Skipped []string
}

type PackageResult struct {
	OperationResult
	Debs []string
}

type ShowRequest struct {
	Selection []string
	DOT       bool
	Out       io.Writer
}

type SubmitRequest struct {
	Selection []string
}

type DispatchRequest struct {
	// MaxMessages stops the coordinator after that many messages; zero
	// runs until the context ends.
	MaxMessages int
}

type RunnerRequest struct {
	Name        string
	MaxMessages int
}

type LogsRequest struct {
	Identity string
}

type HistoryRequest struct {
	Limit int
}
