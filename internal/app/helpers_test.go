package app

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"hbuild/internal/adapters"
	"hbuild/internal/ports"
	"hbuild/internal/types"
)

const workRoot = "/w"

func testLayout() types.Layout {
	return types.Layout{
		LogsDir:     filepath.Join(workRoot, "logs"),
		SourcesDir:  filepath.Join(workRoot, "sources"),
		ToolsDir:    filepath.Join(workRoot, "tools"),
		PackagesDir: filepath.Join(workRoot, "packages"),
		BuildsDir:   filepath.Join(workRoot, "builds"),
		WorksDir:    filepath.Join(workRoot, "work"),
		PatchesDir:  filepath.Join(workRoot, "patches"),
		DebsDir:     filepath.Join(workRoot, "debs"),
		SystemRoot:  filepath.Join(workRoot, "system"),
		Prefix:      filepath.Join(workRoot, "system", "usr", "local"),
		Target:      "x86_64-linux-gnu",
	}
}

func installStep() types.Step {
	return types.Step{Args: types.StepArgs{"make", "install", "DESTDIR=@THIS_COLLECT_DIR@"}}
}

// testFiles describes source foo providing tool foo-tool and package foo,
// and source bar providing package bar, which requires foo.
func testFiles() []types.PkgsrcFile {
	return []types.PkgsrcFile{
		{
			Source: &types.Source{Name: "foo", Version: "1.0.0", Git: "https://example.com/foo.git", Tag: "v1.0.0"},
			Tools: []types.Tool{{
				Name:       "foo-tool",
				Version:    "1.0.0",
				FromSource: "foo",
				Configure:  []types.Step{{Args: types.StepArgs{"@THIS_SOURCE_DIR@/configure", "--prefix=@PREFIX@"}}},
				Compile:    []types.Step{{Args: types.StepArgs{"make", "-j@PARALLELISM@"}}},
				Install:    []types.Step{installStep()},
			}},
			Packages: []types.Package{{
				Name:         "foo",
				Version:      "1.0.0",
				FromSource:   "foo",
				Requirements: types.Requirements{ToolsRequired: []types.ToolRequirement{{Tool: "foo-tool"}}},
				Configure:    []types.Step{{Args: types.StepArgs{"cmake", "@THIS_SOURCE_DIR@"}}},
				Build:        []types.Step{{Args: types.StepArgs{"make"}}, installStep()},
			}},
		},
		{
			Source: &types.Source{Name: "bar", Version: "2.1", URL: "https://example.com/bar-2.1.tar.gz", Format: "tar.gz"},
			Packages: []types.Package{{
				Name:         "bar",
				Version:      "2.1",
				FromSource:   "bar",
				Requirements: types.Requirements{PkgsRequired: []string{"foo"}},
				Build:        []types.Step{installStep()},
			}},
		},
	}
}

type staticUnits struct {
	files []types.PkgsrcFile
}

func (u staticUnits) LoadDir(string) ([]types.PkgsrcFile, error) {
	return u.files, nil
}

// fakeProvider hands out sandboxes that record every step. A step whose
// arguments contain "install" drops a file named after the sandbox into
// the host directory mounted as the collect dir.
type fakeProvider struct {
	fs   afero.Fs
	fail func(name string, req types.ExecRequest) bool

	mu        sync.Mutex
	sandboxes []*fakeSandbox
}

func (p *fakeProvider) Create(_ context.Context, spec types.SandboxSpec) (ports.SandboxPort, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sb := &fakeSandbox{provider: p, spec: spec}
	p.sandboxes = append(p.sandboxes, sb)
	return sb, nil
}

func (p *fakeProvider) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for _, sb := range p.sandboxes {
		names = append(names, sb.spec.Name)
	}
	return names
}

func (p *fakeProvider) all() []*fakeSandbox {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeSandbox(nil), p.sandboxes...)
}

type fakeSandbox struct {
	provider *fakeProvider
	spec     types.SandboxSpec

	mu      sync.Mutex
	execs   []types.ExecRequest
	removes int
}

func (s *fakeSandbox) ID() string { return "id-" + s.spec.Name }

func (s *fakeSandbox) Exec(_ context.Context, req types.ExecRequest) (types.ExecResult, error) {
	s.mu.Lock()
	s.execs = append(s.execs, req)
	s.mu.Unlock()
	output := []byte(strings.Join(req.Args, " ") + "\n")
	if s.provider.fail != nil && s.provider.fail(s.spec.Name, req) {
		return types.ExecResult{ExitCode: 2, Output: output}, nil
	}
	if slices.Contains(req.Args, "install") {
		if err := s.install(); err != nil {
			return types.ExecResult{}, err
		}
	}
	return types.ExecResult{Output: output}, nil
}

func (s *fakeSandbox) install() error {
	for _, m := range s.spec.Mounts {
		if m.Target != types.SandboxCollectDir {
			continue
		}
		name := strings.TrimPrefix(s.spec.Name, "hbuild-")
		path := filepath.Join(m.Source, "usr", "lib", name+".so")
		if strings.HasSuffix(name, "-tool") {
			path = filepath.Join(m.Source, "bin", name)
		}
		if err := s.provider.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return afero.WriteFile(s.provider.fs, path, []byte(name), 0o644)
	}
	return fmt.Errorf("sandbox %s has no collect mount", s.spec.Name)
}

func (s *fakeSandbox) Kill(context.Context) error { return nil }

func (s *fakeSandbox) Remove(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes++
	return nil
}

type fakePackager struct {
	mu       sync.Mutex
	requests []types.DebRequest
}

func (p *fakePackager) BuildDeb(_ context.Context, req types.DebRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return filepath.Join(req.OutputDir, adapters.DebFileName(req.Package)), nil
}

type memoryLogs struct {
	mu      sync.Mutex
	entries []types.LogEntry
	jobs    []types.JobRecord
}

func (l *memoryLogs) AppendLog(_ context.Context, unit string, stage string, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, types.LogEntry{ID: int64(len(l.entries) + 1), Unit: unit, Stage: stage, Text: text})
	return nil
}

func (l *memoryLogs) Logs(_ context.Context, unit string) ([]types.LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.LogEntry
	for _, entry := range l.entries {
		if entry.Unit == unit {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (l *memoryLogs) RecordJob(_ context.Context, job types.JobRecord) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	job.ID = int64(len(l.jobs) + 1)
	l.jobs = append(l.jobs, job)
	return job.ID, nil
}

func (l *memoryLogs) History(_ context.Context, limit int) ([]types.JobRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := slices.Clone(l.jobs)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type testEnv struct {
	svc      *Service
	fs       afero.Fs
	provider *fakeProvider
	packager *fakePackager
	logs     *memoryLogs
	staging  adapters.StagingAdapter
}

func newTestEnv(t *testing.T, files []types.PkgsrcFile) *testEnv {
	t.Helper()
	fs := afero.NewMemMapFs()
	env := &testEnv{
		fs:       fs,
		provider: &fakeProvider{fs: fs},
		packager: &fakePackager{},
		logs:     &memoryLogs{},
		staging:  adapters.NewStagingAdapterWithFs(fs),
	}
	env.svc = &Service{
		Config: Config{
			PkgsrcDir: "pkgsrc",
			Layout:    testLayout(),
			Sandbox:   SandboxConfig{Image: DefaultSandboxImage, NamePrefix: "hbuild"},
			Broker:    BrokerConfig{Kind: types.BrokerKindMemory, QueuePrefix: "test-"},
		},
		Units:    staticUnits{files: files},
		State:    adapters.NewStateFileAdapter(filepath.Join(t.TempDir(), DefaultStateFile)),
		Sandbox:  env.provider,
		Staging:  env.staging,
		Packager: env.packager,
		Logs:     env.logs,
	}
	return env
}

func (e *testEnv) states(t *testing.T) map[string]types.UnitState {
	t.Helper()
	states, err := e.svc.State.Snapshot(t.Context())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return states
}
