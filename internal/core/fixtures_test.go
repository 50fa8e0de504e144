package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"hbuild/internal/ports"
	"hbuild/internal/types"
)

// sampleFiles describes source foo with tool foo-tool (one stage) and
// package foo, plus source bar with package bar depending on foo.
func sampleFiles() []types.PkgsrcFile {
	return []types.PkgsrcFile{
		{
			Path: "foo.yaml",
			Source: &types.Source{
				Name:    "foo",
				Version: "1.0.0",
				Git:     "https://example.com/foo.git",
				Tag:     "v1.0.0",
			},
			Tools: []types.Tool{{
				Name:       "foo-tool",
				Version:    "1.0.0",
				FromSource: "foo",
				Compile:    []types.Step{{Args: types.StepArgs{"make"}}},
				Install:    []types.Step{{Args: types.StepArgs{"make", "install"}}},
				Stages: []types.Stage{{
					Name:    "bootstrap",
					Compile: []types.Step{{Args: types.StepArgs{"make", "bootstrap"}}},
				}},
			}},
			Packages: []types.Package{{
				Name:       "foo",
				Version:    "1.0.0",
				FromSource: "foo",
				Requirements: types.Requirements{
					ToolsRequired: []types.ToolRequirement{{Tool: "foo-tool"}},
				},
				Build: []types.Step{{Args: types.StepArgs{"make", "-j@PARALLELISM@"}}},
			}},
		},
		{
			Path: "bar.yaml",
			Source: &types.Source{
				Name:    "bar",
				Version: "2.1",
				URL:     "https://example.com/bar-2.1.tar.gz",
				Format:  "tar.gz",
			},
			Packages: []types.Package{{
				Name:       "bar",
				Version:    "2.1",
				FromSource: "bar",
				Requirements: types.Requirements{
					PkgsRequired: []string{"foo"},
				},
			}},
		},
	}
}

func linkedRegistry(t *testing.T, files []types.PkgsrcFile) *Registry {
	t.Helper()
	reg := NewRegistry(files)
	require.NoError(t, reg.Link())
	return reg
}

func sampleGraph(t *testing.T) DependencyGraph {
	t.Helper()
	dg, err := NewGraphBuilder(linkedRegistry(t, sampleFiles())).Build(t.Context())
	require.NoError(t, err)
	return dg
}

// requireBefore checks that dep appears before dependent in order.
func requireBefore(t *testing.T, order []string, dep string, dependent string) {
	t.Helper()
	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	di, ok := pos[dep]
	require.True(t, ok, "%s missing from %v", dep, order)
	ui, ok := pos[dependent]
	require.True(t, ok, "%s missing from %v", dependent, order)
	require.Less(t, di, ui, "%s must come before %s in %v", dep, dependent, order)
}

type fakeProvider struct {
	mu        sync.Mutex
	created   []types.SandboxSpec
	sandboxes []*fakeSandbox
	createErr error
	exec      func(req types.ExecRequest) (types.ExecResult, error)
}

func (p *fakeProvider) Create(_ context.Context, spec types.SandboxSpec) (ports.SandboxPort, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, spec)
	sb := &fakeSandbox{id: fmt.Sprintf("c%d", len(p.created)), exec: p.exec}
	p.sandboxes = append(p.sandboxes, sb)
	return sb, nil
}

type fakeSandbox struct {
	id      string
	exec    func(req types.ExecRequest) (types.ExecResult, error)
	mu      sync.Mutex
	execs   []types.ExecRequest
	kills   int
	removes int
}

func (s *fakeSandbox) ID() string { return s.id }

func (s *fakeSandbox) Exec(_ context.Context, req types.ExecRequest) (types.ExecResult, error) {
	s.mu.Lock()
	s.execs = append(s.execs, req)
	s.mu.Unlock()
	if s.exec != nil {
		return s.exec(req)
	}
	return types.ExecResult{}, nil
}

func (s *fakeSandbox) Kill(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kills++
	return nil
}

func (s *fakeSandbox) Remove(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes++
	return nil
}

type recordingLogs struct {
	mu      sync.Mutex
	entries []types.LogEntry
}

func (l *recordingLogs) AppendLog(_ context.Context, unit string, stage string, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, types.LogEntry{Unit: unit, Stage: stage, Text: text})
	return nil
}

func (l *recordingLogs) Logs(_ context.Context, unit string) ([]types.LogEntry, error) {
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

func (l *recordingLogs) RecordJob(context.Context, types.JobRecord) (int64, error) {
	return 0, nil
}

func (l *recordingLogs) History(context.Context, int) ([]types.JobRecord, error) {
	return nil, nil
}
