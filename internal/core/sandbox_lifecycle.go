package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/felixgeelhaar/statekit"
	"github.com/rs/zerolog/log"

	"hbuild/internal/ports"
	"hbuild/internal/shared"
	"hbuild/internal/types"
)

type SandboxState string

const (
	stateAbsent  = "absent"
	stateCreated = "created"
	stateTidied  = "tidied"
)

const (
	SandboxAbsent  SandboxState = stateAbsent
	SandboxCreated SandboxState = stateCreated
	SandboxTidied  SandboxState = stateTidied
)

// Sandbox lifecycle events.
const (
	EventSandboxCreated = "CREATED"
	EventSandboxTidied  = "TIDIED"
)

type sandboxContext struct {
	Name string
}

// Sandbox is the lifecycle of one unit's execution environment. The
// environment is created on the first Exec and torn down by Tidy, which
// acts once no matter how often it is called.
type Sandbox struct {
	spec     types.SandboxSpec
	provider ports.SandboxProviderPort

	mu     sync.Mutex
	live   ports.SandboxPort
	interp *statekit.Interpreter[sandboxContext]
}

func NewSandbox(provider ports.SandboxProviderPort, spec types.SandboxSpec) (*Sandbox, error) {
	machine, err := statekit.NewMachine[sandboxContext]("sandbox").
		WithInitial(stateAbsent).
		WithContext(sandboxContext{Name: spec.Name}).
		State(stateAbsent).
		On(EventSandboxCreated).Target(stateCreated).
		On(EventSandboxTidied).Target(stateTidied).Done().
		State(stateCreated).
		On(EventSandboxTidied).Target(stateTidied).Done().
		State(stateTidied).Done().
		Build()
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to build sandbox state machine").
			WithCause(err)
	}
	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return &Sandbox{spec: spec, provider: provider, interp: interp}, nil
}

func (s *Sandbox) Name() string { return s.spec.Name }

func (s *Sandbox) State() SandboxState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

func (s *Sandbox) state() SandboxState {
	return SandboxState(s.interp.State().Value)
}

// Exec runs req in the sandbox, creating it first if needed.
func (s *Sandbox) Exec(ctx context.Context, req types.ExecRequest) (types.ExecResult, error) {
	live, err := s.ensure(ctx)
	if err != nil {
		return types.ExecResult{}, err
	}
	return live.Exec(ctx, req)
}

func (s *Sandbox) ensure(ctx context.Context) (ports.SandboxPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state() {
	case SandboxCreated:
		return s.live, nil
	case SandboxTidied:
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("sandbox %s already tidied", s.spec.Name))
	}
	live, err := s.provider.Create(ctx, s.spec)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to create sandbox %s", s.spec.Name)).
			WithCause(err)
	}
	s.live = live
	s.interp.Send(statekit.Event{Type: EventSandboxCreated})
	log.Ctx(ctx).Debug().Str("sandbox", s.spec.Name).Str("id", live.ID()).Msg("sandbox created")
	return live, nil
}

// Kill hard-stops the sandbox if it is live. It does not tidy.
func (s *Sandbox) Kill(ctx context.Context) error {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	if live == nil {
		return nil
	}
	return live.Kill(ctx)
}

// Tidy kills and removes a created sandbox. A sandbox that was never
// created is marked tidied without touching the provider.
func (s *Sandbox) Tidy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state() {
	case SandboxTidied:
		return nil
	case SandboxAbsent:
		s.interp.Send(statekit.Event{Type: EventSandboxTidied})
		return nil
	}
	err := errors.Join(s.live.Kill(ctx), s.live.Remove(ctx))
	s.interp.Send(statekit.Event{Type: EventSandboxTidied})
	s.live = nil
	log.Ctx(ctx).Debug().Str("sandbox", s.spec.Name).Msg("sandbox tidied")
	return err
}

// SandboxSet tracks every sandbox opened during one operation so they can
// all be tidied afterwards.
type SandboxSet struct {
	Provider ports.SandboxProviderPort
	Image    string
	UserNS   string
	Prefix   string

	mu     sync.Mutex
	byName map[string]*Sandbox
	order  []*Sandbox
}

func NewSandboxSet(provider ports.SandboxProviderPort, image string, userNS string, prefix string) *SandboxSet {
	return &SandboxSet{
		Provider: provider,
		Image:    image,
		UserNS:   userNS,
		Prefix:   prefix,
		byName:   map[string]*Sandbox{},
	}
}

// Open returns the sandbox for an owner identity, registering it on first
// use. Nothing is created until the sandbox runs a step.
func (s *SandboxSet) Open(identity string, mounts []types.Mount) (*Sandbox, error) {
	name := SandboxName(s.Prefix, identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	if sb, ok := s.byName[name]; ok && sb.State() != SandboxTidied {
		return sb, nil
	}
	sb, err := NewSandbox(s.Provider, types.SandboxSpec{
		Name:   name,
		Image:  s.Image,
		UserNS: s.UserNS,
		Mounts: mounts,
	})
	if err != nil {
		return nil, err
	}
	s.byName[name] = sb
	s.order = append(s.order, sb)
	return sb, nil
}

// TidyAll tidies every registered sandbox and reports all failures.
func (s *SandboxSet) TidyAll(ctx context.Context) error {
	s.mu.Lock()
	sandboxes := append([]*Sandbox(nil), s.order...)
	s.mu.Unlock()
	var errs []error
	for _, sb := range sandboxes {
		if err := sb.Tidy(ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("sandbox", sb.Name()).Msg("sandbox tidy failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// KillAll hard-stops every live sandbox.
func (s *SandboxSet) KillAll(ctx context.Context) error {
	s.mu.Lock()
	sandboxes := append([]*Sandbox(nil), s.order...)
	s.mu.Unlock()
	var errs []error
	for _, sb := range sandboxes {
		errs = append(errs, sb.Kill(ctx))
	}
	return errors.Join(errs...)
}

// SandboxName turns an identity into a container-safe name. Identities
// that had to be folded get a short hash of the raw identity appended, so
// source[foo] and a unit named source-foo never share a container.
func SandboxName(prefix string, identity string) string {
	if prefix == "" {
		prefix = "hbuild"
	}
	prefix, _ = shared.ObjectName(prefix)
	name, folded := shared.ObjectName(strings.TrimSuffix(identity, "]"))
	if folded {
		sum := sha256.Sum256([]byte(identity))
		name += "-" + hex.EncodeToString(sum[:4])
	}
	return prefix + "-" + name
}
