package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/renameio"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"hbuild/internal/ports"
	"hbuild/internal/types"
)

// StateFileAdapter keeps the build state in a JSON file. Every access
// holds a process mutex and an flock on a sibling lock file; every
// mutation re-reads the file and replaces it atomically.
type StateFileAdapter struct {
	Path string
	mu   sync.Mutex
}

func NewStateFileAdapter(path string) *StateFileAdapter {
	return &StateFileAdapter{Path: path}
}

func (a *StateFileAdapter) Snapshot(_ context.Context) (map[string]types.UnitState, error) {
	var states map[string]types.UnitState
	err := a.withLock(unix.LOCK_SH, func() error {
		var err error
		states, err = a.read()
		return err
	})
	return states, err
}

func (a *StateFileAdapter) Get(ctx context.Context, identity string) (types.UnitState, error) {
	states, err := a.Snapshot(ctx)
	if err != nil {
		return types.UnitStateNone, err
	}
	return states[identity], nil
}

func (a *StateFileAdapter) Advance(ctx context.Context, identity string, state types.UnitState) error {
	return a.update(ctx, identity, func(states map[string]types.UnitState) (bool, error) {
		current := states[identity]
		if current == state {
			return false, nil
		}
		if !state.Valid() || state != current.Next() {
			return false, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg(fmt.Sprintf("%s cannot move from %q to %q", identity, current, state))
		}
		states[identity] = state
		return true, nil
	})
}

func (a *StateFileAdapter) Regress(ctx context.Context, identity string) error {
	return a.update(ctx, identity, func(states map[string]types.UnitState) (bool, error) {
		current, ok := states[identity]
		if !ok {
			return false, nil
		}
		if previous := current.Previous(); previous != types.UnitStateNone {
			states[identity] = previous
		} else {
			delete(states, identity)
		}
		return true, nil
	})
}

func (a *StateFileAdapter) Reset(ctx context.Context, identity string) error {
	return a.update(ctx, identity, func(states map[string]types.UnitState) (bool, error) {
		if _, ok := states[identity]; !ok {
			return false, nil
		}
		delete(states, identity)
		return true, nil
	})
}

func (a *StateFileAdapter) update(ctx context.Context, identity string, mutate func(map[string]types.UnitState) (bool, error)) error {
	return a.withLock(unix.LOCK_EX, func() error {
		states, err := a.read()
		if err != nil {
			return err
		}
		changed, err := mutate(states)
		if err != nil || !changed {
			return err
		}
		if err := a.write(states); err != nil {
			return err
		}
		log.Ctx(ctx).Debug().Str("unit", identity).Str("state", string(states[identity])).Msg("state committed")
		return nil
	})
}

func (a *StateFileAdapter) withLock(how int, fn func() error) error {
	if a.Path == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("state file path is empty")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return stateIOError("failed to create state directory", err)
	}
	lock, err := os.OpenFile(a.Path+".flock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return stateIOError("failed to open state lock", err)
	}
	defer lock.Close()
	if err := unix.Flock(int(lock.Fd()), how); err != nil {
		return stateIOError("failed to lock state file", err)
	}
	defer func() { _ = unix.Flock(int(lock.Fd()), unix.LOCK_UN) }()
	return fn()
}

func (a *StateFileAdapter) read() (map[string]types.UnitState, error) {
	states := map[string]types.UnitState{}
	data, err := os.ReadFile(a.Path)
	if errors.Is(err, os.ErrNotExist) {
		return states, nil
	}
	if err != nil {
		return nil, stateIOError("failed to read state file", err)
	}
	if len(data) == 0 {
		return states, nil
	}
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("state file is not valid JSON").
			WithCause(err)
	}
	for identity, state := range states {
		if !state.Valid() {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("state file has unknown state %q for %s", state, identity))
		}
	}
	return states, nil
}

func (a *StateFileAdapter) write(states map[string]types.UnitState) error {
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return stateIOError("failed to encode state", err)
	}
	pending, err := renameio.TempFile(filepath.Dir(a.Path), a.Path)
	if err != nil {
		return stateIOError("failed to stage state file", err)
	}
	defer func() { _ = pending.Cleanup() }()
	if _, err := pending.Write(append(data, '\n')); err != nil {
		return stateIOError("failed to write state file", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return stateIOError("failed to replace state file", err)
	}
	return syncDir(filepath.Dir(a.Path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return stateIOError("failed to open state directory", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return stateIOError("failed to sync state directory", err)
	}
	return nil
}

func stateIOError(msg string, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(msg).
		WithCause(err)
}

var _ ports.StateStorePort = (*StateFileAdapter)(nil)
