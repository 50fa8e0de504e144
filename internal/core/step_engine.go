package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"hbuild/internal/ports"
	"hbuild/internal/types"
)

// ExecError reports a step that failed to run or exited nonzero. A
// sandbox failure has ExitCode -1 and a non-nil Err.
type ExecError struct {
	Unit     string
	Stage    string
	Phase    types.StepPhase
	Step     int
	ExitCode int
	Output   string
	Err      error
}

func (e *ExecError) Error() string {
	where := e.Unit
	if e.Stage != "" {
		where = types.StageIdentity(e.Unit, e.Stage)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s step %d: %v", where, e.Phase, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %s step %d exited with code %d", where, e.Phase, e.Step, e.ExitCode)
}

func (e *ExecError) Unwrap() error { return e.Err }

// StepRunner executes one prepared step. The sandbox lifecycle implements
// it.
type StepRunner interface {
	Exec(ctx context.Context, req types.ExecRequest) (types.ExecResult, error)
}

// StepTarget names what a step list belongs to and where it runs.
type StepTarget struct {
	Unit         string
	Stage        string
	Workdir      string
	Placeholders Placeholders
}

type StepEngine struct {
	DefaultPath string
	Logs        ports.LogSinkPort
}

func NewStepEngine(defaultPath string, logs ports.LogSinkPort) StepEngine {
	return StepEngine{DefaultPath: defaultPath, Logs: logs}
}

// Run executes steps in order and stops at the first failure.
func (e StepEngine) Run(ctx context.Context, runner StepRunner, target StepTarget, phase types.StepPhase, steps []types.Step) error {
	logger := log.Ctx(ctx).With().
		Str("unit", target.Unit).
		Str("stage", target.Stage).
		Str("phase", string(phase)).
		Logger()
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return &ExecError{Unit: target.Unit, Stage: target.Stage, Phase: phase, Step: i, ExitCode: -1, Err: err}
		}
		req := PrepareStep(step, target.Placeholders, target.Workdir, e.DefaultPath)
		logger.Debug().Int("step", i).Strs("args", req.Args).Str("workdir", req.Workdir).Msg("running step")

		result, err := runner.Exec(ctx, req)
		e.record(ctx, target, result.Output)
		if err != nil {
			return &ExecError{Unit: target.Unit, Stage: target.Stage, Phase: phase, Step: i, ExitCode: -1, Output: string(result.Output), Err: err}
		}
		if result.ExitCode != 0 {
			logger.Error().Int("step", i).Int("exit_code", result.ExitCode).Msg("step failed")
			return &ExecError{Unit: target.Unit, Stage: target.Stage, Phase: phase, Step: i, ExitCode: result.ExitCode, Output: string(result.Output)}
		}
	}
	return nil
}

func (e StepEngine) record(ctx context.Context, target StepTarget, output []byte) {
	if e.Logs == nil || len(output) == 0 {
		return
	}
	if err := e.Logs.AppendLog(ctx, target.Unit, target.Stage, string(output)); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("unit", target.Unit).Msg("failed to record step output")
	}
}
