package app

import (
	"context"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"hbuild/internal/core"
	"hbuild/internal/types"
)

func (s *Service) logSink() error {
	if s.Logs == nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("log database is not configured")
	}
	return nil
}

// UnitLogs returns recorded step output. A stage identity narrows the
// owner's output to that stage.
func (s *Service) UnitLogs(ctx context.Context, req LogsRequest) ([]types.LogEntry, error) {
	if err := s.logSink(); err != nil {
		return nil, err
	}
	id, err := core.ParseIdentity(req.Identity)
	if err != nil {
		return nil, err
	}
	if id.Kind != types.UnitKindStage {
		return s.Logs.Logs(ctx, id.String())
	}
	entries, err := s.Logs.Logs(ctx, id.Name)
	if err != nil {
		return nil, err
	}
	var out []types.LogEntry
	for _, entry := range entries {
		if entry.Stage == id.Stage {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Service) History(ctx context.Context, req HistoryRequest) ([]types.JobRecord, error) {
	if err := s.logSink(); err != nil {
		return nil, err
	}
	return s.Logs.History(ctx, req.Limit)
}
