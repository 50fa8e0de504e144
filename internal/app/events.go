package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"hbuild/internal/core"
	"hbuild/internal/ports"
	"hbuild/internal/types"
)

// eventLogSink forwards step output to the events queue as well as to the
// local sink, so the coordinator side can follow a runner's progress.
type eventLogSink struct {
	local  ports.LogSinkPort
	broker ports.BrokerPort
	queue  string
}

func (e eventLogSink) AppendLog(ctx context.Context, unit string, stage string, text string) error {
	if e.local != nil {
		if err := e.local.AppendLog(ctx, unit, stage, text); err != nil {
			return err
		}
	}
	body := core.LogMessage(unit, stage, text).String()
	if err := e.broker.Publish(ctx, e.queue, body); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("unit", unit).Msg("failed to publish log event")
	}
	return nil
}

func (e eventLogSink) Logs(ctx context.Context, unit string) ([]types.LogEntry, error) {
	if e.local == nil {
		return nil, nil
	}
	return e.local.Logs(ctx, unit)
}

func (e eventLogSink) RecordJob(ctx context.Context, job types.JobRecord) (int64, error) {
	if e.local == nil {
		return 0, nil
	}
	return e.local.RecordJob(ctx, job)
}

func (e eventLogSink) History(ctx context.Context, limit int) ([]types.JobRecord, error) {
	if e.local == nil {
		return nil, nil
	}
	return e.local.History(ctx, limit)
}

var _ ports.LogSinkPort = eventLogSink{}
