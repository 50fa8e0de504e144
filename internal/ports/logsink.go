package ports

import (
	"context"

	"hbuild/internal/types"
)

type LogSinkPort interface {
	AppendLog(ctx context.Context, unit string, stage string, text string) error
	Logs(ctx context.Context, unit string) ([]types.LogEntry, error)
	RecordJob(ctx context.Context, job types.JobRecord) (int64, error)
	History(ctx context.Context, limit int) ([]types.JobRecord, error)
}
