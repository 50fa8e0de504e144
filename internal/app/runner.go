package app

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"hbuild/internal/core"
	"hbuild/internal/ports"
	"hbuild/internal/types"
)

// Runner executes build orders from the runners queue. History gets one
// record per unit as it finishes, or one rejected record for a message
// that cannot run. A failed order is acked; it is not redelivered.
func (s *Service) Runner(ctx context.Context, req RunnerRequest) error {
	name := req.Name
	if name == "" {
		name, _ = os.Hostname()
	}
	broker, err := s.broker(ctx)
	if err != nil {
		return err
	}
	queues := s.Config.Broker.Queues()
	logger := log.Ctx(ctx).With().Str("runner", name).Logger()
	ctx = logger.WithContext(ctx)
	return consume(ctx, broker, queues.Runners, req.MaxMessages, func(body string) {
		s.runOne(ctx, broker, queues, name, body)
	})
}

func (s *Service) runOne(ctx context.Context, broker ports.BrokerPort, queues Queues, runner string, body string) {
	reject := func(units []string, err error) {
		log.Ctx(ctx).Error().Err(err).Str("message", body).Msg("dropping message")
		s.recordJob(ctx, types.JobRecord{
			Runner:    runner,
			Units:     units,
			Status:    types.JobStatusRejected,
			Message:   err.Error(),
			CreatedAt: s.now(),
		})
	}

	msg, err := core.ParseMessage(body)
	if err != nil {
		reject(nil, err)
		return
	}
	if msg.Op != types.MessageOpExecute {
		reject(nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("runner does not handle %s messages", msg.Op)))
		return
	}
	order, requested := core.ParseExecutePayload(msg.Payload)
	registry, err := s.loadRegistry()
	if err != nil {
		reject(order, err)
		return
	}
	for _, identity := range append(slices.Clone(order), requested...) {
		if _, err := registry.Lookup(identity); err != nil {
			reject(order, err)
			return
		}
	}
	selected := map[string]struct{}{}
	for _, identity := range requested {
		selected[identity] = struct{}{}
	}

	sink := eventLogSink{local: s.Logs, broker: broker, queue: queues.Events}
	done := func(identity string, err error) {
		job := types.JobRecord{Runner: runner, Units: []string{identity}, Status: types.JobStatusSucceeded, CreatedAt: s.now()}
		if err != nil {
			job.Status = types.JobStatusFailed
			job.Message = err.Error()
		}
		s.recordJob(ctx, job)
	}
	if err := s.execute(ctx, registry, order, selected, types.OperationBuild, sink, done); err != nil {
		log.Ctx(ctx).Error().Err(err).Strs("units", order).Msg("job failed")
		return
	}
	log.Ctx(ctx).Info().Strs("units", order).Msg("job succeeded")
}

func (s *Service) recordJob(ctx context.Context, job types.JobRecord) {
	if s.Logs == nil {
		return
	}
	if _, err := s.Logs.RecordJob(ctx, job); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to record job history")
	}
}
