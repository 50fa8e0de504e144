package app

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"hbuild/internal/core"
	"hbuild/internal/ports"
	"hbuild/internal/types"
)

// Submit asks the coordinator to build a selection.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) error {
	broker, err := s.broker(ctx)
	if err != nil {
		return err
	}
	body := core.BuildMessage(req.Selection).String()
	return broker.Publish(ctx, s.Config.Broker.Queues().Dispatch, body)
}

// Dispatch runs the coordinator: every build request on the dispatch
// queue is resolved against the current unit files and state, and the
// resulting order is handed to the runners.
func (s *Service) Dispatch(ctx context.Context, req DispatchRequest) error {
	broker, err := s.broker(ctx)
	if err != nil {
		return err
	}
	queues := s.Config.Broker.Queues()
	return consume(ctx, broker, queues.Dispatch, req.MaxMessages, func(body string) {
		if err := s.dispatchOne(ctx, broker, queues, body); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("message", body).Msg("build request failed")
		}
	})
}

func (s *Service) dispatchOne(ctx context.Context, broker ports.BrokerPort, queues Queues, body string) error {
	msg, err := core.ParseMessage(body)
	if err != nil {
		return err
	}
	if msg.Op != types.MessageOpBuild {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("coordinator does not handle %s messages", msg.Op))
	}
	selection := core.ParseIdentities(msg.Payload)
	p, err := s.resolvePlan(ctx, core.ResolveRequest{Selection: selection, Operation: types.OperationBuild, Reduce: true})
	if err != nil {
		return err
	}

	graphJSON, err := core.GraphJSON(p.graph, p.resolution)
	if err != nil {
		return err
	}
	result := types.Message{Op: types.MessageOpResultGraph, Payload: string(graphJSON)}
	if err := broker.Publish(ctx, queues.Events, result.String()); err != nil {
		return err
	}
	if len(p.resolution.Order) == 0 {
		log.Ctx(ctx).Info().Strs("selection", selection).Msg("selection already installed")
		return nil
	}
	if err := broker.Publish(ctx, queues.Runners, core.ExecuteMessage(p.resolution.Order, selection).String()); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Strs("order", p.resolution.Order).Msg("build order dispatched")
	return nil
}

// consume hands each delivery on queue to handle and acks it afterwards.
// It stops when the context ends, the channel closes or limit messages
// were handled. The subscription is cancelled on return so a prefetched
// delivery goes back to the queue.
func consume(ctx context.Context, broker ports.BrokerPort, queue string, limit int, handle func(body string)) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	deliveries, err := broker.Consume(subCtx, queue)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("queue", queue).Msg("waiting for messages")
	handled := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			handle(d.Body)
			if d.Ack != nil {
				if err := d.Ack(); err != nil {
					log.Ctx(ctx).Warn().Err(err).Msg("failed to ack message")
				}
			}
			handled++
			if limit > 0 && handled >= limit {
				return nil
			}
		}
	}
}
