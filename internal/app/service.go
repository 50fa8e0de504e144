package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"hbuild/internal/adapters"
	"hbuild/internal/ports"
	"hbuild/internal/types"
)

type Service struct {
	Config   Config
	Units    ports.UnitLoaderPort
	State    ports.StateStorePort
	Sandbox  ports.SandboxProviderPort
	Staging  ports.StagingPort
	Packager ports.PackagerPort
	Logs     ports.LogSinkPort
	Broker   ports.BrokerPort
	Clock    func() time.Time

	mu      sync.Mutex
	closers []io.Closer
}

// NewService wires the host adapters for cfg. The broker is connected on
// first use since only the distributed commands need it.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	cfg = cfg.withDefaults()
	sandbox, err := adapters.NewDockerSandboxProvider()
	if err != nil {
		return nil, err
	}
	svc := &Service{
		Config:   cfg,
		Units:    adapters.NewPkgsrcFileAdapter(),
		State:    adapters.NewStateFileAdapter(cfg.StateFile),
		Sandbox:  sandbox,
		Staging:  adapters.NewStagingAdapter(),
		Packager: adapters.NewDebPackagerAdapter(),
		Clock:    time.Now,
		closers:  []io.Closer{sandbox},
	}
	if cfg.LogDB != "" {
		if err := svc.Staging.EnsureDirs(cfg.Layout.LogsDir); err != nil {
			_ = svc.Close()
			return nil, err
		}
		sink, err := adapters.NewSQLiteLogSink(ctx, cfg.LogDB)
		if err != nil {
			_ = svc.Close()
			return nil, err
		}
		svc.Logs = sink
		svc.closers = append(svc.closers, sink)
	}
	return svc, nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i].Close())
	}
	return errors.Join(errs...)
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s *Service) broker(ctx context.Context) (ports.BrokerPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Broker != nil {
		return s.Broker, nil
	}
	broker, err := OpenBroker(ctx, s.Config.Broker)
	if err != nil {
		return nil, err
	}
	s.Broker = broker
	s.closers = append(s.closers, broker)
	return broker, nil
}

// OpenBroker connects the backend named by cfg.Kind.
func OpenBroker(ctx context.Context, cfg BrokerConfig) (ports.BrokerPort, error) {
	switch cfg.Kind {
	case types.BrokerKindAMQP, "":
		if cfg.URL == "" {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("broker.url is required for the amqp broker")
		}
		return adapters.NewAMQPBroker(cfg.URL)
	case types.BrokerKindSQS:
		return adapters.NewSQSBroker(ctx, cfg.URL)
	case types.BrokerKindMemory:
		return adapters.NewMemoryBroker(), nil
	}
	return nil, errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("unknown broker kind " + string(cfg.Kind))
}
