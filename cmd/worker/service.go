package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger    *logger.Logger
	DB        pinger
	Redis     pinger
	PubSub    pinger
	BigQuery  pinger
	Consumers map[string]consumer
}

// Service runs every purchase event consumer until one of them fails or the
// context ends.
type Service struct {
	logg      *logger.Logger
	deps      []namedPinger
	consumers map[string]consumer
}

type namedPinger struct {
	name string
	p    pinger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for name, c := range params.Consumers {
		if c == nil {
			return nil, fmt.Errorf("consumer %s is nil", name)
		}
	}

	deps := []namedPinger{
		{name: "database", p: params.DB},
		{name: "redis", p: params.Redis},
		{name: "pubsub", p: params.PubSub},
	}
	// the audit consumer is optional, and so is its warehouse
	if params.BigQuery != nil {
		deps = append(deps, namedPinger{name: "bigquery", p: params.BigQuery})
	}

	return &Service{
		logg:      params.Logger,
		deps:      deps,
		consumers: params.Consumers,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := pingDependency(ctx, s.logg, dep.name, dep.p.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run starts the consumers. The first consumer to stop cancels the others.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	names := make([]string, 0, len(s.consumers))
	for name := range s.consumers {
		names = append(names, name)
	}
	sort.Strings(names)

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(names))
	for _, name := range names {
		c := s.consumers[name]
		go func(name string) {
			results <- result{name: name, err: c.Run(runCtx)}
		}(name)
		s.logg.Info(s.logg.WithField(ctx, "consumer", name), "worker.consumer_started")
	}

	first := <-results
	cancel()
	for range len(names) - 1 {
		<-results
	}

	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	if first.err != nil && !errors.Is(first.err, context.Canceled) {
		s.logg.Error(s.logg.WithField(ctx, "consumer", first.name), "consumer stopped unexpectedly", first.err)
		return fmt.Errorf("consumer %s: %w", first.name, first.err)
	}
	return fmt.Errorf("consumer %s stopped", first.name)
}
