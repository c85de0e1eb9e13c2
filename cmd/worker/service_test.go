package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type blockingConsumer struct{ stopped chan struct{} }

func (b *blockingConsumer) Run(ctx context.Context) error {
	<-ctx.Done()
	close(b.stopped)
	return ctx.Err()
}

type failingConsumer struct{ err error }

func (f failingConsumer) Run(context.Context) error { return f.err }

func testParams(consumers map[string]consumer) ServiceParams {
	return ServiceParams{
		Logger:    logger.Nop(),
		DB:        fakePinger{},
		Redis:     fakePinger{},
		PubSub:    fakePinger{},
		Consumers: consumers,
	}
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)

	params := testParams(nil)
	_, err = NewService(params)
	assert.Error(t, err)

	params = testParams(map[string]consumer{"notifications": nil})
	_, err = NewService(params)
	assert.Error(t, err)
}

func TestRunStopsSiblingsWhenOneConsumerFails(t *testing.T) {
	sibling := &blockingConsumer{stopped: make(chan struct{})}
	svc, err := NewService(testParams(map[string]consumer{
		"audit":         failingConsumer{err: errors.New("subscription gone")},
		"notifications": sibling,
	}))
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit")

	select {
	case <-sibling.stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling consumer was not canceled")
	}
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	svc, err := NewService(testParams(map[string]consumer{
		"notifications": &blockingConsumer{stopped: make(chan struct{})},
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
}

func TestRunFailsFastOnUnreadyDependency(t *testing.T) {
	params := testParams(map[string]consumer{"notifications": failingConsumer{}})
	params.BigQuery = fakePinger{err: errors.New("dataset missing")}
	svc, err := NewService(params)
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bigquery ping failed")
}
