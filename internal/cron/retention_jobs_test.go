package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

type recordingDeleter struct {
	cutoffs []time.Time
	err     error
}

func (r *recordingDeleter) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.cutoffs = append(r.cutoffs, cutoff)
	return 3, r.err
}

func TestRetentionJobsUseTheirDefaultWindows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		build  func(*logger.Logger, Deleter, time.Duration) (Job, error)
		window time.Duration
	}{
		{"otp-cleanup", NewOTPCleanupJob, 7 * 24 * time.Hour},
		{"password-reset-cleanup", NewPasswordResetCleanupJob, 7 * 24 * time.Hour},
		{"outbox-retention", NewOutboxRetentionJob, 30 * 24 * time.Hour},
		{"notification-cleanup", NewNotificationCleanupJob, 90 * 24 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &recordingDeleter{}
			job, err := tc.build(logger.Nop(), store, 0)
			require.NoError(t, err)
			assert.Equal(t, tc.name, job.Name())
			job.(*retentionJob).now = func() time.Time { return now }

			require.NoError(t, job.Run(context.Background()))
			require.Len(t, store.cutoffs, 1)
			assert.True(t, store.cutoffs[0].Equal(now.Add(-tc.window)))
		})
	}
}

func TestRetentionJobHonoursConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	var got time.Time
	job, err := NewOutboxRetentionJob(logger.Nop(), DeleterFunc(func(_ context.Context, cutoff time.Time) (int64, error) {
		got = cutoff
		return 0, nil
	}), 48*time.Hour)
	require.NoError(t, err)
	job.(*retentionJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, got.Equal(now.Add(-48*time.Hour)))
}

func TestRetentionJobPropagatesError(t *testing.T) {
	job, err := NewOTPCleanupJob(logger.Nop(), &recordingDeleter{err: errors.New("boom")}, time.Hour)
	require.NoError(t, err)
	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "otp-cleanup")
}

func TestRetentionJobValidation(t *testing.T) {
	_, err := NewOTPCleanupJob(nil, &recordingDeleter{}, 0)
	assert.Error(t, err)
	_, err = NewNotificationCleanupJob(logger.Nop(), nil, 0)
	assert.Error(t, err)
}
