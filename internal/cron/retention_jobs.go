package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

const (
	defaultOTPRetention          = 7 * 24 * time.Hour
	defaultOutboxRetention       = 30 * 24 * time.Hour
	defaultNotificationRetention = 90 * 24 * time.Hour
)

// Deleter removes rows older than cutoff and reports how many went.
type Deleter interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeleterFunc adapts a function to Deleter.
type DeleterFunc func(ctx context.Context, cutoff time.Time) (int64, error)

func (f DeleterFunc) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return f(ctx, cutoff)
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	store     Deleter
	retention time.Duration
	now       func() time.Time
}

func newRetentionJob(name string, logg *logger.Logger, store Deleter, retention, fallback time.Duration) (*retentionJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if store == nil {
		return nil, fmt.Errorf("%s store required", name)
	}
	if retention <= 0 {
		retention = fallback
	}
	return &retentionJob{name: name, logg: logg, store: store, retention: retention, now: time.Now}, nil
}

// NewOTPCleanupJob drops one-time-code challenges that expired more than retention ago.
func NewOTPCleanupJob(logg *logger.Logger, store Deleter, retention time.Duration) (Job, error) {
	return newRetentionJob("otp-cleanup", logg, store, retention, defaultOTPRetention)
}

// NewPasswordResetCleanupJob drops password reset codes that expired more than
// retention ago. It shares the OTP retention window.
func NewPasswordResetCleanupJob(logg *logger.Logger, store Deleter, retention time.Duration) (Job, error) {
	return newRetentionJob("password-reset-cleanup", logg, store, retention, defaultOTPRetention)
}

// NewOutboxRetentionJob drops published outbox rows. Unpublished rows are never touched.
func NewOutboxRetentionJob(logg *logger.Logger, store Deleter, retention time.Duration) (Job, error) {
	return newRetentionJob("outbox-retention", logg, store, retention, defaultOutboxRetention)
}

// NewNotificationCleanupJob drops old notification delivery records.
func NewNotificationCleanupJob(logg *logger.Logger, store Deleter, retention time.Duration) (Job, error) {
	return newRetentionJob("notification-cleanup", logg, store, retention, defaultNotificationRetention)
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, j.name+" complete")
	return nil
}
