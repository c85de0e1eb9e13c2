package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sacrednumerology/sacred-backend/internal/notify"
	"github.com/sacrednumerology/sacred-backend/internal/users"
	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/metrics"
	"github.com/sacrednumerology/sacred-backend/pkg/security"
)

// PasswordResetService replaces a forgotten password once the account holder
// proves they read a code mailed to the account's address.
type PasswordResetService interface {
	RequestReset(ctx context.Context, email string) (*ResetChallenge, error)
	CheckReset(ctx context.Context, input ResetCheckInput) error
	ResetPassword(ctx context.Context, input ResetPasswordInput) error
}

// SessionRevoker signs a user out everywhere.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// ResetParams groups the password reset dependencies.
type ResetParams struct {
	Repo     ResetRepository
	Users    *users.Repository
	Tx       txRunner
	Sender   notify.OTPSender
	Locker   Locker
	Sessions SessionRevoker
	Config   config.OTPConfig
	Password config.PasswordConfig
	Metrics  *metrics.PurchaseMetrics
	Logger   *logger.Logger
	Clock    func() time.Time
}

type resetService struct {
	repo     ResetRepository
	users    *users.Repository
	tx       txRunner
	sender   notify.OTPSender
	locker   Locker
	sessions SessionRevoker
	cfg      config.OTPConfig
	password config.PasswordConfig
	metrics  *metrics.PurchaseMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// resetLockID stands in for the purchase in the lock key; reset codes belong to
// the account alone.
var resetLockID = uuid.Nil

// NewPasswordResetService builds the reset flow.
func NewPasswordResetService(params ResetParams) (PasswordResetService, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("reset repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Sender == nil:
		return nil, fmt.Errorf("otp sender required")
	case params.Locker == nil:
		return nil, fmt.Errorf("locker required")
	case params.Sessions == nil:
		return nil, fmt.Errorf("session revoker required")
	}
	cfg := params.Config
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &resetService{
		repo:     params.Repo,
		users:    params.Users,
		tx:       params.Tx,
		sender:   params.Sender,
		locker:   params.Locker,
		sessions: params.Sessions,
		cfg:      cfg,
		password: params.Password,
		metrics:  params.Metrics,
		logg:     logg,
		now:      clock,
	}, nil
}

// RequestReset mails a code when the email belongs to an active account. The
// answer is the same either way so the endpoint does not reveal who has one.
func (s *resetService) RequestReset(ctx context.Context, email string) (*ResetChallenge, error) {
	email = users.NormalizeEmail(email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	now := s.now().UTC()
	answer := &ResetChallenge{Email: email, ExpiresAt: now.Add(s.cfg.TTL)}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !user.IsActive) {
		s.metrics.OTPOutcome("reset_unknown")
		s.logg.Info(ctx, "password reset requested for no active account")
		return answer, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	ctx = s.logg.WithUserID(ctx, user.ID.String())

	unlock, err := s.locker.Lock(ctx, email, resetLockID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	code, err := security.GenerateNumericCode(s.cfg.Length)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate code")
	}
	challenge := &models.PasswordResetChallenge{
		ID:        uuid.New(),
		Email:     email,
		ExpiresAt: answer.ExpiresAt,
		CreatedAt: now,
	}
	challenge.CodeHash = security.HashCode(challenge.ID.String(), code)
	if err := s.repo.Upsert(ctx, challenge); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store reset code")
	}

	err = s.sender.SendOTP(ctx, notify.OTPMessage{
		Purpose:   notify.OTPPurposePasswordReset,
		Email:     email,
		Name:      user.FullName,
		Code:      code,
		ExpiresAt: challenge.ExpiresAt,
	})
	if err != nil {
		s.logg.Error(ctx, "password reset delivery failed", err)
		s.metrics.OTPOutcome("reset_delivery_failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset code could not be delivered; request a new code")
	}
	s.metrics.OTPOutcome("reset_issued")
	s.logg.Info(ctx, "password reset code issued")
	return answer, nil
}

// CheckReset tells the caller whether a code is good without using it up.
// Wrong guesses count against the same attempt cap as ResetPassword.
func (s *resetService) CheckReset(ctx context.Context, input ResetCheckInput) error {
	return s.attempt(ctx, input.Email, input.Code, nil)
}

// ResetPassword consumes the code, stores the new hash and signs the account
// out of every session opened before the reset.
func (s *resetService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	if err := security.ValidatePassword(input.NewPassword); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, err.Error()).
			WithDetails(map[string]string{"newPassword": err.Error()})
	}
	// hashed up front so argon2 never runs under the lock
	hash, err := security.HashPassword(input.NewPassword, s.password)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	return s.attempt(ctx, input.Email, input.Code, func(tx *gorm.DB, challenge *models.PasswordResetChallenge, now time.Time) (bool, error) {
		consumed, err := s.repo.WithTx(tx).Consume(ctx, challenge.ID, now)
		if err != nil || consumed == 0 {
			return false, err
		}
		accounts := s.users.WithTx(tx)
		user, err := accounts.FindByEmail(ctx, challenge.Email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !user.IsActive {
			return false, nil
		}
		if err := accounts.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			return false, err
		}
		// revoked before commit: a failure rolls the new hash back
		if err := s.sessions.RevokeUser(ctx, user.ID, now); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign out existing sessions")
		}
		s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "password reset")
		return true, nil
	})
}

// attempt runs one guess at the account's reset code under the reset lock. A
// matching code is handed to onMatch, which reports whether it was honoured.
func (s *resetService) attempt(ctx context.Context, email, code string, onMatch func(tx *gorm.DB, challenge *models.PasswordResetChallenge, now time.Time) (bool, error)) error {
	email = users.NormalizeEmail(email)
	if email == "" || code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email and code are required")
	}

	unlock, err := s.locker.Lock(ctx, email, resetLockID)
	if err != nil {
		return err
	}
	defer unlock()

	result := outcomeInvalid
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		codes := s.repo.WithTx(tx)
		challenge, err := codes.FindForUpdate(ctx, email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if screened, ok := screen(challenge.ConsumedAt, challenge.AttemptCount, s.cfg.MaxAttempts, challenge.ExpiresAt, now); !ok {
			result = screened
			return nil
		}
		if !security.CodeMatches(challenge.ID.String(), code, challenge.CodeHash) {
			count, err := codes.IncrementAttempts(ctx, challenge.ID)
			if err != nil {
				return err
			}
			if count >= s.cfg.MaxAttempts {
				result = outcomeExceeded
			}
			return nil
		}

		if onMatch == nil {
			result = outcomeVerified
			return nil
		}
		honoured, err := onMatch(tx, challenge, now)
		if err != nil {
			return err
		}
		if honoured {
			result = outcomeVerified
		}
		return nil
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return appErr
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reset password")
	}

	s.metrics.OTPOutcome("reset_" + result.label())
	if result != outcomeVerified {
		s.logg.Warn(s.logg.WithField(ctx, "otp_outcome", result.label()), "password reset code rejected")
		return result.err()
	}
	return nil
}
