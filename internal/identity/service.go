package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sacrednumerology/sacred-backend/internal/catalog"
	"github.com/sacrednumerology/sacred-backend/internal/notify"
	"github.com/sacrednumerology/sacred-backend/internal/purchases"
	"github.com/sacrednumerology/sacred-backend/internal/users"
	"github.com/sacrednumerology/sacred-backend/pkg/config"
	dbpkg "github.com/sacrednumerology/sacred-backend/pkg/db"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/metrics"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox"
	"github.com/sacrednumerology/sacred-backend/pkg/security"
)

// Service issues and verifies the one-time codes that confirm a new account's email.
type Service interface {
	Issue(ctx context.Context, email string, purchaseID uuid.UUID) (*Challenge, error)
	IssueChallenge(ctx context.Context, email string, purchaseID uuid.UUID) error
	Verify(ctx context.Context, input VerifyInput) (*VerifyResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups the verifier dependencies.
type ServiceParams struct {
	Repo      Repository
	Purchases purchases.Repository
	Catalog   *catalog.Repository
	Users     *users.Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Sender    notify.OTPSender
	Locker    Locker
	Config    config.OTPConfig
	Metrics   *metrics.PurchaseMetrics
	Logger    *logger.Logger
	Clock     func() time.Time
}

type service struct {
	repo      Repository
	purchases purchases.Repository
	catalog   *catalog.Repository
	users     *users.Repository
	tx        txRunner
	outbox    outboxPublisher
	sender    notify.OTPSender
	locker    Locker
	cfg       config.OTPConfig
	metrics   *metrics.PurchaseMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the identity verifier.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("challenge repository required")
	}
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchases repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("otp sender required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
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
	return &service{
		repo:      params.Repo,
		purchases: params.Purchases,
		catalog:   params.Catalog,
		users:     params.Users,
		tx:        params.Tx,
		outbox:    params.Outbox,
		sender:    params.Sender,
		locker:    params.Locker,
		cfg:       cfg,
		metrics:   params.Metrics,
		logg:      logg,
		now:       clock,
	}, nil
}

var errPurchaseNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")

func (s *service) Issue(ctx context.Context, email string, purchaseID uuid.UUID) (*Challenge, error) {
	email = users.NormalizeEmail(email)
	ctx = s.logg.WithPurchaseID(ctx, purchaseID.String())

	purchase, err := s.purchases.FindByID(ctx, purchaseID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchase")
	}
	// one answer for every miss so the endpoint cannot be used to enumerate purchases
	if purchase == nil || purchase.Status != enums.PurchaseStatusPendingIdentity || purchase.BuyerEmail != email {
		return nil, errPurchaseNotFound
	}

	unlock, err := s.locker.Lock(ctx, email, purchaseID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	code, err := security.GenerateNumericCode(s.cfg.Length)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate code")
	}
	now := s.now().UTC()
	challenge := &models.OtpChallenge{
		ID:           uuid.New(),
		Email:        email,
		PurchaseID:   purchaseID,
		ExpiresAt:    now.Add(s.cfg.TTL),
		AttemptCount: 0,
		CreatedAt:    now,
	}
	challenge.CodeHash = security.HashCode(challenge.ID.String(), code)
	if err := s.repo.Upsert(ctx, challenge); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store challenge")
	}

	title := ""
	if item, err := s.catalog.FindItem(ctx, purchase.ProductRef); err == nil {
		title = item.Title
	}
	err = s.sender.SendOTP(ctx, notify.OTPMessage{
		Email:        email,
		Name:         purchase.BuyerName,
		Code:         code,
		ProductTitle: title,
		PurchaseID:   purchaseID,
		ExpiresAt:    challenge.ExpiresAt,
	})
	if err != nil {
		s.logg.Error(ctx, "otp delivery failed", err)
		s.metrics.OTPOutcome("delivery_failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verification code could not be delivered; request a new code")
	}
	s.metrics.OTPOutcome("issued")
	s.logg.Info(ctx, "otp issued")
	return &Challenge{PurchaseID: purchaseID, Email: email, ExpiresAt: challenge.ExpiresAt}, nil
}

// IssueChallenge lets the purchase ledger send the first code right after submission.
func (s *service) IssueChallenge(ctx context.Context, email string, purchaseID uuid.UUID) error {
	_, err := s.Issue(ctx, email, purchaseID)
	return err
}

type outcome int

const (
	outcomeVerified outcome = iota
	outcomeInvalid
	outcomeExpired
	outcomeExceeded
)

func (o outcome) label() string {
	switch o {
	case outcomeVerified:
		return "verified"
	case outcomeExpired:
		return "expired"
	case outcomeExceeded:
		return "attempts_exceeded"
	default:
		return "invalid"
	}
}

func (o outcome) err() error {
	switch o {
	case outcomeExpired:
		return pkgerrors.New(pkgerrors.CodeOTPExpired, "verification code has expired; request a new code")
	case outcomeExceeded:
		return pkgerrors.New(pkgerrors.CodeOTPAttemptsExceeded, "too many incorrect attempts; request a new code")
	case outcomeInvalid:
		return pkgerrors.New(pkgerrors.CodeOTPInvalid, "verification code is invalid")
	default:
		return nil
	}
}

// screen applies the checks made before a code's hash is compared.
func screen(consumedAt *time.Time, attempts, maxAttempts int, expiresAt, now time.Time) (outcome, bool) {
	switch {
	case consumedAt != nil:
		return outcomeInvalid, false
	case attempts >= maxAttempts:
		return outcomeExceeded, false
	case !now.Before(expiresAt):
		return outcomeExpired, false
	}
	return outcomeVerified, true
}

func (s *service) Verify(ctx context.Context, input VerifyInput) (*VerifyResult, error) {
	email := users.NormalizeEmail(input.Email)
	ctx = s.logg.WithPurchaseID(ctx, input.PurchaseID.String())
	if email == "" || input.PurchaseID == uuid.Nil || input.Code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email, purchaseId and code are required")
	}

	unlock, err := s.locker.Lock(ctx, email, input.PurchaseID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := outcomeInvalid
	var verified *VerifyResult
	var decided *models.Purchase

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		challenges := s.repo.WithTx(tx)
		challenge, err := challenges.FindForUpdate(ctx, email, input.PurchaseID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result = outcomeInvalid
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

		if !security.CodeMatches(challenge.ID.String(), input.Code, challenge.CodeHash) {
			count, err := challenges.IncrementAttempts(ctx, challenge.ID)
			if err != nil {
				return err
			}
			result = outcomeInvalid
			if count >= s.cfg.MaxAttempts {
				result = outcomeExceeded
			}
			return nil
		}

		consumed, err := challenges.Consume(ctx, challenge.ID, now)
		if err != nil {
			return err
		}
		if consumed == 0 {
			result = outcomeInvalid
			return nil
		}

		purchase, user, err := s.admit(ctx, tx, email, input.PurchaseID, now)
		if err != nil {
			return err
		}
		result = outcomeVerified
		decided = purchase
		verified = &VerifyResult{
			PurchaseID: purchase.ID,
			Status:     purchase.Status,
			UserID:     user.ID,
			Email:      user.Email,
			Role:       user.Role,
		}
		return nil
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, appErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify code")
	}

	s.metrics.OTPOutcome(result.label())
	if result != outcomeVerified {
		s.logg.Warn(s.logg.WithField(ctx, "otp_outcome", result.label()), "otp verification failed")
		return nil, result.err()
	}
	s.metrics.Transition(string(enums.PurchaseStatusPendingIdentity), string(decided.Status))
	s.logg.Info(s.logg.WithUserID(ctx, verified.UserID.String()), "identity verified")
	return verified, nil
}

// admit creates the account from the pending registration and moves the purchase
// into the moderation queue.
func (s *service) admit(ctx context.Context, tx *gorm.DB, email string, purchaseID uuid.UUID, now time.Time) (*models.Purchase, *models.User, error) {
	ledger := s.purchases.WithTx(tx)
	purchase, err := ledger.FindByIDForUpdate(ctx, purchaseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, errPurchaseNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if purchase.BuyerEmail != email {
		return nil, nil, errPurchaseNotFound
	}
	if purchase.Status != enums.PurchaseStatusPendingIdentity {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("purchase is %s", purchase.Status))
	}
	if purchase.PendingAccount.IsZero() {
		return nil, nil, fmt.Errorf("purchase %s has no pending account", purchase.ID)
	}

	pending := purchase.PendingAccount
	var phone *string
	if pending.Phone != "" {
		phone = &pending.Phone
	}
	user, err := s.users.WithTx(tx).Create(ctx, users.CreateUserDTO{
		Email:        email,
		PasswordHash: pending.PasswordHash,
		FullName:     pending.FullName,
		Phone:        phone,
		Birth:        pending.Birth,
		Role:         enums.UserRoleCustomer,
	})
	if dbpkg.IsUniqueViolation(err, "idx_users_email_lower") {
		return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "an account with this email already exists; sign in to purchase")
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := ledger.Admit(ctx, purchase.ID, user.ID, now)
	if err != nil {
		return nil, nil, err
	}
	if rows == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "purchase can no longer be verified")
	}
	purchase, err = ledger.FindByID(ctx, purchase.ID)
	if err != nil {
		return nil, nil, err
	}

	title := ""
	if item, err := s.catalog.WithTx(tx).FindItem(ctx, purchase.ProductRef); err == nil {
		title = item.Title
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPurchaseSubmitted,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchase.ID,
		Actor:         &outbox.ActorRef{UserID: &user.ID, Email: user.Email, Role: string(user.Role)},
		Data:          purchases.SubmittedEvent(purchase, title),
		OccurredAt:    now,
	})
	if err != nil {
		return nil, nil, err
	}
	return purchase, user, nil
}
