package purchases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sacrednumerology/sacred-backend/internal/catalog"
	"github.com/sacrednumerology/sacred-backend/internal/proofs"
	"github.com/sacrednumerology/sacred-backend/internal/users"
	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/metrics"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox"
	"github.com/sacrednumerology/sacred-backend/pkg/pagination"
	"github.com/sacrednumerology/sacred-backend/pkg/security"
	"github.com/sacrednumerology/sacred-backend/pkg/types"
)

const (
	maxNameLen = 120
	maxNoteLen = 1000
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// Service is the purchase ledger: it owns creation, proof replacement and the
// moderation decision.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	AttachProof(ctx context.Context, purchaseID uuid.UUID, buyerEmail string, upload proofs.Upload) (*PurchaseDTO, error)
	Decide(ctx context.Context, input DecideInput) (*PurchaseDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*PurchaseDTO, error)
	OpenProof(ctx context.Context, id uuid.UUID) (io.ReadCloser, string, error)
	ListByStatus(ctx context.Context, params ListParams) (*ListResult, error)
	ListForBuyer(ctx context.Context, userID uuid.UUID, email string) ([]PurchaseDTO, error)
	Stats(ctx context.Context) ([]StatusCount, error)
	Export(ctx context.Context, w io.Writer, filter Filter) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups the ledger dependencies.
type ServiceParams struct {
	Repo     Repository
	Catalog  *catalog.Repository
	Users    *users.Repository
	Proofs   proofs.Service
	Tx       txRunner
	Outbox   outboxPublisher
	Issuer   ChallengeIssuer
	Password config.PasswordConfig
	Metrics  *metrics.PurchaseMetrics
	Logger   *logger.Logger
	Clock    func() time.Time
}

type service struct {
	repo     Repository
	catalog  *catalog.Repository
	users    *users.Repository
	proofs   proofs.Service
	tx       txRunner
	outbox   outboxPublisher
	issuer   ChallengeIssuer
	password config.PasswordConfig
	metrics  *metrics.PurchaseMetrics
	logg     *logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds the purchase ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("purchases repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Proofs == nil {
		return nil, fmt.Errorf("proof store required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Issuer == nil {
		return nil, fmt.Errorf("challenge issuer required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:     params.Repo,
		catalog:  params.Catalog,
		users:    params.Users,
		proofs:   params.Proofs,
		tx:       params.Tx,
		outbox:   params.Outbox,
		issuer:   params.Issuer,
		password: params.Password,
		metrics:  params.Metrics,
		logg:     params.Logger,
		validate: validator.New(),
		now:      clock,
	}, nil
}

type contact struct {
	name  string
	email string
	phone string
}

func (s *service) normalizeContact(input CreateInput) (contact, error) {
	c := contact{
		name:  strings.TrimSpace(input.BuyerName),
		email: users.NormalizeEmail(input.BuyerEmail),
		phone: normalizePhone(input.BuyerPhone),
	}
	problems := map[string]string{}
	if c.name == "" {
		problems["name"] = "name is required"
	} else if len(c.name) > maxNameLen {
		problems["name"] = fmt.Sprintf("name must be at most %d characters", maxNameLen)
	}
	if err := s.validate.Var(c.email, "required,email,max=254"); err != nil {
		problems["email"] = "email is invalid"
	}
	if c.phone == "" {
		problems["phone"] = "phone is required"
	} else if !phonePattern.MatchString(c.phone) {
		problems["phone"] = "phone is invalid"
	}
	if len(problems) > 0 {
		return contact{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid buyer contact").WithDetails(problems)
	}
	return c, nil
}

func normalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	profile, ok := profileFor(input.ProductKind)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown product kind")
	}
	buyer, err := s.normalizeContact(input)
	if err != nil {
		return nil, err
	}
	details := profile.normalizeDetails(input.Details)
	if problems := profile.validateDetails(details, s.now(), input.NewAccount && profile.newAccount); len(problems) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid purchase details").WithDetails(problems)
	}
	if input.NewAccount {
		if !profile.newAccount {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "account registration is only available with a course purchase")
		}
		if input.BuyerUserID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "already signed in; submit without registering")
		}
	}

	proof, err := s.proofs.Inspect(input.Proof)
	if err != nil {
		return nil, err
	}

	item, err := s.catalog.FindItem(ctx, input.ProductRef)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load catalog item")
	}
	if item == nil || !item.IsActive || item.Kind != input.ProductKind || !item.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}
	if !input.Amount.Equal(item.PriceAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match the current price").
			WithDetails(map[string]string{"amount": FormatAmount(item.PriceAmount)})
	}

	var pending types.PendingAccount
	if input.NewAccount {
		pending, err = s.pendingAccount(ctx, buyer, details, input.Password)
		if err != nil {
			return nil, err
		}
	}

	purchaseID := uuid.New()
	ctx = s.withPurchase(ctx, purchaseID)
	ref, err := s.proofs.Save(ctx, input.ProductKind, purchaseID, proof)
	if err != nil {
		return nil, err
	}

	status := enums.PurchaseStatusPendingModeration
	if input.NewAccount {
		status = enums.PurchaseStatusPendingIdentity
	}
	now := s.now().UTC()
	purchase := &models.Purchase{
		ID:                  purchaseID,
		ProductKind:         input.ProductKind,
		ProductRef:          item.ID,
		BuyerName:           buyer.name,
		BuyerEmail:          buyer.email,
		BuyerPhone:          buyer.phone,
		BuyerUserID:         input.BuyerUserID,
		Details:             details,
		Amount:              item.PriceAmount,
		Currency:            item.Currency,
		ProofRef:            &ref,
		Status:              status,
		NewAccountRequested: input.NewAccount,
		PendingAccount:      pending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, purchase); err != nil {
			return err
		}
		if status != enums.PurchaseStatusPendingModeration {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseSubmitted,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchaseID,
			Actor:         buyerActor(purchase),
			Data:          SubmittedEvent(purchase, item.Title),
			OccurredAt:    now,
		})
	})
	if err != nil {
		s.discardProof(ctx, ref)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create purchase")
	}
	s.metrics.PurchaseCreated(string(input.ProductKind), string(status))
	s.info(ctx, "purchase created")

	result := &CreateResult{PurchaseID: purchaseID, Status: status, NextStep: enums.NextStepAwaitModeration}
	if input.NewAccount {
		result.NextStep = enums.NextStepAwaitOTP
		if err := s.issuer.IssueChallenge(ctx, buyer.email, purchaseID); err != nil {
			s.warn(ctx, "initial otp could not be issued", err)
		}
	}
	return result, nil
}

func (s *service) pendingAccount(ctx context.Context, buyer contact, birth types.PurchaseDetails, password string) (types.PendingAccount, error) {
	if err := security.ValidatePassword(password); err != nil {
		return types.PendingAccount{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	exists, err := s.users.EmailExists(ctx, buyer.email)
	if err != nil {
		return types.PendingAccount{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing account")
	}
	if exists {
		return types.PendingAccount{}, pkgerrors.New(pkgerrors.CodeConflict, "an account with this email already exists; sign in to purchase")
	}
	hash, err := security.HashPassword(password, s.password)
	if err != nil {
		return types.PendingAccount{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	return types.PendingAccount{
		FullName:     buyer.name,
		Phone:        buyer.phone,
		PasswordHash: hash,
		Birth:        birth,
	}, nil
}

func (s *service) AttachProof(ctx context.Context, purchaseID uuid.UUID, buyerEmail string, upload proofs.Upload) (*PurchaseDTO, error) {
	ctx = s.withPurchase(ctx, purchaseID)
	current, err := s.repo.FindByID(ctx, purchaseID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && current.BuyerEmail != users.NormalizeEmail(buyerEmail)) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchase")
	}
	if !current.Status.AcceptsProof() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("purchase is %s", current.Status))
	}

	proof, err := s.proofs.Inspect(upload)
	if err != nil {
		return nil, err
	}
	ref, err := s.proofs.Save(ctx, current.ProductKind, purchaseID, proof)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ReplaceProof(ctx, purchaseID, ref, s.now().UTC())
	if err != nil {
		s.discardProof(ctx, ref)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace payment proof")
	}
	if rows == 0 {
		s.discardProof(ctx, ref)
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "purchase was decided while the proof uploaded")
	}
	if current.ProofRef != nil && *current.ProofRef != ref {
		s.discardProof(ctx, *current.ProofRef)
	}
	return s.Get(ctx, purchaseID)
}

func (s *service) Decide(ctx context.Context, input DecideInput) (*PurchaseDTO, error) {
	if !input.Outcome.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outcome must be approve or reject")
	}
	if input.Actor == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "decision requires an administrator")
	}
	note := strings.TrimSpace(input.Note)
	if len(note) > maxNoteLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("note must be at most %d characters", maxNoteLen))
	}
	ctx = s.withPurchase(ctx, input.PurchaseID)
	target := input.Outcome.TargetStatus()

	var (
		decided *models.Purchase
		title   string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, input.PurchaseID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
		}
		if err != nil {
			return err
		}
		if current.Status != enums.PurchaseStatusPendingModeration {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("purchase is %s", current.Status))
		}
		item, err := s.catalog.WithTx(tx).FindItem(ctx, current.ProductRef)
		if err != nil {
			return err
		}
		title = item.Title

		now := s.now().UTC()
		params := DecisionParams{Status: target, DecidedAt: now, DecidedBy: input.Actor}
		if note != "" {
			params.Note = &note
		}
		if profile, ok := profileFor(current.ProductKind); ok && profile.assetsExpire &&
			input.Outcome == enums.DecisionApprove && item.AccessDays != nil && *item.AccessDays > 0 {
			expires := now.AddDate(0, 0, *item.AccessDays)
			params.AccessExpiresAt = &expires
		}

		rows, err := repo.Decide(ctx, input.PurchaseID, params)
		if err != nil {
			return err
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "purchase already decided")
		}
		decided, err = repo.FindByID(ctx, input.PurchaseID)
		if err != nil {
			return err
		}
		actor := input.Actor
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseDecided,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   input.PurchaseID,
			Actor:         &outbox.ActorRef{UserID: &actor, Role: string(enums.UserRoleAdmin)},
			Data:          decidedEvent(decided, title, input.Outcome),
			OccurredAt:    now,
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decide purchase")
	}

	s.metrics.Transition(string(enums.PurchaseStatusPendingModeration), string(target))
	s.info(ctx, "purchase decided")
	dto := FromModel(decided, title)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*PurchaseDTO, error) {
	purchase, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchase")
	}
	titles, err := s.catalog.TitlesByID(ctx, []uuid.UUID{purchase.ProductRef})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load catalog titles")
	}
	dto := FromModel(purchase, titles[purchase.ProductRef])
	return &dto, nil
}

func (s *service) OpenProof(ctx context.Context, id uuid.UUID) (io.ReadCloser, string, error) {
	purchase, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	}
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchase")
	}
	if purchase.ProofRef == nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "payment proof not found")
	}
	return s.proofs.Open(ctx, *purchase.ProofRef)
}

func (s *service) ListByStatus(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, params.Filter, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list purchases")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(p models.Purchase) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	items, err := s.toDTOs(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, NextCursor: next}, nil
}

func (s *service) ListForBuyer(ctx context.Context, userID uuid.UUID, email string) ([]PurchaseDTO, error) {
	rows, err := s.repo.ListForBuyer(ctx, userID, email, pagination.MaxLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list buyer purchases")
	}
	return s.toDTOs(ctx, rows)
}

func (s *service) Stats(ctx context.Context) ([]StatusCount, error) {
	counts, err := s.repo.CountByKindAndStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count purchases")
	}
	return counts, nil
}

func (s *service) toDTOs(ctx context.Context, rows []models.Purchase) ([]PurchaseDTO, error) {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductRef)
	}
	titles, err := s.catalog.TitlesByID(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load catalog titles")
	}
	out := make([]PurchaseDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i], titles[rows[i].ProductRef]))
	}
	return out, nil
}

func (s *service) discardProof(ctx context.Context, ref string) {
	if err := s.proofs.Delete(ctx, ref); err != nil {
		s.warn(ctx, "orphaned payment proof not deleted", err)
	}
}

func (s *service) withPurchase(ctx context.Context, id uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithPurchaseID(ctx, id.String())
}

func (s *service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func buyerActor(p *models.Purchase) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: p.BuyerUserID, Email: p.BuyerEmail, Role: string(enums.UserRoleCustomer)}
}
