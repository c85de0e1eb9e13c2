package moderation

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/internal/purchases"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
)

// Service is the administrator view over the purchase ledger. Only purchases in
// pending_moderation are offered for action.
type Service interface {
	ListPending(ctx context.Context, params ListParams) (*QueuePage, error)
	Approve(ctx context.Context, purchaseID, actor uuid.UUID, note string) (*purchases.PurchaseDTO, error)
	Reject(ctx context.Context, purchaseID, actor uuid.UUID, note string) (*purchases.PurchaseDTO, error)
	Decide(ctx context.Context, purchaseID, actor uuid.UUID, outcome enums.DecisionOutcome, note string) (*purchases.PurchaseDTO, error)
	ProofImage(ctx context.Context, purchaseID uuid.UUID) (io.ReadCloser, string, error)
}

// ListParams narrows the queue.
type ListParams struct {
	Kind   *enums.ProductKind
	Limit  int
	Cursor string
}

// QueueItem is everything an administrator needs to judge one purchase.
type QueueItem struct {
	purchases.PurchaseDTO
	ProofURL   string `json:"proofUrl"`
	WaitingFor string `json:"waitingFor"`
}

// QueuePage is one page of the moderation queue, oldest first.
type QueuePage struct {
	Items      []QueueItem `json:"items"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

type service struct {
	ledger      purchases.Service
	proofPrefix string
	now         func() time.Time
}

// NewService builds the moderation queue. proofBase is the URL prefix under which the
// admin proof endpoint is mounted.
func NewService(ledger purchases.Service, proofBase string) (Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("purchase ledger required")
	}
	return &service{
		ledger:      ledger,
		proofPrefix: strings.TrimRight(proofBase, "/"),
		now:         time.Now,
	}, nil
}

func (s *service) ListPending(ctx context.Context, params ListParams) (*QueuePage, error) {
	if params.Kind != nil && !params.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown product kind")
	}
	pending := enums.PurchaseStatusPendingModeration
	page, err := s.ledger.ListByStatus(ctx, purchases.ListParams{
		Filter: purchases.Filter{Kind: params.Kind, Status: &pending},
		Limit:  params.Limit,
		Cursor: params.Cursor,
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	items := make([]QueueItem, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, QueueItem{
			PurchaseDTO: p,
			ProofURL:    s.ProofURL(p.ID),
			WaitingFor:  now.Sub(p.CreatedAt).Truncate(time.Minute).String(),
		})
	}
	return &QueuePage{Items: items, NextCursor: page.NextCursor}, nil
}

// ProofURL is where the admin UI fetches a purchase's proof image.
func (s *service) ProofURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/purchases/%s/proof", s.proofPrefix, id)
}

func (s *service) Approve(ctx context.Context, purchaseID, actor uuid.UUID, note string) (*purchases.PurchaseDTO, error) {
	return s.Decide(ctx, purchaseID, actor, enums.DecisionApprove, note)
}

func (s *service) Reject(ctx context.Context, purchaseID, actor uuid.UUID, note string) (*purchases.PurchaseDTO, error) {
	return s.Decide(ctx, purchaseID, actor, enums.DecisionReject, note)
}

func (s *service) Decide(ctx context.Context, purchaseID, actor uuid.UUID, outcome enums.DecisionOutcome, note string) (*purchases.PurchaseDTO, error) {
	if purchaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase id is required")
	}
	return s.ledger.Decide(ctx, purchases.DecideInput{
		PurchaseID: purchaseID,
		Outcome:    outcome,
		Actor:      actor,
		Note:       note,
	})
}

func (s *service) ProofImage(ctx context.Context, purchaseID uuid.UUID) (io.ReadCloser, string, error) {
	return s.ledger.OpenProof(ctx, purchaseID)
}
