package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/internal/catalog"
	"github.com/sacrednumerology/sacred-backend/internal/users"
	"github.com/sacrednumerology/sacred-backend/pkg/auth"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/metrics"
	"github.com/sacrednumerology/sacred-backend/pkg/storage"
)

// Identity is who is asking, as established by a verified session.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// StreamTicket is a short-lived capability for one asset.
type StreamTicket struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expiresAt"`
	StreamURL string    `json:"streamUrl"`
}

// Stream is an opened protected asset. The caller closes Body.
type Stream struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	Title       string
}

// Service decides whether protected assets may be released.
type Service interface {
	CanAccess(ctx context.Context, who Identity, assetID uuid.UUID) (bool, error)
	AuthorizeStream(ctx context.Context, who Identity, assetID uuid.UUID) (*StreamTicket, error)
	OpenStream(ctx context.Context, ticket string) (*Stream, error)
}

// ServiceParams wires the access gate.
type ServiceParams struct {
	Repo       Repository
	Catalog    *catalog.Repository
	Store      storage.ObjectStore
	Bucket     string
	Signer     *auth.StreamTicketSigner
	StreamBase string
	Metrics    *metrics.PurchaseMetrics
	Logger     *logger.Logger
	Clock      func() time.Time
}

type service struct {
	repo       Repository
	catalog    *catalog.Repository
	store      storage.ObjectStore
	bucket     string
	signer     *auth.StreamTicketSigner
	streamBase string
	metrics    *metrics.PurchaseMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the access gate.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("access repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if params.Bucket == "" {
		return nil, fmt.Errorf("asset bucket required")
	}
	if params.Signer == nil {
		return nil, fmt.Errorf("stream ticket signer required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:       params.Repo,
		catalog:    params.Catalog,
		store:      params.Store,
		bucket:     params.Bucket,
		signer:     params.Signer,
		streamBase: strings.TrimRight(params.StreamBase, "/"),
		metrics:    params.Metrics,
		logg:       logg,
		now:        clock,
	}, nil
}

// errNotAuthorized is the only denial callers ever see. It never says whether the
// asset exists or how far the purchase got.
func errNotAuthorized() error {
	return pkgerrors.New(pkgerrors.CodeNotAuthorized, "not authorized")
}

// CanAccess is recomputed on every call; moderation outcomes are never cached.
func (s *service) CanAccess(ctx context.Context, who Identity, assetID uuid.UUID) (bool, error) {
	who.Email = users.NormalizeEmail(who.Email)
	if assetID == uuid.Nil || (who.UserID == uuid.Nil && who.Email == "") {
		s.metrics.AccessCheck(false)
		return false, nil
	}
	ok, err := s.repo.HasApprovedPurchase(ctx, who, assetID, s.now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check entitlement")
	}
	s.metrics.AccessCheck(ok)
	return ok, nil
}

func (s *service) AuthorizeStream(ctx context.Context, who Identity, assetID uuid.UUID) (*StreamTicket, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{"asset_id": assetID.String(), "user_id": who.UserID.String()})
	ok, err := s.CanAccess(ctx, who, assetID)
	if err != nil {
		s.logg.Error(ctx, "entitlement check failed", err)
		return nil, errNotAuthorized()
	}
	if !ok {
		s.logg.Info(ctx, "stream denied")
		return nil, errNotAuthorized()
	}
	ticket, expiresAt, err := s.signer.Mint(s.now().UTC(), who.UserID, users.NormalizeEmail(who.Email), assetID)
	if err != nil {
		s.logg.Error(ctx, "mint stream ticket", err)
		return nil, errNotAuthorized()
	}
	return &StreamTicket{
		Ticket:    ticket,
		ExpiresAt: expiresAt,
		StreamURL: s.streamBase + "/" + ticket,
	}, nil
}

// OpenStream re-checks the entitlement so a ticket never outlives it.
func (s *service) OpenStream(ctx context.Context, ticket string) (*Stream, error) {
	claims, err := s.signer.Parse(s.now(), ticket)
	if err != nil {
		s.logg.Info(s.logg.WithField(ctx, "reason", err.Error()), "stream ticket rejected")
		return nil, errNotAuthorized()
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"asset_id": claims.AssetID.String(), "user_id": claims.UserID.String()})

	ok, err := s.CanAccess(ctx, Identity{UserID: claims.UserID, Email: claims.Email}, claims.AssetID)
	if err != nil || !ok {
		if err != nil {
			s.logg.Error(ctx, "entitlement check failed", err)
		}
		return nil, errNotAuthorized()
	}
	asset, err := s.catalog.FindAsset(ctx, claims.AssetID)
	if err != nil {
		return nil, errNotAuthorized()
	}

	body, info, err := s.store.Open(ctx, s.bucket, asset.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logg.Error(ctx, "protected asset object missing", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "open asset")
	}
	contentType := asset.ContentType
	if contentType == "" {
		contentType = info.ContentType
	}
	return &Stream{Body: body, ContentType: contentType, Size: info.Size, Title: asset.Title}, nil
}
