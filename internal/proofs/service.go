// Package proofs stores payment proof images and hands back opaque references.
package proofs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/metrics"
	"github.com/sacrednumerology/sacred-backend/pkg/storage"
)

// Upload is a proof as received from the client.
type Upload struct {
	Filename string
	Body     io.Reader
}

// Proof is an upload that passed validation and is buffered in memory.
type Proof struct {
	ContentType string
	Ext         string
	data        []byte
}

// Size returns the proof length in bytes.
func (p *Proof) Size() int64 {
	if p == nil {
		return 0
	}
	return int64(len(p.data))
}

// Service validates and stores payment proofs.
type Service interface {
	Inspect(upload Upload) (*Proof, error)
	Save(ctx context.Context, kind enums.ProductKind, purchaseID uuid.UUID, proof *Proof) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, ref string) error
}

type service struct {
	store    storage.ObjectStore
	bucket   string
	maxBytes int64
	metrics  *metrics.PurchaseMetrics
	logg     *logger.Logger
}

// ServiceParams groups the proof store dependencies.
type ServiceParams struct {
	Store    storage.ObjectStore
	Bucket   string
	MaxBytes int64
	Metrics  *metrics.PurchaseMetrics
	Logger   *logger.Logger
}

// NewService builds the proof store.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if strings.TrimSpace(params.Bucket) == "" {
		return nil, fmt.Errorf("proof bucket required")
	}
	if params.MaxBytes <= 0 {
		return nil, fmt.Errorf("proof size limit must be positive")
	}
	return &service{
		store:    params.Store,
		bucket:   params.Bucket,
		maxBytes: params.MaxBytes,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Inspect reads the upload up to the size cap and checks that it is an image.
func (s *service) Inspect(upload Upload) (*Proof, error) {
	if upload.Body == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment proof is required")
	}
	data, err := io.ReadAll(io.LimitReader(upload.Body, s.maxBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment proof could not be read")
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment proof is required")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment proof exceeds %d MB", s.maxBytes>>20))
	}
	contentType, ext, ok := sniff(data)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment proof must be an image").
			WithDetails(map[string]any{"content_type": contentType})
	}
	return &Proof{ContentType: contentType, Ext: ext, data: data}, nil
}

// Save writes the proof under a fresh key and returns the key as the reference.
func (s *service) Save(ctx context.Context, kind enums.ProductKind, purchaseID uuid.UUID, proof *Proof) (string, error) {
	if proof == nil || len(proof.data) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment proof is required")
	}
	key := fmt.Sprintf("proofs/%s/%s/%s.%s", kind, purchaseID, uuid.NewString(), proof.Ext)
	info, err := s.store.Put(ctx, s.bucket, key, proof.ContentType, bytes.NewReader(proof.data))
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithPurchaseID(ctx, purchaseID.String()), "proof upload failed", err)
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "store payment proof")
	}
	s.metrics.ProofStored(info.Size)
	return info.Key, nil
}

// Open streams a stored proof back with its content type.
func (s *service) Open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "payment proof not found")
	}
	body, info, err := s.store.Open(ctx, s.bucket, ref)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment proof not found")
	}
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "open payment proof")
	}
	return body, info.ContentType, nil
}

// Delete removes a proof. A missing object is not an error.
func (s *service) Delete(ctx context.Context, ref string) error {
	if strings.TrimSpace(ref) == "" {
		return nil
	}
	if err := s.store.Delete(ctx, s.bucket, ref); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete payment proof")
	}
	return nil
}
