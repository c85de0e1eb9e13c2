package catalog

import (
	"context"
	"fmt"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
)

// Service exposes the public catalog.
type Service interface {
	List(ctx context.Context, kind *enums.ProductKind) ([]ItemDTO, error)
}

type service struct {
	repo *Repository
}

// NewService builds the catalog service.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, kind *enums.ProductKind) ([]ItemDTO, error) {
	items, err := s.repo.ListActive(ctx, kind)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list catalog")
	}
	out := make([]ItemDTO, 0, len(items))
	for _, item := range items {
		assets, err := s.repo.ListAssets(ctx, item.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list catalog assets")
		}
		out = append(out, itemFromModel(item, assets))
	}
	return out, nil
}
