package catalog

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

// ItemDTO is the public shape of a catalog item.
type ItemDTO struct {
	ID         uuid.UUID         `json:"id"`
	Kind       enums.ProductKind `json:"kind"`
	Title      string            `json:"title"`
	Price      decimal.Decimal   `json:"price"`
	Currency   enums.Currency    `json:"currency"`
	AccessDays *int              `json:"access_days,omitempty"`
	Assets     []AssetDTO        `json:"assets,omitempty"`
}

// AssetDTO lists an asset without its storage key.
type AssetDTO struct {
	ID    uuid.UUID       `json:"id"`
	Kind  enums.AssetKind `json:"kind"`
	Title string          `json:"title"`
}

func itemFromModel(item models.CatalogItem, assets []models.CatalogAsset) ItemDTO {
	dto := ItemDTO{
		ID:         item.ID,
		Kind:       item.Kind,
		Title:      item.Title,
		Price:      item.PriceAmount,
		Currency:   item.Currency,
		AccessDays: item.AccessDays,
	}
	for _, a := range assets {
		dto.Assets = append(dto.Assets, AssetDTO{ID: a.ID, Kind: a.Kind, Title: a.Title})
	}
	return dto
}
