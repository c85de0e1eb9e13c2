package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacrednumerology/sacred-backend/pkg/db/dbtest"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

func TestListReturnsActiveItemsWithAssets(t *testing.T) {
	client := dbtest.Open(t)
	days := 365
	course := dbtest.SeedCatalogItem(t, client, enums.ProductKindCourse, "Numerology Foundations", "4999.00", &days)
	report := dbtest.SeedCatalogItem(t, client, enums.ProductKindEReport, "Name Report", "999.00", nil)
	hidden := dbtest.SeedCatalogItem(t, client, enums.ProductKindEReport, "Retired Report", "499.00", nil)
	require.NoError(t, client.DB().Model(&hidden).Update("is_active", false).Error)
	dbtest.SeedAsset(t, client, course.ID, enums.AssetKindVideo, "courses/foundations/01.mp4")

	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)

	items, err := svc.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, course.ID, items[0].ID)
	assert.Len(t, items[0].Assets, 1)
	assert.Equal(t, "4999", items[0].Price.String())
	assert.Equal(t, report.ID, items[1].ID)

	kind := enums.ProductKindEReport
	items, err = svc.List(context.Background(), &kind)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Name Report", items[0].Title)
}

func TestTitlesByID(t *testing.T) {
	client := dbtest.Open(t)
	item := dbtest.SeedCatalogItem(t, client, enums.ProductKindConsultation, "Personal Reading", "2100.00", nil)
	repo := NewRepository(client.DB())

	titles, err := repo.TitlesByID(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, titles)

	titles, err = repo.TitlesByID(context.Background(), []uuid.UUID{item.ID})
	require.NoError(t, err)
	assert.Equal(t, "Personal Reading", titles[item.ID])
}
