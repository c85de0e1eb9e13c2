package controllers

import (
	"net/http"

	"github.com/sacrednumerology/sacred-backend/api/responses"
	"github.com/sacrednumerology/sacred-backend/api/validators"
	"github.com/sacrednumerology/sacred-backend/internal/catalog"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

// CatalogList returns active catalog items and their current prices.
func CatalogList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		kind, err := validators.ParseQueryKind(r, "kind")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.List(r.Context(), kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}
