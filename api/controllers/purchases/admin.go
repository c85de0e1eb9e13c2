package purchases

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sacrednumerology/sacred-backend/api/responses"
	"github.com/sacrednumerology/sacred-backend/api/validators"
	internalpurchases "github.com/sacrednumerology/sacred-backend/internal/purchases"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/pagination"
)

// AdminList pages through the ledger filtered by kind and status.
func AdminList(svc internalpurchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListByStatus(r.Context(), internalpurchases.ListParams{
			Filter: filter,
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminExport writes the filtered ledger as CSV.
func AdminExport(svc internalpurchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filename := fmt.Sprintf("purchases-%s.csv", time.Now().UTC().Format("20060102"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Header().Set("Cache-Control", "no-store")
		// headers are already out once rows stream, so a late failure can only be logged
		if err := svc.Export(r.Context(), w, filter); err != nil && logg != nil {
			logg.Error(r.Context(), "purchases.export_failed", err)
		}
	}
}

// AdminStats returns purchase counts per kind and status.
func AdminStats(svc internalpurchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		counts, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"counts": counts})
	}
}

func parseFilter(r *http.Request) (internalpurchases.Filter, error) {
	kind, err := validators.ParseQueryKind(r, "kind")
	if err != nil {
		return internalpurchases.Filter{}, err
	}
	status, err := validators.ParseQueryStatus(r, "status")
	if err != nil {
		return internalpurchases.Filter{}, err
	}
	return internalpurchases.Filter{Kind: kind, Status: status}, nil
}
