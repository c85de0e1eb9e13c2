package controllers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/api/controllers/requestctx"
	"github.com/sacrednumerology/sacred-backend/api/responses"
	"github.com/sacrednumerology/sacred-backend/internal/access"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

// AccessCheck reports whether the caller may open an asset.
func AccessCheck(svc access.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "access service unavailable"))
			return
		}
		who, err := requestctx.ResolveIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		// an unparseable id is simply not an asset the caller owns
		assetID, err := uuid.Parse(chi.URLParam(r, "assetId"))
		if err != nil {
			responses.WriteSuccess(w, map[string]bool{"allowed": false})
			return
		}
		allowed, err := svc.CanAccess(r.Context(), who, assetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"allowed": allowed})
	}
}

// AccessStreamTicket mints a short-lived ticket for one asset.
func AccessStreamTicket(svc access.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "access service unavailable"))
			return
		}
		who, err := requestctx.ResolveIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := uuid.Parse(chi.URLParam(r, "assetId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotAuthorized, "not authorized"))
			return
		}
		ticket, err := svc.AuthorizeStream(r.Context(), who, assetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ticket)
	}
}

// Stream serves a protected asset to the holder of a valid ticket.
func Stream(svc access.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "access service unavailable"))
			return
		}
		stream, err := svc.OpenStream(r.Context(), chi.URLParam(r, "ticket"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer stream.Body.Close()

		w.Header().Set("Content-Type", stream.ContentType)
		if stream.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(stream.Size, 10))
		}
		w.Header().Set("Cache-Control", "private, no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, stream.Body); err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "stream.copy_interrupted")
		}
	}
}
