// Package moderation serves the administrator queue of purchases awaiting review.
package moderation

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/api/controllers/requestctx"
	"github.com/sacrednumerology/sacred-backend/api/responses"
	"github.com/sacrednumerology/sacred-backend/api/validators"
	internalmoderation "github.com/sacrednumerology/sacred-backend/internal/moderation"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/pagination"
)

type decisionRequest struct {
	Outcome string `json:"outcome" validate:"required"`
	Note    string `json:"note" validate:"max=1000"`
}

type noteRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

// Queue lists purchases awaiting a decision, oldest first.
func Queue(svc internalmoderation.Service, defaultSize int, logg *logger.Logger) http.HandlerFunc {
	if defaultSize <= 0 || defaultSize > pagination.MaxLimit {
		defaultSize = pagination.DefaultLimit
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "moderation service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultSize, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := validators.ParseQueryKind(r, "kind")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListPending(r.Context(), internalmoderation.ListParams{
			Kind:   kind,
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

// Proof streams the payment proof image of one purchase.
func Proof(svc internalmoderation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "moderation service unavailable"))
			return
		}
		purchaseID, err := purchaseIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body, contentType, err := svc.ProofImage(r.Context(), purchaseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer body.Close()

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "private, no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, body); err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "moderation.proof_copy_interrupted")
		}
	}
}

// Decision applies {outcome, note} to a pending purchase.
func Decision(svc internalmoderation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "moderation service unavailable"))
			return
		}
		actor, purchaseID, err := actorAndPurchase(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body decisionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := enums.ParseDecisionOutcome(body.Outcome)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid outcome"))
			return
		}

		dto, err := svc.Decide(r.Context(), purchaseID, actor, outcome, validators.SanitizeString(body.Note))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// Approve is Decision with the outcome in the path.
func Approve(svc internalmoderation.Service, logg *logger.Logger) http.HandlerFunc {
	return decideWith(svc, enums.DecisionApprove, logg)
}

// Reject is Decision with the outcome in the path.
func Reject(svc internalmoderation.Service, logg *logger.Logger) http.HandlerFunc {
	return decideWith(svc, enums.DecisionReject, logg)
}

func decideWith(svc internalmoderation.Service, outcome enums.DecisionOutcome, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "moderation service unavailable"))
			return
		}
		actor, purchaseID, err := actorAndPurchase(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// the note body is optional on the shorthand routes
		var body noteRequest
		if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		dto, err := svc.Decide(r.Context(), purchaseID, actor, outcome, validators.SanitizeString(body.Note))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func actorAndPurchase(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	actor, err := requestctx.ResolveUserID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	purchaseID, err := purchaseIDParam(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return actor, purchaseID, nil
}

func purchaseIDParam(r *http.Request) (uuid.UUID, error) {
	return validators.ParseUUID(chi.URLParam(r, "purchaseId"), "purchaseId")
}
