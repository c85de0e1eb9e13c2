package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/api/responses"
	"github.com/sacrednumerology/sacred-backend/api/validators"
	"github.com/sacrednumerology/sacred-backend/internal/auth"
	"github.com/sacrednumerology/sacred-backend/internal/identity"
	"github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

type otpIssueRequest struct {
	Email      string `json:"email" validate:"required,email"`
	PurchaseID string `json:"purchaseId" validate:"required,uuid"`
}

type otpVerifyRequest struct {
	Email      string `json:"email" validate:"required,email"`
	PurchaseID string `json:"purchaseId" validate:"required,uuid"`
	Code       string `json:"code" validate:"required,otpcode"`
}

// IdentityIssueOTP sends a fresh one-time code for a purchase awaiting identity.
func IdentityIssueOTP(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeInternal, "identity service unavailable"))
			return
		}

		var body otpIssueRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		challenge, err := svc.Issue(r.Context(), body.Email, uuid.MustParse(body.PurchaseID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"expiresAt": challenge.ExpiresAt})
	}
}

// IdentityVerifyOTP checks a code. On success the new account is signed in and the
// access token is returned in the token header.
func IdentityVerifyOTP(svc identity.Service, sessions auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || sessions == nil {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeInternal, "identity service unavailable"))
			return
		}

		var body otpVerifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Verify(r.Context(), identity.VerifyInput{
			Email:      body.Email,
			PurchaseID: uuid.MustParse(body.PurchaseID),
			Code:       body.Code,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := map[string]any{
			"purchaseId": result.PurchaseID,
			"status":     result.Status,
			"userId":     result.UserID,
		}

		// the purchase has already moved on; a session failure only means the buyer
		// signs in with the password they chose
		session, err := sessions.IssueSession(r.Context(), result.UserID)
		if err != nil {
			if logg != nil {
				ctx := logg.WithPurchaseID(r.Context(), result.PurchaseID.String())
				logg.Error(ctx, "identity.session_issue_failed", err)
			}
			responses.WriteSuccess(w, payload)
			return
		}

		w.Header().Set(TokenHeader, session.AccessToken)
		payload["refresh_token"] = session.RefreshToken
		payload["expires_at"] = session.ExpiresAt
		responses.WriteSuccess(w, payload)
	}
}
