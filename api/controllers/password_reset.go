package controllers

import (
	"net/http"

	"github.com/sacrednumerology/sacred-backend/api/responses"
	"github.com/sacrednumerology/sacred-backend/api/validators"
	"github.com/sacrednumerology/sacred-backend/internal/identity"
	"github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

type resetRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type resetCheckRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Code  string `json:"code" validate:"required,otpcode"`
}

type resetConfirmRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Code        string `json:"code" validate:"required,otpcode"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// PasswordResetRequest mails a reset code. The response is 202 whether or not
// the email has an account.
func PasswordResetRequest(svc identity.PasswordResetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeInternal, "password reset unavailable"))
			return
		}
		var body resetRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		challenge, err := svc.RequestReset(r.Context(), body.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{"expiresAt": challenge.ExpiresAt})
	}
}

// PasswordResetVerify checks a reset code without using it up.
func PasswordResetVerify(svc identity.PasswordResetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeInternal, "password reset unavailable"))
			return
		}
		var body resetCheckRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.CheckReset(r.Context(), identity.ResetCheckInput{Email: body.Email, Code: body.Code}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"valid": true})
	}
}

// PasswordResetConfirm sets the new password. Existing sessions are signed out,
// so the client signs in again afterwards.
func PasswordResetConfirm(svc identity.PasswordResetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeInternal, "password reset unavailable"))
			return
		}
		var body resetConfirmRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		err := svc.ResetPassword(r.Context(), identity.ResetPasswordInput{
			Email:       body.Email,
			Code:        body.Code,
			NewPassword: body.NewPassword,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"reset": true})
	}
}
