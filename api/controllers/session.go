package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/sacrednumerology/sacred-backend/api/responses"
	"github.com/sacrednumerology/sacred-backend/api/validators"
	"github.com/sacrednumerology/sacred-backend/internal/auth"
	"github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

// TokenHeader carries a freshly minted access token back to the client.
// The access token never appears in a response body.
const TokenHeader = "X-SN-Token"

func errMissingCredentials() error {
	return errors.New(errors.CodeUnauthorized, "missing credentials")
}

type sessionBody struct {
	User         any       `json:"user,omitempty"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func bearerToken(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return "", errMissingCredentials()
	}
	return raw, nil
}

func writeSession(w http.ResponseWriter, s *auth.Session) {
	w.Header().Set(TokenHeader, s.AccessToken)
	body := sessionBody{
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt.UTC(),
	}
	if s.User != nil {
		body.User = s.User
	}
	responses.WriteSuccess(w, body)
}

// AuthLogin exchanges email and password for a session.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		s, err := svc.Login(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		writeSession(w, s)
	}
}

// AuthLogout revokes the session behind the presented access token.
func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token, err := bearerToken(r)
		if err == nil {
			err = svc.Logout(ctx, token)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

// AuthRefresh rotates the refresh token. The expired access token rides in
// the Authorization header so the session can be located.
func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body auth.RefreshRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		token, err := bearerToken(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		body.AccessToken = token

		s, err := svc.Refresh(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		writeSession(w, s)
	}
}
