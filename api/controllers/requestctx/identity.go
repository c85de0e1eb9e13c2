// Package requestctx resolves the verified caller of a request.
package requestctx

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/api/middleware"
	"github.com/sacrednumerology/sacred-backend/internal/access"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
)

// ResolveUserID returns the authenticated user. Identity is never read from the body.
func ResolveUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// OptionalUserID is ResolveUserID for routes that also serve anonymous callers.
func OptionalUserID(r *http.Request) *uuid.UUID {
	id, err := ResolveUserID(r)
	if err != nil {
		return nil
	}
	return &id
}

// ResolveIdentity returns the caller as the access gate sees it.
func ResolveIdentity(r *http.Request) (access.Identity, error) {
	id, err := ResolveUserID(r)
	if err != nil {
		return access.Identity{}, err
	}
	return access.Identity{UserID: id, Email: middleware.EmailFromContext(r.Context())}, nil
}
