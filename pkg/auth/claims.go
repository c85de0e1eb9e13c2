package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Email  string         `json:"email"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// StreamTicketClaims binds one protected asset to one identity for a short window.
type StreamTicketClaims struct {
	UserID  uuid.UUID `json:"user_id"`
	Email   string    `json:"email"`
	AssetID uuid.UUID `json:"asset_id"`
	jwt.RegisteredClaims
}
