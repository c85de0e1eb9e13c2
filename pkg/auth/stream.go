package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StreamAudience is the only audience a stream ticket is valid for.
const StreamAudience = "stream"

// StreamTicketSigner mints and verifies stream tickets. The secret is kept apart from
// the access-token secret so a leaked ticket can never pass as a session.
type StreamTicketSigner struct {
	secret string
	issuer string
	ttl    time.Duration
}

// NewStreamTicketSigner validates and builds a signer.
func NewStreamTicketSigner(secret, issuer string, ttl time.Duration) (*StreamTicketSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("stream ticket secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("stream ticket ttl must be positive")
	}
	return &StreamTicketSigner{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// TTL returns the configured ticket lifetime.
func (s *StreamTicketSigner) TTL() time.Duration {
	return s.ttl
}

// Mint issues a ticket for the asset and identity, valid from now for the configured TTL.
func (s *StreamTicketSigner) Mint(now time.Time, userID uuid.UUID, email string, assetID uuid.UUID) (string, time.Time, error) {
	if userID == uuid.Nil || assetID == uuid.Nil {
		return "", time.Time{}, fmt.Errorf("user and asset are required")
	}
	expiresAt := now.Add(s.ttl)
	claims := StreamTicketClaims{
		UserID:  userID,
		Email:   email,
		AssetID: assetID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{StreamAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := sign(s.secret, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, audience and expiry as of now.
func (s *StreamTicketSigner) Parse(now time.Time, ticket string) (*StreamTicketClaims, error) {
	claims := &StreamTicketClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithAudience(StreamAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if _, err := jwt.NewParser(opts...).ParseWithClaims(ticket, claims, keyFunc(s.secret)); err != nil {
		return nil, err
	}
	return claims, nil
}
