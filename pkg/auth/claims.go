// Package auth mints and verifies the bearer tokens that identify marketplace
// users. Token issuance at login lives outside this service; the API only
// verifies.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller derived from verified claims.
type Principal struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the caller may use admin routes.
func (p Principal) IsAdmin() bool {
	return p.Role == enums.UserRoleAdmin
}
