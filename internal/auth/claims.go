package auth

import "github.com/golang-jwt/jwt/v5"

type TokenKind string

const (
	TokenKindAccess  TokenKind = "ACCESS"
	TokenKindRefresh TokenKind = "REFRESH"
)

func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// Claims is the only supported JWT claims shape for this service.
// Role is a comma-joined role list and is present on access tokens only.
type Claims struct {
	jwt.RegisteredClaims

	Role string    `json:"role,omitempty"`
	Kind TokenKind `json:"type"`
}
