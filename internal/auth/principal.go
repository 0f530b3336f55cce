package auth

import "time"

// Principal is the identity resolved from a verified token. It lives for a
// single request or verification call and is never persisted.
type Principal struct {
	Subject   string
	Roles     []Role
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (p Principal) IsAccess() bool { return p.Kind == TokenKindAccess }

// HasAnyRole is false for refresh principals, which carry no roles.
func (p Principal) HasAnyRole(roles ...Role) bool {
	return HasAnyRole(p.Roles, roles...)
}
