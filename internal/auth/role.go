package auth

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Role is a flat authorization tag. The set is closed; keep the wire names
// stable, they are embedded in issued access tokens.
type Role string

const (
	RoleAdmin Role = "ROLE_ADMIN"
	RoleUser  Role = "ROLE_USER"
	RoleGuest Role = "ROLE_GUEST"
)

var knownRoles = []Role{RoleAdmin, RoleUser, RoleGuest}

const roleSeparator = ","

func (r Role) Valid() bool { return lo.Contains(knownRoles, r) }

func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// ParseRoles decodes a comma-joined role claim. An empty claim yields no roles;
// any unknown member fails the whole claim.
func ParseRoles(claim string) ([]Role, error) {
	if strings.TrimSpace(claim) == "" {
		return nil, nil
	}
	out := make([]Role, 0, strings.Count(claim, roleSeparator)+1)
	for _, part := range strings.Split(claim, roleSeparator) {
		r, err := ParseRole(part)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return lo.Uniq(out), nil
}

// JoinRoles encodes roles as a single comma-joined claim, dropping duplicates.
func JoinRoles(roles []Role) string {
	names := lo.Map(lo.Uniq(roles), func(r Role, _ int) string { return string(r) })
	return strings.Join(names, roleSeparator)
}

// HasAnyRole reports whether have and want intersect.
func HasAnyRole(have []Role, want ...Role) bool {
	return len(lo.Intersect(have, want)) > 0
}
