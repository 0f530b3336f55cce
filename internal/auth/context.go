package auth

import (
	"context"
	"errors"
)

type ctxKey int

const ctxPrincipal ctxKey = iota

var ErrNoPrincipal = errors.New("principal not in context")

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipal, p)
}

func PrincipalFrom(ctx context.Context) (Principal, error) {
	if p, ok := ctx.Value(ctxPrincipal).(Principal); ok && p.Subject != "" {
		return p, nil
	}
	return Principal{}, ErrNoPrincipal
}

// Subject returns the authenticated subject, or "" for anonymous requests.
func Subject(ctx context.Context) string {
	p, err := PrincipalFrom(ctx)
	if err != nil {
		return ""
	}
	return p.Subject
}
