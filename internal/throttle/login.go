package throttle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"admin-auth/pkg/utils"

	"github.com/redis/go-redis/v9"
)

var ErrTooManyAttempts = errors.New("too many failed login attempts")

const keyPrefix = "auth:login:fail:"

// LoginThrottle counts failed logins per identifier in a fixed Redis window.
// Keys do not depend on whether the account exists.
type LoginThrottle struct {
	rdb    redis.UniversalClient
	max    int
	window time.Duration
}

func NewLoginThrottle(rdb redis.UniversalClient, maxAttempts int, window time.Duration) (*LoginThrottle, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	if maxAttempts <= 0 {
		return nil, errors.New("max attempts must be > 0")
	}
	if window <= 0 {
		return nil, errors.New("window must be > 0")
	}
	return &LoginThrottle{rdb: rdb, max: maxAttempts, window: window}, nil
}

func key(identifier string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(identifier))
}

// Allow returns ErrTooManyAttempts once the window's failure budget is spent.
func (t *LoginThrottle) Allow(ctx context.Context, identifier string) error {
	n, err := utils.WindowCount(ctx, t.rdb, key(identifier))
	if err != nil {
		return fmt.Errorf("read login counter: %w", err)
	}
	if n >= int64(t.max) {
		return ErrTooManyAttempts
	}
	return nil
}

// Fail records one failed attempt.
func (t *LoginThrottle) Fail(ctx context.Context, identifier string) error {
	if _, _, err := utils.IncrWindow(ctx, t.rdb, key(identifier), t.window); err != nil {
		return fmt.Errorf("bump login counter: %w", err)
	}
	return nil
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, identifier string) error {
	if err := t.rdb.Del(ctx, key(identifier)).Err(); err != nil {
		return fmt.Errorf("reset login counter: %w", err)
	}
	return nil
}
