package auth

import (
	"errors"
	"fmt"
	"time"

	"admin-auth/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Codec issues and verifies signed tokens. It is built once at startup and
// is read-only afterwards, so it is safe for concurrent use without locking.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCodec(cfg config.AuthConfig) (*Codec, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < config.MinSecretBytes {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", config.MinSecretBytes)
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}

	secret := make([]byte, len(cfg.JWTSecret))
	copy(secret, cfg.JWTSecret)

	return &Codec{
		secret:     secret,
		issuer:     cfg.JWTIssuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

/* ===================== ISSUE TOKENS ===================== */

// Issue signs a token for subject. Access tokens carry the role claim,
// refresh tokens never do. The returned expiry is exactly the encoded exp
// claim (JWT NumericDate, second precision).
func (c *Codec) Issue(subject string, roles []Role, kind TokenKind, now time.Time) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}

	var ttl time.Duration
	var roleClaim string
	switch kind {
	case TokenKindAccess:
		ttl = c.accessTTL
		for _, r := range roles {
			if !r.Valid() {
				return "", time.Time{}, fmt.Errorf("cannot issue token with unknown role %q", r)
			}
		}
		roleClaim = JoinRoles(roles)
	case TokenKindRefresh:
		ttl = c.refreshTTL
	default:
		return "", time.Time{}, fmt.Errorf("unknown token kind %q", kind)
	}

	exp := jwt.NewNumericDate(now.Add(ttl))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
			ID:        uuid.NewString(),
		},
		Role: roleClaim,
		Kind: kind,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", kind, err)
	}
	return signed, exp.Time, nil
}

/* ===================== VERIFY TOKEN ===================== */

// Verify checks signature, expiry and claim shape at instant now.
// A token is expired when now >= exp. Token kind is reported, not enforced.
func (c *Codec) Verify(tokenString string, now time.Time) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return Principal{}, classify(err)
	}

	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: subject missing", ErrTokenClaims)
	}
	if !claims.Kind.Valid() {
		return Principal{}, fmt.Errorf("%w: unknown token type %q", ErrTokenClaims, claims.Kind)
	}

	p := Principal{
		Subject:   claims.Subject,
		Kind:      claims.Kind,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}

	// Refresh tokens never carry roles, whatever the payload says.
	if claims.Kind == TokenKindAccess {
		roles, err := ParseRoles(claims.Role)
		if err != nil {
			return Principal{}, fmt.Errorf("%w: %w", ErrTokenClaims, err)
		}
		p.Roles = roles
	}
	return p, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrTokenSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrTokenClaims, err)
	}
}
