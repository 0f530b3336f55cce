package login

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"admin-auth/internal/audit"
	"admin-auth/internal/auth"
	"admin-auth/internal/federation"
	"admin-auth/internal/identity"
	"admin-auth/internal/throttle"
	"admin-auth/pkg/logger"

	"github.com/google/uuid"
)

// Service runs the login, refresh, validate, logout and federated-login
// transitions.
//
// State invariants:
// - Nothing is kept between calls; accounts are re-read from the store each time.
// - Issued tokens are never recorded, so they cannot be revoked. Logout is a no-op.
// - Refresh tokens are not single-use: any unexpired one mints a new pair.
type Service struct {
	codec    TokenCodec
	hasher   PasswordHasher
	store    identity.Store
	exchange Exchanger
	limiter  AttemptLimiter
	events   EventRecorder

	// dummyHash is compared against when the account does not exist so both
	// failure paths pay for one bcrypt check.
	dummyHash string

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// Deps wires the service. Exchange, Limiter and Events are optional; leave
// them nil (untyped) to disable federated login, throttling and audit.
type Deps struct {
	Codec    TokenCodec
	Hasher   PasswordHasher
	Store    identity.Store
	Exchange Exchanger
	Limiter  AttemptLimiter
	Events   EventRecorder
}

func NewService(d Deps) (*Service, error) {
	if d.Codec == nil || d.Hasher == nil || d.Store == nil {
		return nil, errors.New("login: codec, hasher and store are required")
	}
	dummy, err := d.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("login: prepare dummy hash: %w", err)
	}
	return &Service{
		codec:     d.Codec,
		hasher:    d.Hasher,
		store:     d.Store,
		exchange:  d.Exchange,
		limiter:   d.Limiter,
		events:    d.Events,
		dummyHash: dummy,
		clock:     time.Now,
	}, nil
}

func (s *Service) FederationEnabled() bool { return s.exchange != nil }

/* ===================== LOGIN ===================== */

// Login checks identifier/secret and issues a token pair. An unknown
// identifier and a wrong secret fail identically.
func (s *Service) Login(ctx context.Context, identifier, secret string, meta RequestMeta) (Outcome, error) {
	log := logger.From(ctx)
	id := strings.TrimSpace(identifier)

	if err := s.allow(ctx, id); err != nil {
		s.record(ctx, audit.Event{Type: audit.EventLoginThrottled, Subject: id, IPAddress: meta.IP, UserAgent: meta.UserAgent})
		return Outcome{}, err
	}

	acct, err := s.store.FindByID(ctx, id)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		s.hasher.Matches(secret, s.dummyHash)
		return Outcome{}, s.loginFailed(ctx, id, "unknown identifier", meta)
	case err != nil:
		return Outcome{}, fmt.Errorf("find account: %w", err)
	}

	if secret == "" || !s.hasher.Matches(secret, acct.PasswordHash) {
		return Outcome{}, s.loginFailed(ctx, id, "secret mismatch", meta)
	}

	out, err := s.issuePair(acct)
	if err != nil {
		return Outcome{}, err
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, id); err != nil {
			log.Warn("login limiter reset failed", "err", err)
		}
	}
	s.record(ctx, audit.Event{Type: audit.EventLoginSucceeded, Subject: acct.ID, IPAddress: meta.IP, UserAgent: meta.UserAgent})
	log.Info("login succeeded", "subject", acct.ID, "ip", meta.IP)
	return out, nil
}

func (s *Service) allow(ctx context.Context, id string) error {
	if s.limiter == nil {
		return nil
	}
	err := s.limiter.Allow(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, throttle.ErrTooManyAttempts):
		logger.From(ctx).Warn("login throttled", "identifier", id)
		return ErrTooManyAttempts
	default:
		// Limiter outage does not lock everyone out.
		logger.From(ctx).Error("login limiter unavailable", "err", err)
		return nil
	}
}

// loginFailed records the attempt; the reason is for logs only.
func (s *Service) loginFailed(ctx context.Context, id, reason string, meta RequestMeta) error {
	if s.limiter != nil {
		if err := s.limiter.Fail(ctx, id); err != nil {
			logger.From(ctx).Warn("login limiter update failed", "err", err)
		}
	}
	s.record(ctx, audit.Event{Type: audit.EventLoginFailed, Subject: id, IPAddress: meta.IP, UserAgent: meta.UserAgent, Message: reason})
	logger.From(ctx).Info("login failed", "identifier", id, "reason", reason, "ip", meta.IP)
	return ErrInvalidCredentials
}

/* ===================== REFRESH ===================== */

// Refresh exchanges a refresh token for a new pair with the account's
// current roles. Access tokens are rejected.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Outcome, error) {
	log := logger.From(ctx)

	p, err := s.codec.Verify(refreshToken, s.clock())
	if err != nil {
		log.Info("refresh rejected", "err", err, "token", logger.TokenHint(refreshToken))
		if errors.Is(err, auth.ErrTokenExpired) {
			return Outcome{}, fmt.Errorf("%w: %w", ErrExpiredToken, err)
		}
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if p.Kind != auth.TokenKindRefresh {
		log.Info("refresh rejected", "subject", p.Subject, "reason", "not a refresh token")
		return Outcome{}, fmt.Errorf("%w: not a refresh token", ErrInvalidToken)
	}

	acct, err := s.store.FindByID(ctx, p.Subject)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		log.Info("refresh rejected", "subject", p.Subject, "reason", "account no longer exists")
		return Outcome{}, fmt.Errorf("%w: account no longer exists", ErrInvalidToken)
	case err != nil:
		return Outcome{}, fmt.Errorf("find account: %w", err)
	}

	out, err := s.issuePair(acct)
	if err != nil {
		return Outcome{}, err
	}
	s.record(ctx, audit.Event{Type: audit.EventTokenRefreshed, Subject: acct.ID})
	log.Info("token refreshed", "subject", acct.ID)
	return out, nil
}

/* ===================== VALIDATE / LOGOUT ===================== */

// Validate reports whether token verifies right now. It never fails; the
// reason for a false result is in Message. Kind is not checked.
func (s *Service) Validate(ctx context.Context, token string) ValidationResult {
	p, err := s.codec.Verify(token, s.clock())
	if err != nil {
		logger.From(ctx).Debug("token validation failed", "err", err)
		return ValidationResult{Valid: false, Message: describe(err)}
	}
	return ValidationResult{Valid: true, Subject: p.Subject, Roles: p.Roles, Message: "Token is valid."}
}

func describe(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "Token has expired."
	case errors.Is(err, auth.ErrTokenMalformed):
		return "Token is malformed."
	case errors.Is(err, auth.ErrTokenSignature):
		return "Token signature is invalid."
	default:
		return "Token claims are invalid."
	}
}

// Logout only logs. Tokens are stateless and stay valid until they expire.
func (s *Service) Logout(ctx context.Context, token string) {
	p, err := s.codec.Verify(token, s.clock())
	if err != nil {
		logger.From(ctx).Info("logout with unverifiable token", "err", err)
		return
	}
	s.record(ctx, audit.Event{Type: audit.EventLogout, Subject: p.Subject})
	logger.From(ctx).Info("logout", "subject", p.Subject)
}

/* ===================== FEDERATED LOGIN ===================== */

const federatedSecretBytes = 32

// FederatedLogin exchanges an authorization code with the provider, finds or
// creates the matching local account by email, and issues a token pair.
// An existing account with another provider is re-linked (last writer wins)
// when the provider reports the email as verified; otherwise the call fails
// with ErrAccountConflict.
func (s *Service) FederatedLogin(ctx context.Context, code string, meta RequestMeta) (Outcome, error) {
	log := logger.From(ctx)
	if s.exchange == nil {
		return Outcome{}, fmt.Errorf("%w: federated login is not configured", ErrProviderExchangeFailed)
	}

	prof, err := s.exchange.Exchange(ctx, code)
	if err != nil {
		log.Warn("provider exchange failed", "err", err)
		return Outcome{}, fmt.Errorf("%w: %w", ErrProviderExchangeFailed, err)
	}

	acct, created, err := s.resolveFederated(ctx, prof)
	if err != nil {
		return Outcome{}, err
	}
	if created {
		log.Info("federated account created", "subject", acct.ID)
	} else if acct.Provider != identity.ProviderGoogle {
		if acct, err = s.linkGoogle(ctx, acct, prof, meta); err != nil {
			return Outcome{}, err
		}
	}

	out, err := s.issuePair(acct)
	if err != nil {
		return Outcome{}, err
	}
	s.record(ctx, audit.Event{Type: audit.EventFederatedLogin, Subject: acct.ID, IPAddress: meta.IP, UserAgent: meta.UserAgent})
	return out, nil
}

// resolveFederated finds the account owning prof.Email or creates a GOOGLE
// one. created is false when the email already belonged to an account,
// including one claimed by a concurrent request between lookup and insert.
func (s *Service) resolveFederated(ctx context.Context, prof federation.Profile) (identity.Account, bool, error) {
	acct, err := s.store.FindByEmail(ctx, prof.Email)
	switch {
	case err == nil:
		return acct, false, nil
	case !errors.Is(err, identity.ErrNotFound):
		return identity.Account{}, false, fmt.Errorf("find account by email: %w", err)
	}

	secret, err := randomSecret()
	if err != nil {
		return identity.Account{}, false, fmt.Errorf("generate local secret: %w", err)
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return identity.Account{}, false, err
	}

	local := localPart(prof.Email)
	name := prof.Name
	if name == "" {
		name = local
	}

	// The random suffix makes collisions unlikely; retry a couple of times anyway.
	for attempt := 0; attempt < 3; attempt++ {
		acct = identity.Account{
			ID:           local + "_" + randomSuffix(),
			PasswordHash: hash,
			DisplayName:  name,
			Email:        prof.Email,
			Provider:     identity.ProviderGoogle,
			ExternalID:   prof.ExternalID,
			Roles:        []auth.Role{auth.RoleUser},
		}
		err = s.store.Create(ctx, acct)
		if err == nil {
			return acct, true, nil
		}
		if !errors.Is(err, identity.ErrDuplicate) {
			return identity.Account{}, false, fmt.Errorf("create federated account: %w", err)
		}
		// The email may have been claimed concurrently; merge into that account.
		if existing, ferr := s.store.FindByEmail(ctx, prof.Email); ferr == nil {
			return existing, false, nil
		}
	}
	return identity.Account{}, false, fmt.Errorf("create federated account: %w", err)
}

// linkGoogle moves an existing account onto the GOOGLE provider (last writer
// wins). The provider must vouch for the email, or the merge is refused.
func (s *Service) linkGoogle(ctx context.Context, acct identity.Account, prof federation.Profile, meta RequestMeta) (identity.Account, error) {
	log := logger.From(ctx)
	if !prof.EmailVerified {
		log.Warn("provider link refused", "subject", acct.ID, "reason", "email not verified by provider")
		return identity.Account{}, fmt.Errorf("%w: provider email is not verified", ErrAccountConflict)
	}
	if err := s.store.LinkProvider(ctx, acct.ID, identity.ProviderGoogle, prof.ExternalID); err != nil {
		return identity.Account{}, fmt.Errorf("link provider: %w", err)
	}
	log.Info("account re-linked to provider", "subject", acct.ID, "from", acct.Provider, "to", identity.ProviderGoogle)
	s.record(ctx, audit.Event{Type: audit.EventProviderLinked, Subject: acct.ID, IPAddress: meta.IP, UserAgent: meta.UserAgent,
		Message: string(acct.Provider) + " -> " + string(identity.ProviderGoogle)})
	acct.Provider = identity.ProviderGoogle
	acct.ExternalID = prof.ExternalID
	return acct, nil
}

func randomSecret() (string, error) {
	b := make([]byte, federatedSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

const maxLocalPart = 32

// localPart turns the part of email before '@' into a safe identifier stem.
func localPart(email string) string {
	local := strings.ToLower(strings.TrimSpace(email))
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	local = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, local)
	if len(local) > maxLocalPart {
		local = local[:maxLocalPart]
	}
	if local == "" {
		local = "user"
	}
	return local
}

/* ===================== HELPERS ===================== */

func (s *Service) issuePair(acct identity.Account) (Outcome, error) {
	now := s.clock()
	access, _, err := s.codec.Issue(acct.ID, acct.Roles, auth.TokenKindAccess, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, _, err := s.codec.Issue(acct.ID, nil, auth.TokenKindRefresh, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return Outcome{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    s.codec.AccessTTL().Milliseconds(),
		User: Summary{
			ID:       acct.ID,
			Name:     acct.DisplayName,
			Email:    acct.Email,
			Roles:    append([]auth.Role(nil), acct.Roles...),
			Provider: acct.Provider,
		},
	}, nil
}

// record is best-effort; audit failures are logged and swallowed.
func (s *Service) record(ctx context.Context, e audit.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", e.Type, "err", err)
	}
}
