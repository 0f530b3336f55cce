package login

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"admin-auth/internal/audit"
	"admin-auth/internal/auth"
	"admin-auth/internal/config"
	"admin-auth/internal/federation"
	"admin-auth/internal/identity"
	"admin-auth/internal/password"
	"admin-auth/internal/throttle"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeExchange struct {
	profile federation.Profile
	err     error
	calls   int
}

func (f *fakeExchange) Exchange(_ context.Context, _ string) (federation.Profile, error) {
	f.calls++
	return f.profile, f.err
}

type failingRecorder struct{}

func (failingRecorder) Append(context.Context, audit.Event) error { return errors.New("audit down") }

type brokenStore struct{ identity.Store }

func (brokenStore) FindByID(context.Context, string) (identity.Account, error) {
	return identity.Account{}, errors.New("connection reset")
}

// racyStore hides existing emails from the first misses lookups, as if another
// request created the account between lookup and insert.
type racyStore struct {
	identity.Store
	misses int
}

func (r *racyStore) FindByEmail(ctx context.Context, email string) (identity.Account, error) {
	if r.misses > 0 {
		r.misses--
		return identity.Account{}, identity.ErrNotFound
	}
	return r.Store.FindByEmail(ctx, email)
}

type fixture struct {
	svc    *Service
	codec  *auth.Codec
	hasher *password.Hasher
	store  *identity.MemoryStore
	events *audit.MemoryRepo
	now    time.Time
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	codec, err := auth.NewCodec(config.AuthConfig{
		JWTSecret:       testSecret,
		AccessTokenTTL:  config.DefaultAccessTokenTTL,
		RefreshTokenTTL: config.DefaultRefreshTokenTTL,
	})
	require.NoError(t, err)
	hasher, err := password.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	store := identity.NewMemoryStore()
	hash, err := hasher.Hash("12345678")
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), identity.Account{
		ID:           "admin",
		PasswordHash: hash,
		DisplayName:  "Administrator",
		Email:        "admin@example.com",
		Provider:     identity.ProviderLocal,
		Roles:        []auth.Role{auth.RoleAdmin},
	}))

	events := audit.NewMemoryRepo()
	d := Deps{Codec: codec, Hasher: hasher, Store: store, Events: audit.NewService(events)}
	if mutate != nil {
		mutate(&d)
	}
	svc, err := NewService(d)
	require.NoError(t, err)

	f := &fixture{svc: svc, codec: codec, hasher: hasher, store: store, events: events, now: time.Now().Truncate(time.Second)}
	svc.clock = func() time.Time { return f.now }
	return f
}

func (f *fixture) eventTypes() []audit.EventType {
	var out []audit.EventType
	for _, e := range f.events.Events() {
		out = append(out, e.Type)
	}
	return out
}

func TestLogin_AdminScenario(t *testing.T) {
	f := newFixture(t, nil)

	out, err := f.svc.Login(context.Background(), "admin", "12345678", RequestMeta{IP: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)

	assert.NotEmpty(t, out.AccessToken)
	assert.NotEmpty(t, out.RefreshToken)
	assert.Equal(t, "Bearer", out.TokenType)
	assert.Equal(t, int64(1800000), out.ExpiresIn)
	assert.Equal(t, []auth.Role{auth.RoleAdmin}, out.User.Roles)
	assert.Equal(t, "admin", out.User.ID)
	assert.Equal(t, "Administrator", out.User.Name)
	assert.Equal(t, identity.ProviderLocal, out.User.Provider)

	p, err := f.codec.Verify(out.AccessToken, f.now)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenKindAccess, p.Kind)
	assert.Equal(t, []auth.Role{auth.RoleAdmin}, p.Roles)

	r, err := f.codec.Verify(out.RefreshToken, f.now)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenKindRefresh, r.Kind)
	assert.Empty(t, r.Roles)

	evs := f.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, audit.EventLoginSucceeded, evs[0].Type)
	assert.Equal(t, "10.0.0.1", evs[0].IPAddress)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, errUnknown := f.svc.Login(ctx, "nouser", "anything", RequestMeta{})
	_, errWrong := f.svc.Login(ctx, "admin", "wrongpass", RequestMeta{})

	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Equal(t, Code(errUnknown), Code(errWrong))
	assert.Equal(t, Message(errUnknown), Message(errWrong))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(errWrong))

	assert.Equal(t, []audit.EventType{audit.EventLoginFailed, audit.EventLoginFailed}, f.eventTypes())
}

func TestLogin_EmptySecretFails(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Login(context.Background(), "admin", "", RequestMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_StoreErrorIsInternal(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Store = brokenStore{d.Store} })
	_, err := f.svc.Login(context.Background(), "admin", "12345678", RequestMeta{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, CodeInternal, Code(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestLogin_AuditFailureDoesNotFailLogin(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Events = failingRecorder{} })
	_, err := f.svc.Login(context.Background(), "admin", "12345678", RequestMeta{})
	assert.NoError(t, err)
}

func TestLogin_ThrottlesRepeatedFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	limiter, err := throttle.NewLoginThrottle(rdb, 2, time.Minute)
	require.NoError(t, err)

	f := newFixture(t, func(d *Deps) { d.Limiter = limiter })
	ctx := context.Background()

	// A success resets the counter.
	_, err = f.svc.Login(ctx, "admin", "bad", RequestMeta{})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "admin", "12345678", RequestMeta{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.svc.Login(ctx, "admin", "bad", RequestMeta{})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = f.svc.Login(ctx, "admin", "12345678", RequestMeta{})
	require.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Equal(t, CodeTooManyAttempts, Code(err))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(err))

	// Unknown identifiers are throttled the same way.
	for i := 0; i < 2; i++ {
		_, _ = f.svc.Login(ctx, "nouser", "x", RequestMeta{})
	}
	_, err = f.svc.Login(ctx, "nouser", "x", RequestMeta{})
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	mr.FastForward(time.Minute + time.Second)
	_, err = f.svc.Login(ctx, "admin", "12345678", RequestMeta{})
	assert.NoError(t, err)
}

func TestLogin_LimiterOutageFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	limiter, err := throttle.NewLoginThrottle(rdb, 1, time.Minute)
	require.NoError(t, err)
	mr.Close()

	f := newFixture(t, func(d *Deps) { d.Limiter = limiter })
	_, err = f.svc.Login(context.Background(), "admin", "12345678", RequestMeta{})
	assert.NoError(t, err)
}

func TestRefresh_IssuesNewPairWithCurrentRoles(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.svc.Login(ctx, "admin", "12345678", RequestMeta{})
	require.NoError(t, err)
	require.NoError(t, f.store.AssignRole(ctx, "admin", auth.RoleUser))

	f.now = f.now.Add(time.Hour)
	next, err := f.svc.Refresh(ctx, out.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", next.TokenType)
	assert.Equal(t, []auth.Role{auth.RoleAdmin, auth.RoleUser}, next.User.Roles)

	p, err := f.codec.Verify(next.AccessToken, f.now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []auth.Role{auth.RoleAdmin, auth.RoleUser}, p.Roles)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.svc.Login(context.Background(), "admin", "12345678", RequestMeta{})
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), out.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, CodeInvalidToken, Code(err))
}

func TestRefresh_ExpiredTokenIssuesNothing(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.svc.Login(context.Background(), "admin", "12345678", RequestMeta{})
	require.NoError(t, err)

	later := f.now.Add(config.DefaultRefreshTokenTTL)
	f.svc.clock = func() time.Time { return later }

	next, err := f.svc.Refresh(context.Background(), out.RefreshToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Equal(t, CodeTokenExpired, Code(err))
	assert.Equal(t, Outcome{}, next)
}

func TestRefresh_RejectsGarbageAndForeignTokens(t *testing.T) {
	f := newFixture(t, nil)
	for _, tok := range []string{"", "abc123", "a.b.c"} {
		_, err := f.svc.Refresh(context.Background(), tok)
		assert.ErrorIs(t, err, ErrInvalidToken, tok)
	}
}

func TestRefresh_RejectsDeletedAccount(t *testing.T) {
	f := newFixture(t, nil)
	tok, _, err := f.codec.Issue("ghost", nil, auth.TokenKindRefresh, f.now)
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// Refresh tokens are not single-use. Replaying one keeps minting pairs until
// it expires; this is a known weakness kept on purpose.
func TestRefresh_ReplayIsAccepted(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.svc.Login(context.Background(), "admin", "12345678", RequestMeta{})
	require.NoError(t, err)

	first, err := f.svc.Refresh(context.Background(), out.RefreshToken)
	require.NoError(t, err)
	second, err := f.svc.Refresh(context.Background(), out.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestValidate_IsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.svc.Login(context.Background(), "admin", "12345678", RequestMeta{})
	require.NoError(t, err)

	a := f.svc.Validate(context.Background(), out.AccessToken)
	b := f.svc.Validate(context.Background(), out.AccessToken)
	assert.True(t, a.Valid)
	assert.Equal(t, "admin", a.Subject)
	assert.Equal(t, []auth.Role{auth.RoleAdmin}, a.Roles)
	assert.Equal(t, a, b)
}

func TestValidate_CollapsesFailures(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.svc.Login(context.Background(), "admin", "12345678", RequestMeta{})
	require.NoError(t, err)

	r := f.svc.Validate(context.Background(), "abc123")
	assert.False(t, r.Valid)
	assert.Empty(t, r.Subject)
	assert.Contains(t, r.Message, "malformed")

	parts := strings.Split(out.AccessToken, ".")
	r = f.svc.Validate(context.Background(), parts[0]+"."+parts[1]+".AAAA")
	assert.False(t, r.Valid)
	assert.Contains(t, r.Message, "signature")

	f.svc.clock = func() time.Time { return f.now.Add(config.DefaultAccessTokenTTL) }
	r = f.svc.Validate(context.Background(), out.AccessToken)
	assert.False(t, r.Valid)
	assert.Contains(t, r.Message, "expired")
}

func TestValidate_RefreshTokenHasNoRoles(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.svc.Login(context.Background(), "admin", "12345678", RequestMeta{})
	require.NoError(t, err)

	r := f.svc.Validate(context.Background(), out.RefreshToken)
	assert.True(t, r.Valid)
	assert.Equal(t, "admin", r.Subject)
	assert.Empty(t, r.Roles)
}

func TestLogout_NeverFails(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.svc.Login(context.Background(), "admin", "12345678", RequestMeta{})
	require.NoError(t, err)

	f.svc.Logout(context.Background(), "garbage")
	f.svc.Logout(context.Background(), "")
	f.svc.Logout(context.Background(), out.AccessToken)

	assert.Equal(t, []audit.EventType{audit.EventLoginSucceeded, audit.EventLogout}, f.eventTypes())

	// Still valid: logout revokes nothing.
	assert.True(t, f.svc.Validate(context.Background(), out.AccessToken).Valid)
}

func TestFederatedLogin_CreatesGoogleAccount(t *testing.T) {
	ex := &fakeExchange{profile: federation.Profile{ExternalID: "g-42", Email: "jane@example.com", EmailVerified: true, Name: "Jane"}}
	f := newFixture(t, func(d *Deps) { d.Exchange = ex })
	ctx := context.Background()

	out, err := f.svc.FederatedLogin(ctx, "code", RequestMeta{IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, []auth.Role{auth.RoleUser}, out.User.Roles)
	assert.Equal(t, identity.ProviderGoogle, out.User.Provider)
	assert.Equal(t, "jane@example.com", out.User.Email)
	assert.Regexp(t, `^jane_[0-9a-f]{8}$`, out.User.ID)

	acct, err := f.store.FindByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, acct.ID)
	assert.Equal(t, identity.ProviderGoogle, acct.Provider)
	assert.Equal(t, "g-42", acct.ExternalID)
	assert.Equal(t, []auth.Role{auth.RoleUser}, acct.Roles)
	assert.NotEmpty(t, acct.PasswordHash)
	assert.False(t, f.hasher.Matches("", acct.PasswordHash))

	p, err := f.codec.Verify(out.AccessToken, f.now)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, p.Subject)
	assert.Equal(t, []auth.Role{auth.RoleUser}, p.Roles)

	// Second login reuses the account.
	again, err := f.svc.FederatedLogin(ctx, "code", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, again.User.ID)
}

func TestFederatedLogin_RelinksLocalAccount(t *testing.T) {
	ex := &fakeExchange{profile: federation.Profile{ExternalID: "g-7", Email: "ADMIN@example.com", EmailVerified: true, Name: "Admin G"}}
	f := newFixture(t, func(d *Deps) { d.Exchange = ex })
	ctx := context.Background()

	out, err := f.svc.FederatedLogin(ctx, "code", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "admin", out.User.ID)
	assert.Equal(t, []auth.Role{auth.RoleAdmin}, out.User.Roles)
	assert.Equal(t, identity.ProviderGoogle, out.User.Provider)

	acct, err := f.store.FindByID(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, identity.ProviderGoogle, acct.Provider)
	assert.Equal(t, "g-7", acct.ExternalID)
	assert.Contains(t, f.eventTypes(), audit.EventProviderLinked)
}

func TestFederatedLogin_RelinksAccountClaimedConcurrently(t *testing.T) {
	ex := &fakeExchange{profile: federation.Profile{ExternalID: "g-9", Email: "admin@example.com", EmailVerified: true}}
	racy := &racyStore{misses: 1}
	f := newFixture(t, func(d *Deps) {
		racy.Store = d.Store
		d.Store = racy
		d.Exchange = ex
	})
	ctx := context.Background()

	out, err := f.svc.FederatedLogin(ctx, "code", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "admin", out.User.ID)
	assert.Equal(t, identity.ProviderGoogle, out.User.Provider)
	assert.Equal(t, []auth.Role{auth.RoleAdmin}, out.User.Roles)

	acct, err := f.store.FindByID(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, identity.ProviderGoogle, acct.Provider)
	assert.Equal(t, "g-9", acct.ExternalID)
	assert.Contains(t, f.eventTypes(), audit.EventProviderLinked)
}

func TestFederatedLogin_UnverifiedEmailIsNotMerged(t *testing.T) {
	ex := &fakeExchange{profile: federation.Profile{ExternalID: "g-7", Email: "admin@example.com", EmailVerified: false}}
	f := newFixture(t, func(d *Deps) { d.Exchange = ex })
	ctx := context.Background()

	out, err := f.svc.FederatedLogin(ctx, "code", RequestMeta{})
	assert.ErrorIs(t, err, ErrAccountConflict)
	assert.Equal(t, CodeAccountConflict, Code(err))
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
	assert.Equal(t, Outcome{}, out)

	acct, err := f.store.FindByID(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, identity.ProviderLocal, acct.Provider)
	assert.Empty(t, acct.ExternalID)
	assert.NotContains(t, f.eventTypes(), audit.EventProviderLinked)
}

func TestFederatedLogin_UnverifiedEmailCanCreateAccount(t *testing.T) {
	ex := &fakeExchange{profile: federation.Profile{ExternalID: "g-1", Email: "new@example.com"}}
	f := newFixture(t, func(d *Deps) { d.Exchange = ex })

	out, err := f.svc.FederatedLogin(context.Background(), "code", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, identity.ProviderGoogle, out.User.Provider)
}

func TestFederatedLogin_ExchangeFailure(t *testing.T) {
	ex := &fakeExchange{err: federation.ErrExchangeFailed}
	f := newFixture(t, func(d *Deps) { d.Exchange = ex })

	out, err := f.svc.FederatedLogin(context.Background(), "bad-code", RequestMeta{})
	assert.ErrorIs(t, err, ErrProviderExchangeFailed)
	assert.Equal(t, CodeProviderExchange, Code(err))
	assert.Equal(t, Outcome{}, out)
	assert.Equal(t, 1, ex.calls)
}

func TestFederatedLogin_Disabled(t *testing.T) {
	f := newFixture(t, nil)
	assert.False(t, f.svc.FederationEnabled())
	_, err := f.svc.FederatedLogin(context.Background(), "code", RequestMeta{})
	assert.ErrorIs(t, err, ErrProviderExchangeFailed)
}

func TestNewService_RequiresCoreDeps(t *testing.T) {
	_, err := NewService(Deps{})
	assert.Error(t, err)
}

func TestLocalPart(t *testing.T) {
	cases := []struct{ in, want string }{
		{"jane@example.com", "jane"},
		{"Jane.Doe+tag@x.io", "jane.doetag"},
		{"@example.com", "user"},
		{"한글@example.com", "user"},
		{strings.Repeat("a", 40), strings.Repeat("a", 32)},
		{"  MiXeD_Case-1@x.y  ", "mixed_case-1"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, localPart(tc.in), tc.in)
	}
}

func TestCodeMapping(t *testing.T) {
	assert.Equal(t, CodeInvalidCredentials, Code(ErrInvalidCredentials))
	assert.Equal(t, CodeInvalidToken, Code(ErrInvalidToken))
	assert.Equal(t, CodeTokenExpired, Code(ErrExpiredToken))
	assert.Equal(t, CodeAccountConflict, Code(ErrAccountConflict))
	assert.Equal(t, CodeInternal, Code(errors.New("boom")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrAccountConflict))
}
