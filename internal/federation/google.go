package federation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"admin-auth/internal/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// maxProfileBytes caps how much of the profile response is read.
const maxProfileBytes = 1 << 20

var ErrExchangeFailed = errors.New("federation: provider exchange failed")

// Profile is what the provider tells us about the user.
type Profile struct {
	ExternalID    string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// GoogleExchange runs the authorization-code flow against Google:
// code -> provider access token -> profile. It keeps no state between calls.
type GoogleExchange struct {
	oauth       *oauth2.Config
	userInfoURL string
	client      *http.Client
}

func NewGoogleExchange(cfg config.GoogleConfig) (*GoogleExchange, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("google client id, secret and redirect url are required")
	}

	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	// client_id/client_secret travel in the form body with the code.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	userInfo := cfg.UserInfoURL
	if userInfo == "" {
		userInfo = defaultUserInfoURL
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = config.DefaultGoogleTimeout
	}

	return &GoogleExchange{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: userInfo,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

// AuthCodeURL builds the consent redirect for state.
func (g *GoogleExchange) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// NewState returns a random value for the OAuth2 state parameter.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Exchange trades code for the user's profile. Any failure on either leg is
// reported as ErrExchangeFailed wrapping the cause.
func (g *GoogleExchange) Exchange(ctx context.Context, code string) (Profile, error) {
	if strings.TrimSpace(code) == "" {
		return Profile{}, fmt.Errorf("%w: empty authorization code", ErrExchangeFailed)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: token exchange: %w", ErrExchangeFailed, err)
	}
	if tok.AccessToken == "" {
		return Profile{}, fmt.Errorf("%w: token exchange: empty access token", ErrExchangeFailed)
	}

	p, err := g.fetchProfile(ctx, tok)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: userinfo: %w", ErrExchangeFailed, err)
	}
	return p, nil
}

func (g *GoogleExchange) fetchProfile(ctx context.Context, tok *oauth2.Token) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return Profile{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Profile{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return Profile{}, errors.New("empty body")
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, fmt.Errorf("decode: %w", err)
	}
	if strings.TrimSpace(p.Email) == "" {
		return Profile{}, errors.New("profile has no email")
	}
	return p, nil
}
