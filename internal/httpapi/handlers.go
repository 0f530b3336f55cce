package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"admin-auth/internal/audit"
	"admin-auth/internal/auth"
	"admin-auth/internal/federation"
	"admin-auth/internal/identity"
	"admin-auth/internal/login"
	"admin-auth/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ConsentURLBuilder is satisfied by *federation.GoogleExchange.
type ConsentURLBuilder interface {
	AuthCodeURL(state string) string
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *login.Service
	Accounts identity.Store
	Audit    *audit.Service
	// Consent is nil when federated login is not configured.
	Consent ConsentURLBuilder
}

func meta(c *gin.Context) login.RequestMeta {
	return login.RequestMeta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// authFailure maps a login service error onto the response envelope.
func authFailure(c *gin.Context, err error) {
	if login.Code(err) == login.CodeInternal {
		logger.From(c.Request.Context()).Error("auth request failed", "err", err)
	}
	fail(c, login.HTTPStatus(err), login.Code(err), login.Message(err))
}

// --- Auth ---

type loginRequest struct {
	UserID  string `json:"userId"`
	UserPwd string `json:"userPwd"`
}

// Login checks credentials and issues a token pair.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeValidation, messageBadJSON)
		return
	}
	if strings.TrimSpace(req.UserID) == "" || req.UserPwd == "" {
		fail(c, http.StatusBadRequest, codeValidation, "userId and userPwd are required.")
		return
	}
	out, err := h.Auth.Login(c.Request.Context(), req.UserID, req.UserPwd, meta(c))
	if err != nil {
		authFailure(c, err)
		return
	}
	ok(c, http.StatusOK, "Login successful.", out)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeValidation, messageBadJSON)
		return
	}
	if req.RefreshToken == "" {
		fail(c, http.StatusBadRequest, codeValidation, "refreshToken is required.")
		return
	}
	out, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		authFailure(c, err)
		return
	}
	ok(c, http.StatusOK, "Token refreshed.", out)
}

type tokenRequest struct {
	Token string `json:"token"`
}

// Validate always answers 200; validity is in the body.
func (h Handlers) Validate(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeValidation, messageBadJSON)
		return
	}
	res := h.Auth.Validate(c.Request.Context(), req.Token)
	ok(c, http.StatusOK, res.Message, res)
}

// Logout takes the token from the body or, failing that, the Authorization
// header. It always succeeds.
func (h Handlers) Logout(c *gin.Context) {
	var req tokenRequest
	_ = c.ShouldBindJSON(&req)
	tok := req.Token
	if tok == "" {
		tok, _ = auth.BearerToken(c.GetHeader("Authorization"))
	}
	h.Auth.Logout(c.Request.Context(), tok)
	ok(c, http.StatusOK, "Logged out.", nil)
}

// --- Federated login ---

type googleLoginRequest struct {
	Code string `json:"code"`
}

// GoogleLogin trades an authorization code for a token pair. State checking
// belongs to the client that received the provider redirect.
func (h Handlers) GoogleLogin(c *gin.Context) {
	var req googleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeValidation, messageBadJSON)
		return
	}
	if req.Code == "" {
		fail(c, http.StatusBadRequest, codeValidation, "code is required.")
		return
	}
	out, err := h.Auth.FederatedLogin(c.Request.Context(), req.Code, meta(c))
	if err != nil {
		authFailure(c, err)
		return
	}
	ok(c, http.StatusOK, "Login successful.", out)
}

// GoogleURL returns the consent URL and the state embedded in it. No copy of
// the state is kept here: the client stores it and compares it with the
// state on the provider redirect before posting the code to GoogleLogin.
func (h Handlers) GoogleURL(c *gin.Context) {
	if h.Consent == nil {
		fail(c, http.StatusServiceUnavailable, codeFederationOff, "Federated login is not configured.")
		return
	}
	state, err := federation.NewState()
	if err != nil {
		logger.From(c.Request.Context()).Error("state generation failed", "err", err)
		fail(c, http.StatusInternalServerError, codeInternal, messageInternal)
		return
	}
	ok(c, http.StatusOK, "", gin.H{"url": h.Consent.AuthCodeURL(state), "state": state})
}

// --- Principal ---

type meResponse struct {
	Subject   string      `json:"subject"`
	Roles     []auth.Role `json:"roles"`
	TokenType string      `json:"tokenType"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Me echoes the verified principal. No store lookup.
func (h Handlers) Me(c *gin.Context) {
	p, err := auth.PrincipalFrom(c.Request.Context())
	if err != nil {
		fail(c, http.StatusUnauthorized, codeUnauthorized, messageAuthRequired)
		return
	}
	ok(c, http.StatusOK, "", meResponse{Subject: p.Subject, Roles: p.Roles, TokenType: string(p.Kind), ExpiresAt: p.ExpiresAt})
}

// --- Admin ---

type assignRoleRequest struct {
	Role string `json:"role"`
}

// AssignRole grants a role to an account. RBAC: ROLE_ADMIN.
// Tokens already issued keep their old roles until they expire.
func (h Handlers) AssignRole(c *gin.Context) {
	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeValidation, messageBadJSON)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		fail(c, http.StatusBadRequest, codeValidation, "Unknown role.")
		return
	}

	ctx := c.Request.Context()
	target := c.Param("id")
	if err := h.Accounts.AssignRole(ctx, target, role); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			fail(c, http.StatusNotFound, codeNotFound, "Account not found.")
			return
		}
		logger.From(ctx).Error("assign role failed", "target", target, "err", err)
		fail(c, http.StatusInternalServerError, codeInternal, messageInternal)
		return
	}

	if h.Audit != nil {
		if err := h.Audit.LogRoleAssigned(ctx, auth.Subject(ctx), target, string(role), c.ClientIP()); err != nil {
			logger.From(ctx).Warn("audit append failed", "err", err)
		}
	}

	acct, err := h.Accounts.FindByID(ctx, target)
	if err != nil {
		logger.From(ctx).Error("reload account failed", "target", target, "err", err)
		fail(c, http.StatusInternalServerError, codeInternal, messageInternal)
		return
	}
	ok(c, http.StatusOK, "Role assigned.", gin.H{"id": acct.ID, "roles": acct.Roles})
}

// --- Ops ---

func (h Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
