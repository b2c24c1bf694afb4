package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/audit"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/sessions"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/users"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/logger"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/metrics"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/middleware"
	"github.com/gin-gonic/gin"
)

const msgInvalidCredentials = "invalid username or password"

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"rememberMe"`
}

// RefreshRequest is the body of POST /auth/refresh and the optional body of POST /auth/logout
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// IdentityView is the public projection of an identity.
type IdentityView struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// SessionResponse is returned by login and refresh.
type SessionResponse struct {
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	ExpiresAt        time.Time    `json:"expiresAt"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
	Identity         IdentityView `json:"identity"`
}

func newSessionResponse(iss *sessions.Issued) SessionResponse {
	return SessionResponse{
		AccessToken:      iss.AccessToken,
		RefreshToken:     iss.RefreshToken,
		ExpiresAt:        iss.Session.ExpiresAt,
		RefreshExpiresAt: iss.Session.RefreshExpiresAt,
		Identity:         IdentityView{ID: iss.Identity.ID, Username: iss.Identity.Username, Role: iss.Identity.Role},
	}
}

// AuthHandler holds dependencies
type AuthHandler struct {
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	audit       audit.Recorder

	// Authenticated runs after bearer authentication on /auth/session.
	Authenticated []gin.HandlerFunc
}

func NewAuthHandler(u *users.Service, s *sessions.Service, rec audit.Recorder) *AuthHandler {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &AuthHandler{usersSvc: u, sessionsSvc: s, audit: rec}
}

// Register routes under /auth. loginMiddleware runs in front of /login only,
// typically a rate limiter.
func (h *AuthHandler) Register(rg *gin.RouterGroup, loginMiddleware ...gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/login", append(loginMiddleware, h.Login)...)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
	a.GET("/session", protected(h.sessionsSvc, h.Authenticated, h.Session)...)
}

// Login verifies credentials and issues a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	ctx := c.Request.Context()
	id, err := h.usersSvc.Verify(ctx, req.Username, req.Password)
	if err == nil {
		var iss *sessions.Issued
		iss, err = h.sessionsSvc.Issue(ctx, id, req.RememberMe)
		if err == nil {
			metrics.LoginAttempts.WithLabelValues("ok").Inc()
			c.JSON(http.StatusOK, newSessionResponse(iss))
			return
		}
	}
	metrics.LoginAttempts.WithLabelValues(metrics.Outcome(models.ErrorCode(err), err)).Inc()
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		_ = h.audit.Record(ctx, audit.Event{Type: audit.EventLoginFailed, Username: models.NormalizeUsername(req.Username)})
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidCredentials, "code": models.CodeInvalidCredentials})
	case errors.Is(err, models.ErrUnknownRole):
		logger.Errorf("login: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "account is misconfigured, contact an administrator"})
	default:
		logger.Errorf("login: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
	}
}

// Refresh redeems a refresh token for a new session.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refreshToken is required"})
		return
	}
	iss, err := h.sessionsSvc.Refresh(c.Request.Context(), req.RefreshToken)
	code := models.ErrorCode(err)
	metrics.RefreshAttempts.WithLabelValues(metrics.Outcome(code, err)).Inc()
	if err != nil {
		if code != "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": middleware.MsgLoginAgain, "code": code})
			return
		}
		logger.Errorf("refresh: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(iss))
}

// Logout revokes the session behind the bearer token and/or the refresh token.
// Unknown or already revoked tokens are not an error.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	access, hasAccess := middleware.BearerToken(c)
	if !hasAccess && req.RefreshToken == "" {
		middleware.AbortUnauthorized(c, models.ErrTokenNotFound)
		return
	}
	ctx := c.Request.Context()
	revoked := 0
	if hasAccess {
		sess, err := h.sessionsSvc.Revoke(ctx, access, sessions.ReasonLogout)
		if err != nil && !errors.Is(err, models.ErrTokenNotFound) {
			logger.Errorf("logout: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke session"})
			return
		}
		if err == nil && !sess.Revoked {
			revoked++
		}
	}
	if req.RefreshToken != "" {
		sess, err := h.sessionsSvc.RevokeRefresh(ctx, req.RefreshToken, sessions.ReasonLogout)
		if err != nil && !errors.Is(err, models.ErrInvalidRefreshToken) {
			logger.Errorf("logout: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke session"})
			return
		}
		if err == nil && !sess.Revoked {
			revoked++
		}
	}
	if revoked > 0 {
		metrics.SessionsRevoked.WithLabelValues(sessions.ReasonLogout).Add(float64(revoked))
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Session returns the principal behind the bearer token.
func (h *AuthHandler) Session(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)
	c.JSON(http.StatusOK, gin.H{
		"identity":  IdentityView{ID: p.IdentityID, Username: p.Username, Role: p.Role},
		"sessionId": p.SessionID,
		"expiresAt": p.ExpiresAt,
	})
}
