package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/sessions"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/logger"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// PrincipalKey is the gin context key holding the *sessions.Principal.
const PrincipalKey = "principal"

// Messages shown for authentication and authorization failures. The code field
// carries the detail.
const (
	MsgLoginAgain   = "please log in again"
	MsgAccessDenied = "access denied"
)

// Validator is the minimal interface the middleware depends on
type Validator interface {
	Validate(ctx context.Context, accessToken string) (*sessions.Principal, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AbortUnauthorized writes the uniform 401 body for err.
func AbortUnauthorized(c *gin.Context, err error) {
	code := models.ErrorCode(err)
	if code == "" {
		code = models.CodeTokenNotFound
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": MsgLoginAgain, "code": code})
}

// AbortForbidden writes the uniform 403 body.
func AbortForbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": MsgAccessDenied, "code": models.CodeForbidden})
}

// AuthMiddleware validates the bearer token and stores the principal in the context.
func AuthMiddleware(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			metrics.Validations.WithLabelValues(models.CodeTokenNotFound).Inc()
			AbortUnauthorized(c, models.ErrTokenNotFound)
			return
		}
		p, err := v.Validate(c.Request.Context(), token)
		code := models.ErrorCode(err)
		metrics.Validations.WithLabelValues(metrics.Outcome(code, err)).Inc()
		if err != nil {
			if code == "" {
				logger.Errorf("validate access token: %v", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication unavailable"})
				return
			}
			AbortUnauthorized(c, err)
			return
		}
		c.Set(PrincipalKey, p)
		c.Next()
	}
}

// GetPrincipal returns the principal set by AuthMiddleware.
func GetPrincipal(c *gin.Context) (*sessions.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*sessions.Principal)
	return p, ok && p != nil
}

// RequireRoles rejects principals whose role is not in roles. It must run after
// AuthMiddleware; without a principal the request is unauthenticated.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			AbortUnauthorized(c, models.ErrTokenNotFound)
			return
		}
		if !p.Role.Valid() || !models.RoleIn(p.Role, roles) {
			AbortForbidden(c)
			return
		}
		c.Next()
	}
}
