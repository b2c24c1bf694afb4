package handlers

import (
	"errors"
	"net/http"
	"strconv"
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

// AdminHandler manages identities and their sessions. All routes require the admin role.
type AdminHandler struct {
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	exporter    *audit.Exporter
	audit       audit.Recorder

	// Authenticated runs after bearer authentication, before the role check.
	Authenticated []gin.HandlerFunc
}

// NewAdminHandler wires the admin routes. exporter may be nil when no archive
// store is configured.
func NewAdminHandler(u *users.Service, s *sessions.Service, exporter *audit.Exporter, rec audit.Recorder) *AdminHandler {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &AdminHandler{usersSvc: u, sessionsSvc: s, exporter: exporter, audit: rec}
}

func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/admin", protected(h.sessionsSvc, h.Authenticated, middleware.RequireRoles(models.RoleAdmin))...)
	a.POST("/identities", h.CreateIdentity)
	a.GET("/identities/:id", h.GetIdentity)
	a.PATCH("/identities/:id/role", h.ChangeRole)
	a.PUT("/identities/:id/password", h.ChangePassword)
	a.POST("/identities/:id/deactivate", h.Deactivate)
	a.POST("/identities/:id/sessions/revoke", h.RevokeSessions)
	a.POST("/audit/export", h.ExportAudit)
}

type createIdentityRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

func identityView(id *models.Identity) gin.H {
	return gin.H{
		"id":        id.ID,
		"username":  id.Username,
		"role":      id.Role,
		"isActive":  id.IsActive,
		"lastLogin": id.LastLogin,
		"createdAt": id.CreatedAt,
	}
}

// writeError maps credential store errors onto HTTP statuses.
func writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, models.ErrIdentityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
	case errors.Is(err, models.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrWeakPassword), errors.Is(err, models.ErrUnknownRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Errorf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return 0, false
	}
	return id, true
}

func (h *AdminHandler) record(c *gin.Context, typ string, id *models.Identity, detail string) {
	actor := ""
	if p, ok := middleware.GetPrincipal(c); ok {
		actor = "by " + p.Username
	}
	if detail != "" {
		actor = detail + " " + actor
	}
	_ = h.audit.Record(c.Request.Context(), audit.Event{Type: typ, IdentityID: id.ID, Username: id.Username, Detail: actor})
}

func (h *AdminHandler) CreateIdentity(c *gin.Context) {
	var req createIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, password and role are required"})
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		writeError(c, "create identity", err)
		return
	}
	id, err := h.usersSvc.Register(c.Request.Context(), req.Username, req.Password, role)
	if err != nil {
		writeError(c, "create identity", err)
		return
	}
	h.record(c, audit.EventRegistered, id, string(role))
	c.JSON(http.StatusCreated, identityView(id))
}

func (h *AdminHandler) GetIdentity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	u, err := h.usersSvc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, "get identity", err)
		return
	}
	c.JSON(http.StatusOK, identityView(u))
}

// ChangeRole applies from the identity's next login or refresh.
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		writeError(c, "change role", err)
		return
	}
	u, err := h.usersSvc.ChangeRole(c.Request.Context(), id, role)
	if err != nil {
		writeError(c, "change role", err)
		return
	}
	h.record(c, audit.EventRoleChanged, u, string(role))
	c.JSON(http.StatusOK, identityView(u))
}

func (h *AdminHandler) ChangePassword(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	ctx := c.Request.Context()
	if err := h.usersSvc.ChangePassword(ctx, id, req.Password); err != nil {
		writeError(c, "change password", err)
		return
	}
	u, err := h.usersSvc.Get(ctx, id)
	if err != nil {
		writeError(c, "change password", err)
		return
	}
	h.record(c, audit.EventPasswordChange, u, "")
	c.Status(http.StatusNoContent)
}

// Deactivate blocks the identity and revokes every live session.
func (h *AdminHandler) Deactivate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	u, err := h.usersSvc.Deactivate(ctx, id)
	if err != nil {
		writeError(c, "deactivate identity", err)
		return
	}
	n, err := h.sessionsSvc.RevokeAll(ctx, id, sessions.ReasonDeactivated)
	metrics.SessionsRevoked.WithLabelValues(sessions.ReasonDeactivated).Add(float64(n))
	if err != nil {
		writeError(c, "revoke sessions", err)
		return
	}
	h.record(c, audit.EventDeactivated, u, "")
	c.JSON(http.StatusOK, gin.H{"identity": identityView(u), "revokedSessions": n})
}

func (h *AdminHandler) RevokeSessions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.usersSvc.Get(ctx, id); err != nil {
		writeError(c, "revoke sessions", err)
		return
	}
	n, err := h.sessionsSvc.RevokeAll(ctx, id, sessions.ReasonAdmin)
	metrics.SessionsRevoked.WithLabelValues(sessions.ReasonAdmin).Add(float64(n))
	if err != nil {
		writeError(c, "revoke sessions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revokedSessions": n})
}

type exportRequest struct {
	From time.Time `json:"from" binding:"required"`
	To   time.Time `json:"to"`
}

// ExportAudit archives audit events in [from, to) to object storage. To defaults to now.
func (h *AdminHandler) ExportAudit(c *gin.Context) {
	if h.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit archive not configured"})
		return
	}
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be an RFC 3339 timestamp"})
		return
	}
	if req.To.IsZero() {
		req.To = time.Now().UTC()
	}
	if !req.From.Before(req.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}
	exp, err := h.exporter.Export(c.Request.Context(), req.From, req.To)
	if err != nil {
		logger.Errorf("audit export: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "audit export failed"})
		return
	}
	c.JSON(http.StatusOK, exp)
}
