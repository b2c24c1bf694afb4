package handlers

import (
	"github.com/fernando2601/Dental360-APIC--sub004/internal/audit"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/sessions"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/users"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Users    *users.Service
	Sessions *sessions.Service
	Audit    audit.Recorder
	// Exporter is optional; without it audit export answers 503.
	Exporter *audit.Exporter
	// LoginMiddleware runs in front of POST /auth/login.
	LoginMiddleware []gin.HandlerFunc
	// Authenticated runs after bearer authentication on protected routes, so
	// the principal is available to it.
	Authenticated []gin.HandlerFunc
}

// Mount registers the auth, admin and swagger routes on r.
func Mount(r *gin.Engine, d Deps) {
	auth := NewAuthHandler(d.Users, d.Sessions, d.Audit)
	auth.Authenticated = d.Authenticated
	auth.Register(&r.RouterGroup, d.LoginMiddleware...)

	admin := NewAdminHandler(d.Users, d.Sessions, d.Exporter, d.Audit)
	admin.Authenticated = d.Authenticated
	admin.Register(&r.RouterGroup)
	RegisterSwagger(r)
}

// protected prefixes bearer authentication to extra.
func protected(v middleware.Validator, extra []gin.HandlerFunc, rest ...gin.HandlerFunc) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{middleware.AuthMiddleware(v)}
	chain = append(chain, extra...)
	return append(chain, rest...)
}
