package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the auth service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>dental360-auth Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// OpenAPI document for the session and admin endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "dental360-auth", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Identity": { "type": "object", "properties": { "id": {"type":"integer"}, "username": {"type":"string"}, "role": {"type":"string","enum":["admin","manager","staff","user"]} } },
      "Session": { "type": "object", "properties": { "accessToken": {"type":"string"}, "refreshToken": {"type":"string"}, "expiresAt": {"type":"string","format":"date-time"}, "refreshExpiresAt": {"type":"string","format":"date-time"}, "identity": {"$ref":"#/components/schemas/Identity"} } },
      "Error": { "type": "object", "properties": { "error": {"type":"string"}, "code": {"type":"string","enum":["invalid_credentials","token_not_found","token_expired","token_revoked","invalid_refresh_token","refresh_expired","forbidden"]} } }
    }
  },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Verify credentials and issue a session",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["username","password"],"properties":{"username":{"type":"string"},"password":{"type":"string"},"rememberMe":{"type":"boolean"}}}}}},
        "responses": { "200": { "description": "session issued", "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Session"} } } }, "401": { "description": "invalid_credentials" }, "429": { "description": "rate limited" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Redeem a refresh token for a new session", "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["refreshToken"],"properties":{"refreshToken":{"type":"string"}}}}}}, "responses": { "200": { "description": "rotated session" }, "401": { "description": "invalid_refresh_token or refresh_expired" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke the current session", "security": [{"bearer": []}], "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refreshToken":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/auth/session": {
      "get": { "summary": "Describe the session behind the bearer token", "security": [{"bearer": []}], "responses": { "200": { "description": "identity, sessionId and expiresAt" }, "401": { "description": "token_expired, token_revoked or token_not_found" } } }
    },
    "/admin/identities": { "post": { "summary": "Register an identity", "security": [{"bearer": []}], "responses": { "201": { "description": "created" }, "403": { "description": "forbidden" }, "409": { "description": "username taken" } } } },
    "/admin/identities/{id}/role": { "patch": { "summary": "Change role (applies on next refresh)", "security": [{"bearer": []}], "responses": { "200": { "description": "updated" } } } },
    "/admin/identities/{id}/password": { "put": { "summary": "Set password", "security": [{"bearer": []}], "responses": { "204": { "description": "updated" } } } },
    "/admin/identities/{id}/deactivate": { "post": { "summary": "Deactivate and revoke all sessions", "security": [{"bearer": []}], "responses": { "200": { "description": "deactivated" } } } },
    "/admin/identities/{id}/sessions/revoke": { "post": { "summary": "Revoke all sessions of an identity", "security": [{"bearer": []}], "responses": { "200": { "description": "revoked" } } } },
    "/admin/audit/export": { "post": { "summary": "Archive audit events to object storage", "security": [{"bearer": []}], "responses": { "200": { "description": "presigned download URL" }, "503": { "description": "archive not configured" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "text exposition" } } } }
  }
}`
