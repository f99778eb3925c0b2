package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
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
    <title>folio-api - Swagger</title>
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

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "folio-api", "version": "v0.1.0" },
  "paths": {
    "/auth/signup": {
      "post": { "summary": "Create a password account", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"email":{"type":"string"},"username":{"type":"string"},"password":{"type":"string"},"name":{"type":"string"}}}}}}, "responses": { "201": { "description": "tokens returned" }, "409": { "description": "email or username taken" } } }
    },
    "/auth/login": {
      "post": {
        "summary": "Password login or authorization code exchange",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string"},"login":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "tokens returned" }, "401": { "description": "invalid credentials" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Rotate refresh token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refreshToken":{"type":"string"}}}}}}, "responses": { "200": { "description": "new token pair" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Logout and invalidate refresh token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refreshToken":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/api/v1/me": { "get": { "summary": "Current user", "responses": { "200": { "description": "user" }, "401": { "description": "unauthenticated" } } } },
    "/api/v1/me/profile": { "patch": { "summary": "Edit own profile", "responses": { "200": { "description": "updated user" } } } },
    "/api/v1/billing": { "get": { "summary": "Current plan", "responses": { "200": { "description": "entitlement" } } } },
    "/api/profiles/{slug}": { "get": { "summary": "Public profile", "responses": { "200": { "description": "profile" }, "404": { "description": "no such profile" } } } },
    "/api/username/check": { "get": { "summary": "Username availability", "responses": { "200": { "description": "available and suggestion" } } } },
    "/api/topics": { "get": { "summary": "List topics", "responses": { "200": { "description": "topics" } } }, "post": { "summary": "Upsert topic", "responses": { "200": { "description": "tagged record" } } } },
    "/api/expertise": { "get": { "summary": "List expertise", "responses": { "200": { "description": "expertise" } } }, "post": { "summary": "Upsert expertise", "responses": { "200": { "description": "tagged record" } } } },
    "/api/users/{slug}/folders": { "get": { "summary": "Public folders of a user", "responses": { "200": { "description": "page of folders" } } } },
    "/api/v1/folders": { "get": { "summary": "Own folders", "responses": { "200": { "description": "page of folders" } } }, "post": { "summary": "Create folder", "responses": { "201": { "description": "folder" } } } },
    "/api/v1/folders/{id}": { "get": { "summary": "Folder", "responses": { "200": { "description": "folder" } } }, "delete": { "summary": "Delete folder", "responses": { "204": { "description": "deleted" }, "403": { "description": "not owner" } } } },
    "/api/v1/folders/{id}/images": { "get": { "summary": "Folder images", "responses": { "200": { "description": "page of images" } } }, "post": { "summary": "Upload image (multipart field file)", "responses": { "201": { "description": "image" } } } },
    "/api/v1/folders/{id}/images/{imageId}": { "delete": { "summary": "Delete image", "responses": { "204": { "description": "deleted" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
