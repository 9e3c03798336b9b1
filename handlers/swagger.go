package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the gateway.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>docugate — Swagger</title>
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

// Minimal OpenAPI document describing the editing and catalog endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "docugate", "version": "v0.1.0" },
  "paths": {
    "/api/edit/token": {
      "post": {
        "summary": "Open an editing session and issue a signed editor token",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"documentId":{"type":"string"},"mode":{"type":"string","enum":["edit","view"]}}}}}},
        "responses": { "200": { "description": "token, documentUrl, callbackUrl, permissions" }, "403": { "description": "document belongs to another tenant" }, "404": { "description": "unknown document" } }
      }
    },
    "/api/edit/files/{id}": {
      "get": { "summary": "Serve document bytes to the Document Server (editor token auth)", "responses": { "200": { "description": "document bytes" }, "403": { "description": "invalid or mismatched token" } } }
    },
    "/api/edit/callback": {
      "post": {
        "summary": "Save callback from the Document Server",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"status":{"type":"integer"},"key":{"type":"string"},"url":{"type":"string"},"users":{"type":"array","items":{"type":"string"}},"token":{"type":"string"}}}}}},
        "responses": { "200": { "description": "{error:0} accepted, {error:1} rejected" }, "400": { "description": "protocol violation" }, "403": { "description": "authorization failed" } }
      }
    },
    "/api/edit/files/{id}/history": {
      "get": { "summary": "List version records, oldest first", "responses": { "200": { "description": "version list" } } }
    },
    "/api/edit/files/{id}/restore": {
      "post": { "summary": "Roll the current version pointer back to an earlier committed version", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"version":{"type":"integer"}}}}}}, "responses": { "200": { "description": "pointer moved" }, "404": { "description": "no such version" } } }
    },
    "/api/documents": {
      "get": { "summary": "List catalog documents for a tenant", "responses": { "200": { "description": "document list" } } },
      "post": { "summary": "Register a document in the catalog", "responses": { "201": { "description": "created" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
