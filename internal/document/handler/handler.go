package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docugate/docugate/internal/document"
)

// Catalog exposes the minimal document catalog API the portal frontend uses
// to register and browse documents. Editing flows go through the gateway
// endpoints, not here.
type Catalog struct {
	repo document.Repository
}

func NewCatalog(repo document.Repository) *Catalog {
	return &Catalog{repo: repo}
}

// RegisterCatalogRoutes registers the catalog endpoints.
func RegisterCatalogRoutes(r gin.IRouter, repo document.Repository) {
	c := NewCatalog(repo)
	r.GET("/api/documents", c.List)
	r.POST("/api/documents", c.Create)
	r.GET("/api/documents/:id", c.Get)
}

type createRequest struct {
	TenantID   string `json:"tenantId" binding:"required"`
	Title      string `json:"title" binding:"required"`
	StorageKey string `json:"storageKey" binding:"required"`
	MimeType   string `json:"mimeType"`
}

func (h *Catalog) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MimeType == "" {
		req.MimeType = "application/octet-stream"
	}
	d := &document.Document{
		TenantID:   req.TenantID,
		Title:      req.Title,
		StorageKey: req.StorageKey,
		MimeType:   req.MimeType,
	}
	id, err := h.repo.Create(c.Request.Context(), d)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "title": d.Title})
}

func (h *Catalog) Get(c *gin.Context) {
	d, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Catalog) List(c *gin.Context) {
	docs, err := h.repo.List(c.Request.Context(), c.Query("tenantId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(docs))
	for _, d := range docs {
		out = append(out, gin.H{"id": d.ID, "title": d.Title, "tenantId": d.TenantID, "currentVersion": d.CurrentVersion})
	}
	c.JSON(http.StatusOK, out)
}
