package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/folio/folio-api/internal/entitlement"
	"github.com/folio/folio-api/internal/identity"
	"github.com/folio/folio-api/internal/models"
	"github.com/folio/folio-api/internal/taxonomy"
	"github.com/folio/folio-api/pkg/middleware"
)

// LookupHandler serves the small read-mostly routes used by signup and profile forms:
// username availability, the topic and expertise taxonomies, and the caller's plan.
type LookupHandler struct {
	resolver     *identity.Resolver
	taxonomy     *taxonomy.Service
	entitlements *entitlement.Service
}

func NewLookupHandler(resolver *identity.Resolver, tax *taxonomy.Service, ent *entitlement.Service) *LookupHandler {
	return &LookupHandler{resolver: resolver, taxonomy: tax, entitlements: ent}
}

func (h *LookupHandler) Register(r gin.IRouter, requireAuth gin.HandlerFunc) {
	r.GET("/api/username/check", h.CheckUsername)
	for _, kind := range []taxonomy.Kind{taxonomy.KindTopic, taxonomy.KindExpertise} {
		path := "/api/" + routeSegment(kind)
		r.GET(path, h.listTags(kind))
		r.POST(path, requireAuth, h.upsertTag(kind))
		r.DELETE(path+"/:value", requireAuth, h.archiveTag(kind))
	}
	r.GET("/api/v1/billing", requireAuth, h.Billing)
}

func routeSegment(kind taxonomy.Kind) string {
	if kind == taxonomy.KindTopic {
		return "topics"
	}
	return string(kind)
}

// CheckUsername answers {available, suggestion} for ?username=.
func (h *LookupHandler) CheckUsername(c *gin.Context) {
	candidate := strings.TrimSpace(c.Query("username"))
	if candidate == "" {
		badRequest(c, "username query parameter is required")
		return
	}
	avail, err := h.resolver.CheckAvailability(c.Request.Context(), candidate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, avail)
}

func (h *LookupHandler) listTags(kind taxonomy.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.taxonomy.List(c.Request.Context(), kind)
		if err != nil {
			respondError(c, err)
			return
		}
		if list == nil {
			list = []*models.TaggedRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"items": list})
	}
}

func (h *LookupHandler) upsertTag(kind taxonomy.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Label string `json:"label" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		rec, err := h.taxonomy.Upsert(c.Request.Context(), kind, req.Label)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func (h *LookupHandler) archiveTag(kind taxonomy.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.taxonomy.Archive(c.Request.Context(), kind, c.Param("value")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Billing returns the caller's entitlement.
func (h *LookupHandler) Billing(c *gin.Context) {
	e, err := h.entitlements.ForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}
