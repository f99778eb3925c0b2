package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/folio/folio-api/internal/users"
	"github.com/folio/folio-api/pkg/middleware"
)

// ProfileRequest is a partial profile edit; omitted fields are left unchanged.
type ProfileRequest struct {
	Name      *string  `json:"name"`
	Bio       *string  `json:"bio"`
	AvatarURL *string  `json:"avatarUrl"`
	Topics    []string `json:"topics"`
	Expertise []string `json:"expertise"`
}

type ProfileHandler struct {
	usersSvc *users.Service
}

func NewProfileHandler(u *users.Service) *ProfileHandler {
	return &ProfileHandler{usersSvc: u}
}

func (h *ProfileHandler) Register(r gin.IRouter, requireAuth gin.HandlerFunc) {
	r.GET("/api/profiles/:slug", h.Get)
	r.PATCH("/api/v1/me/profile", requireAuth, h.Update)
}

// Get returns the public view of a profile; email, plan and credentials are never included.
func (h *ProfileHandler) Get(c *gin.Context) {
	u, err := h.usersSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u.Public())
}

func (h *ProfileHandler) Update(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := h.usersSvc.UpdateProfile(c.Request.Context(), middleware.UserID(c), users.ProfileInput{
		Name:      req.Name,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
		Topics:    req.Topics,
		Expertise: req.Expertise,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}
