package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/folio/folio-api/internal/gallery"
	"github.com/folio/folio-api/internal/users"
	"github.com/folio/folio-api/pkg/middleware"
)

// multipartOverhead is allowed on top of the image size for boundaries and the other fields.
const multipartOverhead = 1 << 20

type folderRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// GalleryHandler serves folders and their images. Reads are public; writes are owner only.
type GalleryHandler struct {
	gallery  *gallery.Service
	usersSvc *users.Service
}

func NewGalleryHandler(g *gallery.Service, u *users.Service) *GalleryHandler {
	return &GalleryHandler{gallery: g, usersSvc: u}
}

func (h *GalleryHandler) Register(r gin.IRouter, requireAuth gin.HandlerFunc) {
	r.GET("/api/users/:slug/folders", h.ListUserFolders)

	f := r.Group("/api/v1/folders")
	f.GET("", requireAuth, h.ListMyFolders)
	f.POST("", requireAuth, h.CreateFolder)
	f.GET("/:id", h.GetFolder)
	f.DELETE("/:id", requireAuth, h.DeleteFolder)
	f.GET("/:id/images", h.ListImages)
	f.POST("/:id/images", requireAuth, h.UploadImage)
	f.DELETE("/:id/images/:imageId", requireAuth, h.DeleteImage)
}

func (h *GalleryHandler) ListUserFolders(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := h.usersSvc.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	cursor, limit := pageParams(c)
	page, err := h.gallery.ListFolders(ctx, u.ID, cursor, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *GalleryHandler) ListMyFolders(c *gin.Context) {
	cursor, limit := pageParams(c)
	page, err := h.gallery.ListFolders(c.Request.Context(), middleware.UserID(c), cursor, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *GalleryHandler) CreateFolder(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	f, err := h.gallery.CreateFolder(c.Request.Context(), middleware.UserID(c), gallery.FolderInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *GalleryHandler) GetFolder(c *gin.Context) {
	f, err := h.gallery.GetFolder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *GalleryHandler) DeleteFolder(c *gin.Context) {
	if err := h.gallery.DeleteFolder(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GalleryHandler) ListImages(c *gin.Context) {
	cursor, limit := pageParams(c)
	page, err := h.gallery.ListImages(c.Request.Context(), c.Param("id"), cursor, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// UploadImage accepts multipart/form-data with the image in "file" and an optional
// "caption". The content type is sniffed from the bytes, not taken from the client.
func (h *GalleryHandler) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.gallery.MaxUploadBytes()+multipartOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	file, err := fh.Open()
	if err != nil {
		badRequest(c, "unreadable upload")
		return
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		badRequest(c, "unreadable upload")
		return
	}
	head = head[:n]

	img, err := h.gallery.AddImage(c.Request.Context(), middleware.UserID(c), c.Param("id"), gallery.Upload{
		Body:        io.MultiReader(bytes.NewReader(head), file),
		Size:        fh.Size,
		ContentType: http.DetectContentType(head),
		Caption:     c.PostForm("caption"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, img)
}

func (h *GalleryHandler) DeleteImage(c *gin.Context) {
	if err := h.gallery.DeleteImage(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("imageId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
