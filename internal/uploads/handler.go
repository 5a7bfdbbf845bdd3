package uploads

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"course-backend/internal/shared/server/respond"
	"course-backend/internal/shared/storage/object"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

type destinationRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	MimeType    string `json:"mimeType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type destinationResponse struct {
	UploadURL        string `json:"uploadUrl"`
	FinalURL         string `json:"finalUrl"`
	Key              string `json:"key"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

type receivedResponse struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"sizeBytes"`
}

// RegisterRoutes attaches the destination endpoint. The object routes are
// registered separately so they can sit behind their own rate limit group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sections/:id/uploads", h.destination)
}

// RegisterObjectRoutes attaches the local receiver used when no presigner is configured.
func (h *Handler) RegisterObjectRoutes(rg *gin.RouterGroup) {
	rg.PUT("/uploads/objects/*key", h.put)
	rg.GET("/uploads/objects/*key", h.get)
	rg.DELETE("/uploads/objects/*key", h.delete)
}

func (h *Handler) destination(c *gin.Context) {
	sectionID, ok := sectionParam(c)
	if !ok {
		return
	}
	var req destinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = strings.TrimSpace(req.MimeType)
	}

	dest, err := h.Svc.IssueDestination(c.Request.Context(), sectionID, DestinationRequest{
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: contentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		writeError(c, err, "failed to issue upload destination")
		return
	}
	c.Set("objectKey", dest.Key)
	respond.OK(c, destinationResponse{
		UploadURL:        dest.UploadURL,
		FinalURL:         dest.FinalURL,
		Key:              dest.Key,
		ExpiresInSeconds: int64(dest.ExpiresIn / time.Second),
	})
}

func (h *Handler) put(c *gin.Context) {
	key := objectParam(c)
	n, err := h.Svc.Receive(c.Request.Context(), key, c.GetHeader("Content-Type"), c.Request.Body)
	if err != nil {
		writeError(c, err, "failed to store upload")
		return
	}
	respond.OK(c, receivedResponse{Key: key, SizeBytes: n})
}

func (h *Handler) get(c *gin.Context) {
	key := objectParam(c)
	rc, err := h.Svc.Open(c.Request.Context(), key)
	if err != nil {
		writeError(c, err, "failed to open object")
		return
	}
	defer rc.Close()

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(c.Writer, c.Request, key, time.Time{}, rs)
		return
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		_ = c.Error(err)
	}
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), objectParam(c)); err != nil {
		writeError(c, err, "failed to delete object")
		return
	}
	respond.NoContent(c)
}

// sectionParam accepts a positive id or "new" for a section that has not been created.
func sectionParam(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	if raw == "new" || raw == "0" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "id must be a positive integer or new", nil)
		return 0, false
	}
	return id, true
}

func objectParam(c *gin.Context) string {
	key := strings.TrimPrefix(c.Param("key"), "/")
	c.Set("objectKey", key)
	return key
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrSectionNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "section not found", nil)
	case errors.Is(err, object.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "object not found", nil)
	case errors.Is(err, ErrInUse):
		respond.Error(c, http.StatusConflict, "conflict", "object is still referenced by a resource", nil)
	case errors.Is(err, ErrTooLarge):
		respond.Error(c, http.StatusRequestEntityTooLarge, "too_large", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
