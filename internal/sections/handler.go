package sections

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"course-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches section routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/courses/:courseId/sections", h.create)
	rg.GET("/courses/:courseId/sections", h.list)
	rg.GET("/sections/:id", h.get)
	rg.PUT("/sections/:id", h.update)
	rg.GET("/sections/:id/resources", h.resources)
	rg.POST("/sections/:id/resources/sync", h.sync)
}

func (h *Handler) create(c *gin.Context) {
	courseID, ok := pathID(c, "courseId")
	if !ok {
		return
	}
	var req sectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	section, err := h.Svc.CreateSection(c.Request.Context(), SectionInput{
		CourseID: courseID,
		Name:     req.Name,
		Status:   req.Status,
		Order:    req.Order,
	})
	if err != nil {
		writeError(c, err, "failed to create section")
		return
	}
	respond.JSON(c, http.StatusCreated, toSectionResponse(section))
}

func (h *Handler) list(c *gin.Context) {
	courseID, ok := pathID(c, "courseId")
	if !ok {
		return
	}
	list, err := h.Svc.ListSections(c.Request.Context(), courseID)
	if err != nil {
		writeError(c, err, "failed to list sections")
		return
	}
	resp := make([]SectionResponse, 0, len(list))
	for _, s := range list {
		resp = append(resp, toSectionResponse(s))
	}
	respond.OK(c, resp)
}

func (h *Handler) get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	section, err := h.Svc.GetSection(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to fetch section")
		return
	}
	respond.OK(c, toSectionResponse(section))
}

func (h *Handler) update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req sectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	section, err := h.Svc.UpdateSection(c.Request.Context(), id, SectionInput{
		CourseID: req.CourseID,
		Name:     req.Name,
		Status:   req.Status,
		Order:    req.Order,
	})
	if err != nil {
		writeError(c, err, "failed to update section")
		return
	}
	respond.OK(c, toSectionResponse(section))
}

func (h *Handler) resources(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.Svc.ListResources(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to list resources")
		return
	}
	resp := make([]ResourceResponse, 0, len(list))
	for _, r := range list {
		resp = append(resp, toResourceResponse(r))
	}
	respond.OK(c, resp)
}

func (h *Handler) sync(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	created, err := h.Svc.SyncResources(c.Request.Context(), id, req.toInput())
	if err != nil {
		writeError(c, err, "failed to sync resources")
		return
	}
	resp := syncResponse{Created: make([]createdResponse, 0, len(created))}
	for _, cr := range created {
		resp.Created = append(resp.Created, createdResponse{TempID: cr.TempID, ID: cr.ID})
	}
	respond.OK(c, resp)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", name+" must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "section not found", nil)
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
