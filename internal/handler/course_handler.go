package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	"github.com/noah-isme/crams-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, actor *models.Actor, filter models.CourseFilter) ([]models.Course, *models.Pagination, error)
	Get(ctx context.Context, actor *models.Actor, id string) (*models.Course, error)
	Create(ctx context.Context, actor *models.Actor, req dto.UpsertCourseRequest) (*models.Course, error)
	Update(ctx context.Context, actor *models.Actor, id string, req dto.UpsertCourseRequest) (*models.Course, error)
	Delete(ctx context.Context, actor *models.Actor, id string) error
}

// CourseHandler exposes the course catalog.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler builds a new handler.
func NewCourseHandler(service courseService) *CourseHandler {
	return &CourseHandler{service: service}
}

// List godoc
// @Summary List catalog courses
// @Tags Courses
// @Produce json
// @Param search query string false "Code, name or instructor"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size (default 100)"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("pageSize", "100"))
	filter := models.CourseFilter{Search: c.Query("search"), Page: page, PageSize: size}

	courses, pagination, err := h.service.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body dto.UpsertCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req dto.UpsertCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.UpsertCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req dto.UpsertCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete course
// @Tags Courses
// @Param id path string true "Course ID"
// @Success 204
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
