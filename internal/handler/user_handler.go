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

type userService interface {
	List(ctx context.Context, actor *models.Actor, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	Create(ctx context.Context, actor *models.Actor, req dto.CreateUserRequest) (*models.User, error)
	Delete(ctx context.Context, actor *models.Actor, id string) error
	RegisterStudent(ctx context.Context, req dto.RegisterStudentRequest) (*models.User, error)
	Directory(ctx context.Context, actor *models.Actor, filter models.UserFilter) ([]dto.DirectoryEntry, *models.Pagination, error)
}

// UserHandler handles account administration endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Description List users with pagination and filtering
// @Tags Users
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "Role filter"
// @Param active query bool false "Active filter"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	filter := pageAndRole(c)
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}
	filter.Search = c.Query("search")

	users, pagination, err := h.service.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, users, pagination)
}

// Directory godoc
// @Summary List active students or advisors
// @Tags Users
// @Produce json
// @Param role query string true "STUDENT or ADVISOR"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/directory [get]
func (h *UserHandler) Directory(c *gin.Context) {
	filter := pageAndRole(c)
	filter.Search = c.Query("search")

	entries, pagination, err := h.service.Directory(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Register godoc
// @Summary Student self-registration
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.RegisterStudentRequest true "Sign-up payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *UserHandler) Register(c *gin.Context) {
	var req dto.RegisterStudentRequest
	if !bindJSON(c, &req, "invalid registration payload") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	user, err := h.service.RegisterStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Create godoc
// @Summary Create user
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body dto.CreateUserRequest true "Create user payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req dto.CreateUserRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}

	user, err := h.service.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, user)
}

// Delete godoc
// @Summary Deactivate user
// @Tags Users
// @Param id path string true "User ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func pageAndRole(c *gin.Context) models.UserFilter {
	var filter models.UserFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}
	return filter
}
