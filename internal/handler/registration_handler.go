package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	"github.com/noah-isme/crams-api/internal/service"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
	"github.com/noah-isme/crams-api/pkg/response"
)

type registrationService interface {
	Create(ctx context.Context, actor *models.Actor, req dto.SubmitRegistrationRequest) (*dto.RegistrationView, error)
	Resubmit(ctx context.Context, actor *models.Actor, registrationID string, req dto.SubmitRegistrationRequest) (*dto.RegistrationView, error)
	GetForStudent(ctx context.Context, actor *models.Actor) (*dto.RegistrationView, error)
	ListAll(ctx context.Context, actor *models.Actor, filter dto.RegistrationFilter) ([]dto.RegistrationView, error)
	CheckConflicts(ctx context.Context, actor *models.Actor, req dto.ConflictCheckRequest) (*dto.ConflictCheckResult, error)
}

type rosterExporter interface {
	Roster(ctx context.Context, actor *models.Actor, filter dto.RegistrationFilter, format string) (*service.ExportFile, error)
}

// RegistrationHandler exposes the student side of the registration lifecycle.
type RegistrationHandler struct {
	service  registrationService
	exporter rosterExporter
}

// NewRegistrationHandler builds a new handler.
func NewRegistrationHandler(service registrationService, exporter rosterExporter) *RegistrationHandler {
	return &RegistrationHandler{service: service, exporter: exporter}
}

// Create godoc
// @Summary Submit a registration
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.SubmitRegistrationRequest true "Selected courses"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Create(c *gin.Context) {
	var req dto.SubmitRegistrationRequest
	if !bindJSON(c, &req, "invalid registration payload") {
		return
	}
	view, err := h.service.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Resubmit godoc
// @Summary Replace the course selection of an existing registration
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.SubmitRegistrationRequest true "Selected courses"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id} [put]
func (h *RegistrationHandler) Resubmit(c *gin.Context) {
	var req dto.SubmitRegistrationRequest
	if !bindJSON(c, &req, "invalid registration payload") {
		return
	}
	view, err := h.service.Resubmit(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Mine godoc
// @Summary Get the caller's registration
// @Description Returns null data when the student has not registered yet.
// @Tags Registrations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /registrations/me [get]
func (h *RegistrationHandler) Mine(c *gin.Context) {
	view, err := h.service.GetForStudent(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if view == nil {
		response.JSON(c, http.StatusOK, nil, nil)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// List godoc
// @Summary List every registration
// @Tags Registrations
// @Produce json
// @Param screened query bool false "true for fully decided, false for registrations still pending"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	filter, ok := registrationFilter(c)
	if !ok {
		return
	}
	views, err := h.service.ListAll(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil, map[string]interface{}{"count": len(views)})
}

// Export godoc
// @Summary Download the registration roster
// @Tags Registrations
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param screened query bool false "Screened filter"
// @Success 200 {file} file
// @Router /registrations/export [get]
func (h *RegistrationHandler) Export(c *gin.Context) {
	filter, ok := registrationFilter(c)
	if !ok {
		return
	}
	file, err := h.exporter.Roster(c.Request.Context(), actorFromContext(c), filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// CheckConflicts godoc
// @Summary Check a course selection for identical time slots
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.ConflictCheckRequest true "Candidate course IDs"
// @Success 200 {object} response.Envelope
// @Router /registrations/conflicts [post]
func (h *RegistrationHandler) CheckConflicts(c *gin.Context) {
	var req dto.ConflictCheckRequest
	if !bindJSON(c, &req, "invalid conflict check payload") {
		return
	}
	result, err := h.service.CheckConflicts(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func registrationFilter(c *gin.Context) (dto.RegistrationFilter, bool) {
	var filter dto.RegistrationFilter
	raw := c.Query("screened")
	if raw == "" {
		return filter, true
	}
	screened, err := strconv.ParseBool(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "screened must be true or false"))
		return filter, false
	}
	filter.Screened = &screened
	return filter, true
}
