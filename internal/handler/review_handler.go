package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
	"github.com/noah-isme/crams-api/pkg/response"
)

type reviewService interface {
	DecideCourse(ctx context.Context, actor *models.Actor, registrationID, courseID string, req dto.DecisionRequest) (*dto.RegistrationView, error)
	DecideBulk(ctx context.Context, actor *models.Actor, registrationID string, req dto.BulkDecisionRequest) (*dto.RegistrationView, error)
	DecideAll(ctx context.Context, actor *models.Actor, registrationID string, req dto.DecisionRequest) (*dto.RegistrationView, error)
}

// ReviewHandler exposes advisor decisions.
type ReviewHandler struct {
	service reviewService
}

// NewReviewHandler builds a new handler.
func NewReviewHandler(service reviewService) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// ApproveCourse godoc
// @Summary Approve one course of a registration
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/courses/{courseId}/approve [post]
func (h *ReviewHandler) ApproveCourse(c *gin.Context) {
	h.decideCourse(c, models.DecisionApprove)
}

// RejectCourse godoc
// @Summary Reject one course of a registration
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/courses/{courseId}/reject [post]
func (h *ReviewHandler) RejectCourse(c *gin.Context) {
	h.decideCourse(c, models.DecisionReject)
}

// Bulk godoc
// @Summary Apply one decision to several courses
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.BulkDecisionRequest true "Courses and action"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrations/{id}/bulk-action [post]
func (h *ReviewHandler) Bulk(c *gin.Context) {
	var req dto.BulkDecisionRequest
	if !bindJSON(c, &req, "invalid bulk action payload") {
		return
	}
	if len(req.CourseIDs) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course_ids must contain at least one course"))
		return
	}
	view, err := h.service.DecideBulk(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// ApproveAll godoc
// @Summary Approve every course of a registration
// @Tags Review
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/approve [post]
func (h *ReviewHandler) ApproveAll(c *gin.Context) {
	h.decideAll(c, models.DecisionApprove)
}

// RejectAll godoc
// @Summary Reject every course of a registration
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/reject [post]
func (h *ReviewHandler) RejectAll(c *gin.Context) {
	h.decideAll(c, models.DecisionReject)
}

func (h *ReviewHandler) decideCourse(c *gin.Context, decision models.Decision) {
	var req dto.DecisionRequest
	if !bindOptionalJSON(c, &req, "invalid decision payload") {
		return
	}
	req.Decision = decision
	view, err := h.service.DecideCourse(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("courseId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

func (h *ReviewHandler) decideAll(c *gin.Context, decision models.Decision) {
	var req dto.DecisionRequest
	if !bindOptionalJSON(c, &req, "invalid decision payload") {
		return
	}
	req.Decision = decision
	view, err := h.service.DecideAll(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
