package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	"github.com/noah-isme/crams-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, actor *models.Actor) ([]models.Notification, error)
	MarkRead(ctx context.Context, actor *models.Actor, id string) error
	MarkAllRead(ctx context.Context, actor *models.Actor) (int64, error)
	Delete(ctx context.Context, actor *models.Actor, id string) error
	Send(ctx context.Context, actor *models.Actor, req dto.SendNotificationRequest) (*dto.SendNotificationResult, error)
}

// NotificationHandler exposes the per-user inbox.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler builds a new handler.
func NewNotificationHandler(service notificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List godoc
// @Summary List the caller's notifications
// @Description Returns the 50 most recent notifications, newest first.
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"unread": unread})
}

// MarkRead godoc
// @Summary Mark one notification as read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Envelope
// @Router /notifications/{id}/read [put]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.service.MarkRead(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "Notification marked as read"}, nil)
}

// MarkAllRead godoc
// @Summary Mark every notification as read
// @Tags Notifications
// @Success 200 {object} response.Envelope
// @Router /notifications/mark-all-read [put]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	count, err := h.service.MarkAllRead(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "All notifications marked as read", "updated": count}, nil)
}

// Delete godoc
// @Summary Delete a notification
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id} [delete]
func (h *NotificationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Send godoc
// @Summary Send a notification to a list of users
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.SendNotificationRequest true "Recipients and message"
// @Success 201 {object} response.Envelope
// @Router /notifications/send [post]
func (h *NotificationHandler) Send(c *gin.Context) {
	var req dto.SendNotificationRequest
	if !bindJSON(c, &req, "invalid notification payload") {
		return
	}
	result, err := h.service.Send(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
