package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
)

type notificationServiceMock struct {
	items  []models.Notification
	marked string
	sent   dto.SendNotificationRequest
}

func (m *notificationServiceMock) List(_ context.Context, _ *models.Actor) ([]models.Notification, error) {
	return m.items, nil
}

func (m *notificationServiceMock) MarkRead(_ context.Context, _ *models.Actor, id string) error {
	if id == "missing" {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	m.marked = id
	return nil
}

func (m *notificationServiceMock) MarkAllRead(_ context.Context, _ *models.Actor) (int64, error) {
	return 3, nil
}

func (m *notificationServiceMock) Delete(_ context.Context, _ *models.Actor, _ string) error {
	return nil
}

func (m *notificationServiceMock) Send(_ context.Context, _ *models.Actor, req dto.SendNotificationRequest) (*dto.SendNotificationResult, error) {
	m.sent = req
	return &dto.SendNotificationResult{Message: "Notification sent to 1 user(s)", Count: len(req.Recipients)}, nil
}

func TestNotificationHandlerListCountsUnread(t *testing.T) {
	svc := &notificationServiceMock{items: []models.Notification{{ID: "a"}, {ID: "b", Read: true}, {ID: "c"}}}
	h := NewNotificationHandler(svc)

	c, w := newContext(http.MethodGet, "/notifications", "", studentClaims)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	meta := decodeEnvelope(t, w)["meta"].(map[string]interface{})
	assert.EqualValues(t, 2, meta["unread"])
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	svc := &notificationServiceMock{}
	h := NewNotificationHandler(svc)

	c, w := newContext(http.MethodPut, "/notifications/n-1/read", "", studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "n-1"}}
	h.MarkRead(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "n-1", svc.marked)

	c, w = newContext(http.MethodPut, "/notifications/missing/read", "", studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.MarkRead(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationHandlerMarkAllRead(t *testing.T) {
	h := NewNotificationHandler(&notificationServiceMock{})

	c, w := newContext(http.MethodPut, "/notifications/mark-all-read", "", studentClaims)
	h.MarkAllRead(c)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 3, data["updated"])
}

func TestNotificationHandlerSend(t *testing.T) {
	svc := &notificationServiceMock{}
	h := NewNotificationHandler(svc)

	c, w := newContext(http.MethodPost, "/notifications/send", `{"recipients":["stu-1"],"title":"Deadline","message":"Friday"}`, advisorClaims)
	h.Send(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"stu-1"}, svc.sent.Recipients)
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
	})
	c, w := newContext(http.MethodGet, "/ready", "", nil)
	h.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(nil, map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	c, w = newContext(http.MethodGet, "/ready", "", nil)
	h.Ready(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "unavailable", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["database"])
	assert.Equal(t, "connection refused", checks["redis"])
}

func TestMetricsHandlerPrometheusWithoutRegistry(t *testing.T) {
	h := NewMetricsHandler(nil, nil)
	c, w := newContext(http.MethodGet, "/metrics", "", nil)
	h.Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
