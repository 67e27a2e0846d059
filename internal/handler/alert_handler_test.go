package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-insights-api/internal/dto"
	"github.com/noah-isme/attendance-insights-api/internal/models"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
)

type alertDispatcherMock struct {
	req      dto.AlertDispatchRequest
	query    dto.AlertHistoryQuery
	err      error
	history  []models.AttendanceAlert
	dispatch *dto.AlertDispatchResponse
}

func (m *alertDispatcherMock) Dispatch(_ context.Context, req dto.AlertDispatchRequest) (*dto.AlertDispatchResponse, error) {
	m.req = req
	return m.dispatch, m.err
}

func (m *alertDispatcherMock) History(_ context.Context, query dto.AlertHistoryQuery) ([]models.AttendanceAlert, error) {
	m.query = query
	return m.history, m.err
}

func TestAlertHandlerDispatch(t *testing.T) {
	mock := &alertDispatcherMock{dispatch: &dto.AlertDispatchResponse{Threshold: 60, Queued: 1}}
	h := NewAlertHandler(mock)

	c, w := newJSONContext(http.MethodPost, "/attendance/alerts", []byte(`{"threshold":60,"student_ids":["E3"]}`))
	h.Dispatch(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, mock.req.Threshold)
	assert.Equal(t, 60.0, *mock.req.Threshold)
	assert.Equal(t, []string{"E3"}, mock.req.StudentIDs)

	c, w = newJSONContext(http.MethodPost, "/attendance/alerts", nil)
	h.Dispatch(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Nil(t, mock.req.Threshold)

	c, w = newJSONContext(http.MethodPost, "/attendance/alerts", []byte(`{"threshold":"high"}`))
	h.Dispatch(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlertHandlerDispatchDisabled(t *testing.T) {
	h := NewAlertHandler(&alertDispatcherMock{err: appErrors.ErrServiceDisabled})
	c, w := newJSONContext(http.MethodPost, "/attendance/alerts", []byte(`{}`))
	h.Dispatch(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAlertHandlerDispatchPartialFailureCarriesQueuedAlerts(t *testing.T) {
	partial := &dto.AlertDispatchResponse{Threshold: 75, Queued: 1, Failed: 1, Alerts: []models.AttendanceAlert{{ID: "alert-1", StudentID: "E3"}}}
	h := NewAlertHandler(&alertDispatcherMock{dispatch: partial, err: appErrors.WithDetails(appErrors.ErrInternal, "failed to enqueue alert", partial)})

	c, w := newJSONContext(http.MethodPost, "/attendance/alerts", []byte(`{}`))
	h.Dispatch(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	details, ok := env.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1.0, details["queued"])
	assert.Equal(t, 1.0, details["failed"])
	assert.Len(t, details["alerts"], 1)
}

func TestAlertHandlerHistory(t *testing.T) {
	mock := &alertDispatcherMock{history: []models.AttendanceAlert{{ID: "a-1", Status: models.AlertStatusSent}}}
	h := NewAlertHandler(mock)

	c, w := newJSONContext(http.MethodGet, "/attendance/alerts?status=SENT&limit=5", nil)
	h.History(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SENT", mock.query.Status)
	assert.Equal(t, 5, mock.query.Limit)
	assert.Equal(t, float64(1), decodeEnvelope(t, w).Meta["total"])
}
