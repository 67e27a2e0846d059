package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-insights-api/internal/dto"
	"github.com/noah-isme/attendance-insights-api/internal/models"
	"github.com/noah-isme/attendance-insights-api/internal/service"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func newJSONContext(method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type reporterMock struct {
	report   *models.AggregateReport
	overview *models.ClassOverview
	cached   bool
	err      error
}

func (m *reporterMock) Report(context.Context) (*models.AggregateReport, bool, error) {
	return m.report, m.cached, m.err
}

func (m *reporterMock) Overview(context.Context) (*models.ClassOverview, bool, error) {
	return m.overview, m.cached, m.err
}

type lowFinderMock struct {
	query dto.LowAttendanceQuery
	resp  *dto.LowAttendanceResponse
	err   error
}

func (m *lowFinderMock) LowAttendance(_ context.Context, query dto.LowAttendanceQuery) (*dto.LowAttendanceResponse, error) {
	m.query = query
	return m.resp, m.err
}

func sampleReport() *models.AggregateReport {
	return &models.AggregateReport{
		Students: []models.StudentAttendance{
			{Name: "Alice", StudentID: "E1", PresentCount: 2, TotalClasses: 3, AttendancePercentage: 66.7},
			{Name: "Bob", StudentID: "E2", PresentCount: 1, TotalClasses: 3, AttendancePercentage: 33.3},
		},
		TotalStudents: 2,
		TotalClasses:  3,
	}
}

func TestAttendanceHandlerReport(t *testing.T) {
	h := NewAttendanceHandler(&reporterMock{report: sampleReport(), cached: true}, nil)
	c, w := newJSONContext(http.MethodGet, "/attendance/report", nil)

	h.Report(c)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])

	var report models.AggregateReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 3, report.TotalClasses)
}

func TestAttendanceHandlerReportSchemaError(t *testing.T) {
	h := NewAttendanceHandler(&reporterMock{err: &service.SchemaError{Missing: []string{"status"}}}, nil)
	c, w := newJSONContext(http.MethodGet, "/attendance/report", nil)

	h.Report(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SCHEMA_ERROR", env.Error.Code)
	assert.Equal(t, []interface{}{"status"}, env.Error.Details.(map[string]interface{})["missing_columns"])
}

func TestAttendanceHandlerReportEmptyInput(t *testing.T) {
	h := NewAttendanceHandler(&reporterMock{err: appErrors.ErrEmptyInput}, nil)
	c, w := newJSONContext(http.MethodGet, "/attendance/report", nil)

	h.Report(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "EMPTY_INPUT", decodeEnvelope(t, w).Error.Code)
}

func TestAttendanceHandlerOverview(t *testing.T) {
	overview := &models.ClassOverview{
		AvgAttendance:  62.5,
		TotalStudents:  4,
		ActiveSubjects: 2,
		BestSubject:    "CN",
		BestBatch:      "B2",
		Subjects:       []models.SubjectOverview{{Source: "cn.csv", Subject: "CN", Batch: "B2", PresentStudents: 3, Attendance: 75}},
	}
	h := NewAttendanceHandler(&reporterMock{overview: overview}, nil)
	c, w := newJSONContext(http.MethodGet, "/attendance/overview", nil)

	h.Overview(c)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, false, env.Meta["cache_hit"])

	var got models.ClassOverview
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 62.5, got.AvgAttendance)
	assert.Equal(t, "B2", got.BestBatch)
	require.Len(t, got.Subjects, 1)
	assert.Equal(t, 3, got.Subjects[0].PresentStudents)

	h = NewAttendanceHandler(&reporterMock{err: appErrors.ErrEmptyInput}, nil)
	c, w = newJSONContext(http.MethodGet, "/attendance/overview", nil)
	h.Overview(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAttendanceHandlerStudentsFilters(t *testing.T) {
	h := NewAttendanceHandler(&reporterMock{report: sampleReport()}, nil)

	c, w := newJSONContext(http.MethodGet, "/attendance/students?search=ali", nil)
	h.Students(c)
	require.Equal(t, http.StatusOK, w.Code)
	var students []models.StudentAttendance
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &students))
	require.Len(t, students, 1)
	assert.Equal(t, "E1", students[0].StudentID)

	c, w = newJSONContext(http.MethodGet, "/attendance/students?below=50", nil)
	h.Students(c)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(env.Data, &students))
	require.Len(t, students, 1)
	assert.Equal(t, "E2", students[0].StudentID)
	assert.Equal(t, float64(1), env.Meta["total"])

	c, w = newJSONContext(http.MethodGet, "/attendance/students?below=150", nil)
	h.Students(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerLowAttendance(t *testing.T) {
	finder := &lowFinderMock{resp: &dto.LowAttendanceResponse{Threshold: 50, Students: sampleReport().Students[1:]}}
	h := NewAttendanceHandler(nil, finder)

	c, w := newJSONContext(http.MethodGet, "/attendance/low?threshold=50", nil)
	h.LowAttendance(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, finder.query.Threshold)
	assert.Equal(t, 50.0, *finder.query.Threshold)

	c, w = newJSONContext(http.MethodGet, "/attendance/low?threshold=abc", nil)
	h.LowAttendance(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
