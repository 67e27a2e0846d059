package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-insights-api/internal/dto"
	"github.com/noah-isme/attendance-insights-api/internal/models"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
	"github.com/noah-isme/attendance-insights-api/pkg/storage"
)

func exportReport() *models.AggregateReport {
	report := lowAttendanceReport()
	report.Students[0].PresentCount, report.Students[0].TotalClasses = 4, 4
	report.DailyTrend = []models.DailyTrendPoint{{Date: "2024-03-04", Attendance: 3}}
	report.SubjectSummary = []models.SubjectSummary{{Subject: "OS", PresentStudents: 3}}
	return report
}

func newExportFixture(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(stubReports{report: exportReport()}, store, signer, nil, ExportConfig{APIPrefix: "/api/v1/"}, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 6, 9, 30, 0, 0, time.UTC) }
	return svc, store
}

func readDownload(t *testing.T, svc *ExportService, url string) (*ExportDownload, string) {
	t.Helper()
	token := url[strings.LastIndex(url, "/")+1:]
	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	body, err := io.ReadAll(download.Content)
	require.NoError(t, err)
	require.NoError(t, download.Content.Close())
	return download, string(body)
}

func TestExportServiceCreateCSV(t *testing.T) {
	svc, _ := newExportFixture(t)

	resp, err := svc.Create(context.Background(), dto.ExportRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.URL, "/api/v1/export/"))
	assert.True(t, strings.HasPrefix(resp.FileName, "attendance_students_20240306T093000_"))
	assert.True(t, strings.HasSuffix(resp.FileName, ".csv"))

	download, body := readDownload(t, svc, resp.URL)
	assert.Equal(t, "text/csv", download.ContentType)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Student ID,Name,Present,Total Classes,Attendance %", lines[0])
	assert.Equal(t, "E1,Alice,4,4,100.0", lines[1])
}

func TestExportServiceSections(t *testing.T) {
	svc, _ := newExportFixture(t)
	report := exportReport()

	trend := svc.buildDataset(report, dto.ExportRequest{Section: ExportSectionDailyTrend})
	assert.Equal(t, [][]string{{"2024-03-04", "3"}}, trend.Rows)

	subjects := svc.buildDataset(report, dto.ExportRequest{Section: ExportSectionSubjects})
	assert.Equal(t, [][]string{{"OS", "3"}}, subjects.Rows)

	low := svc.buildDataset(report, dto.ExportRequest{Section: ExportSectionLowAttendance})
	assert.Equal(t, "Attendance Below 75.0%", low.Title)
	require.Len(t, low.Rows, 2)
	assert.Equal(t, "33.3", low.Rows[1][4])

	threshold := 60.0
	low = svc.buildDataset(report, dto.ExportRequest{Section: ExportSectionLowAttendance, Threshold: &threshold})
	assert.Len(t, low.Rows, 2)
}

func TestExportServiceCreateXLSXAndPDF(t *testing.T) {
	svc, _ := newExportFixture(t)
	for _, format := range []models.ExportFormat{models.ExportFormatXLSX, models.ExportFormatPDF} {
		resp, err := svc.Create(context.Background(), dto.ExportRequest{Format: format, Section: ExportSectionSubjects})
		require.NoError(t, err)
		download, body := readDownload(t, svc, resp.URL)
		assert.NotEmpty(t, body)
		assert.Equal(t, resp.FileName, download.FileName)
	}
}

func TestExportServiceValidation(t *testing.T) {
	svc, _ := newExportFixture(t)
	_, err := svc.Create(context.Background(), dto.ExportRequest{Format: "docx"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), dto.ExportRequest{Format: models.ExportFormatCSV, Section: "grades"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestExportServiceResolveDownloadErrors(t *testing.T) {
	svc, store := newExportFixture(t)

	_, err := svc.ResolveDownload(context.Background(), "bogus")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	resp, err := svc.Create(context.Background(), dto.ExportRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)
	_, err = store.CleanupOlderThan(-time.Minute)
	require.NoError(t, err)
	_, err = svc.ResolveDownload(context.Background(), resp.URL[strings.LastIndex(resp.URL, "/")+1:])
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestExportServiceDisabled(t *testing.T) {
	svc := NewExportService(stubReports{report: exportReport()}, nil, nil, nil, ExportConfig{}, nil)
	_, err := svc.Create(context.Background(), dto.ExportRequest{Format: models.ExportFormatCSV})
	assert.True(t, errors.Is(err, appErrors.ErrServiceDisabled))
}
