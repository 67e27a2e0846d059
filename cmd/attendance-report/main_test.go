package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-insights-api/internal/models"
)

const mondayCSV = "Date,Subject,Student Name,Student ID,Status\n" +
	"2024-01-15,Math,Ana,S1,Present\n" +
	"2024-01-15,Math,Budi,S2,Absent\n"

const tuesdayCSV = "Date,Subject,Student Name,Student ID,Status\n" +
	"2024-01-16,Physics,Ana,S1,Present\n" +
	"2024-01-16,Physics,Budi,S2,Present\n"

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunPrintsReportForDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "monday.csv", mondayCSV)
	writeFixture(t, dir, "tuesday.csv", tuesdayCSV)
	writeFixture(t, dir, "notes.txt", "ignored")

	var stdout, stderr bytes.Buffer
	code := run([]string{dir}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var report models.AggregateReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, 2, report.SourceCount)
	assert.Equal(t, 2, report.TotalClasses)
	require.Len(t, report.Students, 2)
	assert.Equal(t, "S1", report.Students[0].StudentID)
	assert.Equal(t, 100.0, report.Students[0].AttendancePercentage)
	assert.Equal(t, 50.0, report.Students[1].AttendancePercentage)
}

func TestRunThresholdFiltersStudents(t *testing.T) {
	dir := t.TempDir()
	monday := writeFixture(t, dir, "monday.csv", mondayCSV)
	tuesday := writeFixture(t, dir, "tuesday.csv", tuesdayCSV)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-threshold", "75", monday, tuesday}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var out lowAttendanceOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, 75.0, out.Threshold)
	require.Len(t, out.Students, 1)
	assert.Equal(t, "S2", out.Students[0].StudentID)
}

func TestRunReportsSchemaErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "broken.csv", "Date,Subject\n2024-01-15,Math\n")

	var stdout, stderr bytes.Buffer
	code := run([]string{path}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "missing required columns")
	assert.Empty(t, stdout.String())
}

func TestRunUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Equal(t, 2, run([]string{"-threshold", "150", "x.csv"}, &stdout, &stderr))
	assert.Equal(t, 1, run([]string{filepath.Join(t.TempDir(), "missing.csv")}, &stdout, &stderr))
}
