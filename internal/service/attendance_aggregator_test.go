package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-insights-api/internal/models"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
)

var sessionHeader = []string{"Date", "Subject", "Student Name", "ER Number", "Status"}

func table(name string, rows ...[]string) models.SourceTable {
	return models.SourceTable{Name: name, Header: sessionHeader, Rows: rows}
}

func newTestAggregator() *AttendanceAggregator {
	return NewAttendanceAggregator(AggregatorConfig{}, zap.NewNop())
}

func findStudent(t *testing.T, report *models.AggregateReport, id string) models.StudentAttendance {
	t.Helper()
	for _, s := range report.Students {
		if s.StudentID == id {
			return s
		}
	}
	t.Fatalf("student %s not in report", id)
	return models.StudentAttendance{}
}

func TestAggregateTwoSourcesOneRowEach(t *testing.T) {
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv", []string{"2024-01-01", "OS", "Alice", "E1", "Present"}),
		table("b.csv", []string{"2024-01-01", "OS", "Bob", "E2", "Absent"}),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalClasses)
	alice := findStudent(t, report, "E1")
	assert.Equal(t, 1, alice.PresentCount)
	assert.Equal(t, 100.0, alice.AttendancePercentage)
	bob := findStudent(t, report, "E2")
	assert.Equal(t, 0, bob.PresentCount)
	assert.Equal(t, 0.0, bob.AttendancePercentage)
	assert.Equal(t, "E1", report.Students[0].StudentID)
	assert.Equal(t, 2, report.SourceCount)
}

func TestAggregateDuplicateRowAcrossSourcesCountsOnce(t *testing.T) {
	row := []string{"2024-01-01", "OS", "Alice", "E1", "Present"}
	report, err := newTestAggregator().Aggregate([]models.SourceTable{table("a.csv", row), table("a-copy.csv", row)})
	require.NoError(t, err)

	alice := findStudent(t, report, "E1")
	assert.Equal(t, 1, alice.PresentCount)
	assert.Len(t, report.Students, 1)
}

func TestAggregateDropsUnparseableDates(t *testing.T) {
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv",
			[]string{"not a date", "CN", "Alice", "E1", "Present"},
			[]string{"2024-01-01", "OS", "Alice", "E1", "Present"},
			[]string{"2024-01-02", "OS", "Bob", "E2", "present"},
		),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalClasses)
	assert.Equal(t, 1, report.RowsDropped)
	assert.Equal(t, 2, report.RowsIngested)
	assert.Equal(t, 50.0, findStudent(t, report, "E1").AttendancePercentage)
	for _, s := range report.SubjectSummary {
		assert.NotEqual(t, "CN", s.Subject)
	}
}

func TestAggregateUnionSchemaAcceptsMissingStatusInOneSource(t *testing.T) {
	withoutStatus := models.SourceTable{
		Name:   "no-status.csv",
		Header: []string{"date", "subject", "student name", "student id"},
		Rows:   [][]string{{"2024-01-02", "OS", "Carol", "E3"}},
	}
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv", []string{"2024-01-01", "OS", "Alice", "E1", "Present"}),
		withoutStatus,
	})
	require.NoError(t, err)

	carol := findStudent(t, report, "E3")
	assert.Equal(t, 0, carol.PresentCount)
	assert.Equal(t, 2, report.TotalClasses)
}

func TestAggregateEmptyInput(t *testing.T) {
	_, err := newTestAggregator().Aggregate(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrEmptyInput))

	_, err = newTestAggregator().Aggregate([]models.SourceTable{
		table("bad.csv", []string{"??", "OS", "Alice", "E1", "Present"}),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrEmptyInput))
	assert.False(t, errors.Is(err, appErrors.ErrSchema))
}

func TestAggregateSchemaErrorListsMissingColumns(t *testing.T) {
	_, err := newTestAggregator().Aggregate([]models.SourceTable{{
		Name:   "partial.csv",
		Header: []string{"Date", "Student Name"},
		Rows:   [][]string{{"2024-01-01", "Alice"}},
	}})
	require.Error(t, err)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{models.ColumnSubject, models.ColumnStudentID, models.ColumnStatus}, schemaErr.Missing)
	assert.True(t, errors.Is(err, appErrors.ErrSchema))
	assert.Equal(t, 422, appErrors.FromError(err).Status)
}

func TestAggregateDedupIdempotence(t *testing.T) {
	src := table("a.csv",
		[]string{"2024-01-01", "OS", "Alice", "E1", "Present"},
		[]string{"2024-01-01", "CN", "Alice", "E1", "Absent"},
		[]string{"2024-01-02", "OS", "Bob", "E2", "Present"},
		[]string{"2024-01-02", "OS", "Alice", "E1", "present (late)"},
	)
	once, err := newTestAggregator().Aggregate([]models.SourceTable{src})
	require.NoError(t, err)
	twice, err := newTestAggregator().Aggregate([]models.SourceTable{src, src})
	require.NoError(t, err)

	assert.Equal(t, once.Students, twice.Students)
	assert.Equal(t, once.TotalClasses, twice.TotalClasses)
	assert.Equal(t, once.DailyTrend, twice.DailyTrend)
	assert.Equal(t, once.AvgAttendancePct, twice.AvgAttendancePct)
}

func TestAggregateCompletenessAndBounds(t *testing.T) {
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv",
			[]string{"2024-01-01", "OS", "Alice", "E1", "Present"},
			[]string{"2024-01-01", "OS", "Bob", "E2", "Absent"},
			[]string{"2024-01-02", "DBMS", "Alice", "E1", "Absent"},
			[]string{"2024-01-02", "DBMS", "Dan", "E4", ""},
		),
		table("b.csv",
			[]string{"2024-01-03", "AI", "Bob", "E2", "Present"},
			[]string{"2024-01-03", "AI", "Alice", "E1", "PRESENT"},
		),
	})
	require.NoError(t, err)

	seen := make(map[[2]string]int)
	for _, s := range report.Students {
		seen[[2]string{s.Name, s.StudentID}]++
		assert.GreaterOrEqual(t, s.AttendancePercentage, 0.0)
		assert.LessOrEqual(t, s.AttendancePercentage, 100.0)
		assert.LessOrEqual(t, s.PresentCount, s.TotalClasses)
		assert.Equal(t, report.TotalClasses, s.TotalClasses)
	}
	assert.Equal(t, map[[2]string]int{{"Alice", "E1"}: 1, {"Bob", "E2"}: 1, {"Dan", "E4"}: 1}, seen)
	assert.Equal(t, 3, report.TotalStudents)
	assert.Equal(t, 3, report.TotalDays)
	assert.Equal(t, 3, report.TotalClasses)
}

func TestAggregateDerivedSeries(t *testing.T) {
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv",
			[]string{"2024-01-02", "OS", "Alice", "E1", "Present"},
			[]string{"2024-01-02", "CN", "Alice", "E1", "Present"},
			[]string{"2024-01-02", "OS", "Bob", "E2", "Present"},
			[]string{"2024-01-01", "CN", "Bob", "E2", "Absent"},
			[]string{"2024-01-01", "CN", "Alice", "E1", "Absent"},
		),
	})
	require.NoError(t, err)

	// 2024-01-01 had sessions but nobody present, so it is not part of the trend.
	assert.Equal(t, []models.DailyTrendPoint{
		{Date: "2024-01-02", Attendance: 2},
	}, report.DailyTrend)
	assert.Equal(t, []models.SubjectSummary{
		{Subject: "OS", PresentStudents: 2},
		{Subject: "CN", PresentStudents: 1},
	}, report.SubjectSummary)
	assert.Equal(t, 2, report.TotalDays)

	// 3 sessions: (01, CN), (02, OS), (02, CN). Alice present in 2, Bob in 1.
	assert.Equal(t, 66.7, findStudent(t, report, "E1").AttendancePercentage)
	assert.Equal(t, 33.3, findStudent(t, report, "E2").AttendancePercentage)
	// present (student, day) pairs = 2 of 2 students * 2 days.
	assert.Equal(t, 50.0, report.AvgAttendancePct)
}

func TestAggregateRoundsHalfToEven(t *testing.T) {
	rows := make([][]string, 0, 16)
	for day := 1; day <= 16; day++ {
		status := "Absent"
		if day <= 5 {
			status = "Present"
		}
		rows = append(rows, []string{fmt.Sprintf("2024-02-%02d", day), "OS", "Alice", "E1", status})
	}
	rows = append(rows, []string{"2024-02-01", "OS", "Bob", "E2", "Present"})
	report, err := newTestAggregator().Aggregate([]models.SourceTable{{Name: "feb.csv", Header: sessionHeader, Rows: rows}})
	require.NoError(t, err)

	// 5/16 = 31.25 and 1/16 = 6.25 sit exactly on the half.
	assert.Equal(t, 31.2, findStudent(t, report, "E1").AttendancePercentage)
	assert.Equal(t, 6.2, findStudent(t, report, "E2").AttendancePercentage)
	assert.Equal(t, 18.8, roundPercent(18.75))
}

func TestAggregateZeroSessionsGuard(t *testing.T) {
	assert.Equal(t, 0.0, percentage(3, 0))
	assert.Equal(t, 0.0, percentage(0, 0))
}

func TestAggregateStudentOrdering(t *testing.T) {
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv",
			[]string{"2024-01-01", "OS", "Zed", "E9", "Present"},
			[]string{"2024-01-01", "OS", "Amy", "E5", "Present"},
			[]string{"2024-01-02", "OS", "Amy", "E5", "Present"},
			[]string{"2024-01-02", "OS", "Bea", "E3", "Absent"},
			[]string{"2024-01-01", "OS", "Cal", "E1", "Present"},
		),
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(report.Students))
	for _, s := range report.Students {
		ids = append(ids, s.StudentID)
	}
	assert.Equal(t, []string{"E5", "E1", "E9", "E3"}, ids)
}

func TestAggregateIdentityByStudentIDNotName(t *testing.T) {
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv",
			[]string{"2024-01-01", "OS", "Alice", "E1", "Present"},
			[]string{"2024-01-02", "OS", "Alice", "E7", "Absent"},
		),
	})
	require.NoError(t, err)

	assert.Len(t, report.Students, 2)
	assert.Equal(t, 2, report.TotalStudents)
	assert.Equal(t, 1, findStudent(t, report, "E1").PresentCount)
	assert.Equal(t, 0, findStudent(t, report, "E7").PresentCount)
}

func TestAggregateNormalizesHeadersAndText(t *testing.T) {
	src := models.SourceTable{
		Name:   "messy.csv",
		Header: []string{"  DATE ", "Subject", "Student   Name", " student id", "STATUS", "Notes"},
		Rows: [][]string{
			{"01/15/2024", "  OS ", " Alice  Smith", " E1 ", "  Present  ", "x"},
			{"2024-01-15T09:30:00Z", "OS", "Alice Smith", "E1", "present"},
			{"Jan 16, 2024", "OS", "Alice Smith", "E1"},
		},
	}
	report, err := newTestAggregator().Aggregate([]models.SourceTable{src})
	require.NoError(t, err)

	require.Len(t, report.Students, 1)
	alice := report.Students[0]
	assert.Equal(t, "Alice Smith", alice.Name)
	assert.Equal(t, "E1", alice.StudentID)
	assert.Equal(t, 1, alice.PresentCount)
	assert.Equal(t, 2, alice.TotalClasses)
	assert.Equal(t, []models.DailyTrendPoint{{Date: "2024-01-15", Attendance: 1}}, report.DailyTrend)
	assert.Equal(t, 2, report.TotalDays)
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	src := table("a.csv", []string{" 2024-01-01 ", " OS ", " Alice ", " E1 ", " Present "})
	sources := []models.SourceTable{src}

	_, err := newTestAggregator().Aggregate(sources)
	require.NoError(t, err)

	assert.Equal(t, []string{" 2024-01-01 ", " OS ", " Alice ", " E1 ", " Present "}, sources[0].Rows[0])
	assert.Equal(t, sessionHeader, sources[0].Header)
}

func TestAggregateLoosePresenceMatch(t *testing.T) {
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv",
			[]string{"2024-01-01", "OS", "Alice", "E1", "Not Present"},
			[]string{"2024-01-01", "OS", "Bob", "E2", "P"},
		),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, findStudent(t, report, "E1").PresentCount)
	assert.Equal(t, 0, findStudent(t, report, "E2").PresentCount)
}

func TestAggregateSeriesOmitDatesAndSubjectsWithoutPresence(t *testing.T) {
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv",
			[]string{"2024-01-01", "OS", "Alice", "E1", "Present"},
			[]string{"2024-01-02", "CN", "Alice", "E1", "Absent"},
		),
	})
	require.NoError(t, err)

	assert.Equal(t, []models.DailyTrendPoint{{Date: "2024-01-01", Attendance: 1}}, report.DailyTrend)
	assert.Equal(t, []models.SubjectSummary{{Subject: "OS", PresentStudents: 1}}, report.SubjectSummary)
	assert.Equal(t, 2, report.TotalClasses)
	assert.Equal(t, 2, report.TotalDays)
	assert.Equal(t, 50.0, report.AvgAttendancePct)
}

func TestAggregateRowsWithoutStudentIDKeyedByName(t *testing.T) {
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv",
			[]string{"2024-01-01", "OS", "Alice", "E1", "Present"},
			[]string{"2024-01-02", "CN", "Ghost", "", "Present"},
			[]string{"2024-01-02", "CN", "Ghost", "", "Present"},
			[]string{"2024-01-02", "CN", "", "", "Present"},
		),
	})
	require.NoError(t, err)

	require.Len(t, report.Students, 2)
	assert.Equal(t, 2, report.TotalStudents)
	assert.Equal(t, 2, report.TotalClasses)
	ghost := findStudent(t, report, "")
	assert.Equal(t, "Ghost", ghost.Name)
	assert.Equal(t, 1, ghost.PresentCount)
	assert.Equal(t, 50.0, ghost.AttendancePercentage)
	assert.Equal(t, 50.0, findStudent(t, report, "E1").AttendancePercentage)
}

func TestAggregateUnionSchemaAcceptsMissingIDInOneSource(t *testing.T) {
	withoutID := models.SourceTable{
		Name:   "no-id.csv",
		Header: []string{"date", "subject", "student name", "status"},
		Rows:   [][]string{{"2024-01-01", "OS", "Carol", "Present"}},
	}
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv", []string{"2024-01-01", "OS", "Alice", "E1", "Present"}),
		withoutID,
	})
	require.NoError(t, err)

	require.Len(t, report.Students, 2)
	assert.Equal(t, 2, report.TotalStudents)
	carol := findStudent(t, report, "")
	assert.Equal(t, "Carol", carol.Name)
	assert.Equal(t, 1, carol.PresentCount)
	assert.Equal(t, 100.0, carol.AttendancePercentage)
	assert.Equal(t, []models.DailyTrendPoint{{Date: "2024-01-01", Attendance: 2}}, report.DailyTrend)
	assert.Equal(t, []models.SubjectSummary{{Subject: "OS", PresentStudents: 2}}, report.SubjectSummary)
}

func TestAggregateSameNameWithAndWithoutIDAreDistinct(t *testing.T) {
	report, err := newTestAggregator().Aggregate([]models.SourceTable{
		table("a.csv",
			[]string{"2024-01-01", "OS", "Carol", "E3", "Present"},
			[]string{"2024-01-02", "OS", "Carol", "", "Absent"},
		),
	})
	require.NoError(t, err)

	seen := make(map[[2]string]int)
	for _, s := range report.Students {
		seen[[2]string{s.Name, s.StudentID}]++
	}
	assert.Equal(t, map[[2]string]int{{"Carol", "E3"}: 1, {"Carol", ""}: 1}, seen)
	assert.Equal(t, 1, findStudent(t, report, "E3").PresentCount)
	assert.Equal(t, 0, findStudent(t, report, "").PresentCount)
}

func TestParseSessionDate(t *testing.T) {
	cases := map[string]string{
		"2024-03-05":          "2024-03-05",
		"20240305":            "2024-03-05",
		"03/05/2024":          "2024-03-05",
		"March 5, 2024":       "2024-03-05",
		"2024-03-05 14:22:01": "2024-03-05",
		"45356":               "2024-03-05",
		"2024":                "2024-01-01",
		"15/01/2024":          "2024-01-15",
		"31/12/2023":          "2023-12-31",
	}
	for raw, want := range cases {
		got, ok := parseSessionDate(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got.Format(sessionDateLayout), raw)
	}

	for _, raw := range []string{"", "  ", "tomorrow-ish", "0", "-4", "32/13/2024", "20241345"} {
		_, ok := parseSessionDate(raw)
		assert.False(t, ok, raw)
	}
}
