package service

import (
	"math"
	"sort"

	"github.com/noah-isme/attendance-insights-api/internal/models"
)

// roundPercent rounds half-to-even at one decimal, applied to every derived percentage.
func roundPercent(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}

func percentage(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return roundPercent(float64(part) / float64(whole) * 100)
}

// derive computes the report figures from a resolved ledger.
func derive(ledger *attendanceLedger) *models.AggregateReport {
	totalClasses := len(ledger.sessions)

	presentByStudent := make(map[string]int)
	studentsByDate := make(map[string]map[string]struct{})
	studentsBySubject := make(map[string]map[string]struct{})
	presentDays := make(map[[2]string]struct{})
	for key := range ledger.presence {
		presentByStudent[key.student]++
		addToSet(studentsByDate, key.session.date, key.student)
		addToSet(studentsBySubject, key.session.subject, key.student)
		presentDays[[2]string{key.student, key.session.date}] = struct{}{}
	}

	students := make([]models.StudentAttendance, 0, len(ledger.identities))
	for _, identity := range ledger.identities {
		present := presentByStudent[identity.key()]
		students = append(students, models.StudentAttendance{
			Name:                 identity.name,
			StudentID:            identity.id,
			PresentCount:         present,
			TotalClasses:         totalClasses,
			AttendancePercentage: percentage(present, totalClasses),
		})
	}
	sortStudents(students)

	// Both series are built from presence facts only: a date or subject nobody attended is omitted.
	trend := make([]models.DailyTrendPoint, 0, len(studentsByDate))
	for date, present := range studentsByDate {
		trend = append(trend, models.DailyTrendPoint{Date: date, Attendance: len(present)})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Date < trend[j].Date })

	subjects := make([]models.SubjectSummary, 0, len(studentsBySubject))
	for subject, present := range studentsBySubject {
		subjects = append(subjects, models.SubjectSummary{Subject: subject, PresentStudents: len(present)})
	}
	sort.Slice(subjects, func(i, j int) bool {
		if subjects[i].PresentStudents != subjects[j].PresentStudents {
			return subjects[i].PresentStudents > subjects[j].PresentStudents
		}
		return subjects[i].Subject < subjects[j].Subject
	})

	totalStudents := len(ledger.studentKeys)
	totalDays := len(ledger.dates)

	return &models.AggregateReport{
		Students:         students,
		DailyTrend:       trend,
		SubjectSummary:   subjects,
		TotalStudents:    totalStudents,
		TotalDays:        totalDays,
		TotalClasses:     totalClasses,
		AvgAttendancePct: percentage(len(presentDays), totalStudents*totalDays),
	}
}

// sortStudents orders by percentage desc, present count desc, then student id and name ascending.
func sortStudents(students []models.StudentAttendance) {
	sort.SliceStable(students, func(i, j int) bool {
		a, b := students[i], students[j]
		if a.AttendancePercentage != b.AttendancePercentage {
			return a.AttendancePercentage > b.AttendancePercentage
		}
		if a.PresentCount != b.PresentCount {
			return a.PresentCount > b.PresentCount
		}
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		return a.Name < b.Name
	})
}

func addToSet(sets map[string]map[string]struct{}, key, member string) {
	set, ok := sets[key]
	if !ok {
		set = make(map[string]struct{})
		sets[key] = set
	}
	set[member] = struct{}{}
}
