package service

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-insights-api/internal/models"
)

const unknownLabel = "Unknown"

func roundHundredths(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// Overview rates every source file against the class roster, the distinct student identities found across
// all sources. A source's attendance is the share of the roster present in it. Sources without a valid row
// are left out. Errors match Aggregate.
func (a *AttendanceAggregator) Overview(sources []models.SourceTable) (*models.ClassOverview, error) {
	if len(sources) == 0 {
		return nil, errNoSources()
	}
	layouts, err := schemaLayouts(sources)
	if err != nil {
		return nil, err
	}

	perSource := make([][]models.SessionRecord, len(sources))
	all := make([]models.SessionRecord, 0)
	dropped := 0
	for i, source := range sources {
		records, d := a.ingestSource(source, layouts[i])
		perSource[i] = records
		dropped += d
		all = append(all, records...)
	}
	if len(all) == 0 {
		return nil, errNoValidRows(dropped)
	}

	roster := len(a.resolve(all).studentKeys)
	overview := &models.ClassOverview{
		TotalStudents: roster,
		Subjects:      make([]models.SubjectOverview, 0, len(sources)),
		Trend:         make([]models.OverviewTrendPoint, 0),
	}

	type monthlySeries struct {
		label      string
		months     []string
		attendance float64
	}
	series := make([]monthlySeries, 0)
	seriesIndex := make(map[string]int)

	best := -1
	total := 0.0
	for i, records := range perSource {
		if len(records) == 0 {
			continue
		}
		source := sources[i]
		subject, batch := overviewLabels(source, layouts[i], records)

		present := make(map[string]struct{})
		for key := range a.resolve(records).presence {
			present[key.student] = struct{}{}
		}
		entry := models.SubjectOverview{
			Source:          source.Name,
			Subject:         subject,
			Batch:           batch,
			PresentStudents: len(present),
		}
		if roster > 0 {
			entry.Attendance = roundHundredths(float64(len(present)) / float64(roster) * 100)
		}
		overview.Subjects = append(overview.Subjects, entry)
		total += entry.Attendance
		if best < 0 || entry.Attendance > overview.Subjects[best].Attendance {
			best = len(overview.Subjects) - 1
		}

		months, mean := a.monthlyPresence(records)
		s := monthlySeries{label: fmt.Sprintf("%s (%s)", subject, batch), months: months, attendance: mean}
		// A later file for the same subject and batch replaces the earlier series in place.
		if idx, ok := seriesIndex[s.label]; ok {
			series[idx] = s
		} else {
			seriesIndex[s.label] = len(series)
			series = append(series, s)
		}
	}

	overview.ActiveSubjects = len(overview.Subjects)
	if overview.ActiveSubjects > 0 {
		overview.AvgAttendance = roundHundredths(total / float64(overview.ActiveSubjects))
		overview.BestSubject = overview.Subjects[best].Subject
		overview.BestBatch = overview.Subjects[best].Batch
	}
	for _, s := range series {
		for _, month := range s.months {
			overview.Trend = append(overview.Trend, models.OverviewTrendPoint{Month: month, SubjectBatch: s.label, Attendance: s.attendance})
		}
	}

	a.logger.Debug("class overview built",
		zap.Int("sources", len(sources)),
		zap.Int("active_subjects", overview.ActiveSubjects),
		zap.Int("roster", roster),
	)
	return overview, nil
}

// overviewLabels takes the first non-empty subject and batch cells, then the file name, then "Unknown".
func overviewLabels(source models.SourceTable, layout columnLayout, records []models.SessionRecord) (string, string) {
	subject := ""
	for _, record := range records {
		if record.Subject != "" {
			subject = record.Subject
			break
		}
	}
	batch := ""
	for _, row := range source.Rows {
		if batch = layout.value(row, models.ColumnBatch); batch != "" {
			break
		}
	}

	if parsed, ok := parseSourceName(source.Name, nil); ok {
		if subject == "" {
			subject = parsed.subject
		}
		if batch == "" {
			batch = parsed.batch
		}
	}
	if subject == "" {
		subject = unknownLabel
	}
	if batch == "" {
		batch = unknownLabel
	}
	return subject, batch
}

// monthlyPresence returns the abbreviated months seen, in first-seen order, and the mean number of present
// rows per month.
func (a *AttendanceAggregator) monthlyPresence(records []models.SessionRecord) ([]string, float64) {
	months := make([]string, 0)
	counts := make(map[string]int)
	for _, record := range records {
		month := record.Date.Format("Jan")
		if _, ok := counts[month]; !ok {
			counts[month] = 0
			months = append(months, month)
		}
		if isPresent(record.Status, a.cfg.PresenceKeyword) {
			counts[month]++
		}
	}
	if len(months) == 0 {
		return months, 0
	}
	sum := 0
	for _, month := range months {
		sum += counts[month]
	}
	return months, roundHundredths(float64(sum) / float64(len(months)))
}
