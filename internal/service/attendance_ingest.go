package service

import (
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-insights-api/internal/models"
)

// columnSynonyms maps normalized header text onto canonical column names.
var columnSynonyms = map[string]string{
	"date":                models.ColumnDate,
	"session date":        models.ColumnDate,
	"attendance date":     models.ColumnDate,
	"subject":             models.ColumnSubject,
	"subject name":        models.ColumnSubject,
	"course":              models.ColumnSubject,
	"student name":        models.ColumnStudentName,
	"name":                models.ColumnStudentName,
	"student id":          models.ColumnStudentID,
	"er number":           models.ColumnStudentID,
	"er no":               models.ColumnStudentID,
	"er no.":              models.ColumnStudentID,
	"enrollment number":   models.ColumnStudentID,
	"registration number": models.ColumnStudentID,
	"status":              models.ColumnStatus,
	"attendance status":   models.ColumnStatus,
	"batch":               models.ColumnBatch,
	"division":            models.ColumnBatch,
	"class":               models.ColumnBatch,
}

// normalizeColumnName lower-cases, trims and collapses inner whitespace.
func normalizeColumnName(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// canonicalColumn resolves a raw header to its canonical name; ok is false for unrelated columns.
func canonicalColumn(raw string) (string, bool) {
	canonical, ok := columnSynonyms[normalizeColumnName(raw)]
	return canonical, ok
}

// normalizeText trims and collapses inner whitespace while keeping case.
func normalizeText(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// columnLayout holds, per canonical column, the header positions feeding it in one source.
type columnLayout map[string][]int

func layoutFor(header []string) columnLayout {
	layout := make(columnLayout)
	for idx, name := range header {
		if canonical, ok := canonicalColumn(name); ok {
			layout[canonical] = append(layout[canonical], idx)
		}
	}
	return layout
}

// value returns the first non-empty cell feeding column; absent columns and short rows read as null ("").
func (l columnLayout) value(row []string, column string) string {
	for _, idx := range l[column] {
		if idx >= len(row) {
			continue
		}
		if v := normalizeText(row[idx]); v != "" {
			return v
		}
	}
	return ""
}

// missingColumns checks the union schema across all sources.
func missingColumns(layouts []columnLayout) []string {
	missing := make([]string, 0)
	for _, column := range models.RequiredColumns {
		found := false
		for _, layout := range layouts {
			if len(layout[column]) > 0 {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, column)
		}
	}
	return missing
}

// ingestResult is the merged canonical table plus row accounting.
type ingestResult struct {
	records []models.SessionRecord
	total   int
	dropped int
}

// schemaLayouts resolves every source header and checks the union schema.
func schemaLayouts(sources []models.SourceTable) ([]columnLayout, error) {
	layouts := make([]columnLayout, len(sources))
	for i, source := range sources {
		layouts[i] = layoutFor(source.Header)
	}
	if missing := missingColumns(layouts); len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}
	return layouts, nil
}

// ingest merges all sources into canonical session records, preserving source then row order.
// Rows whose date cannot be parsed are dropped and counted.
func (a *AttendanceAggregator) ingest(sources []models.SourceTable) (*ingestResult, error) {
	layouts, err := schemaLayouts(sources)
	if err != nil {
		return nil, err
	}

	result := &ingestResult{}
	for i, source := range sources {
		records, dropped := a.ingestSource(source, layouts[i])
		result.total += len(source.Rows)
		result.dropped += dropped
		result.records = append(result.records, records...)
	}
	return result, nil
}

func (a *AttendanceAggregator) ingestSource(source models.SourceTable, layout columnLayout) ([]models.SessionRecord, int) {
	records := make([]models.SessionRecord, 0, len(source.Rows))
	dropped := 0
	for rowIdx, row := range source.Rows {
		rawDate := layout.value(row, models.ColumnDate)
		date, ok := parseSessionDate(rawDate)
		if !ok {
			dropped++
			a.logger.Debug("drop attendance row",
				zap.String("source", source.Name),
				zap.Int("row", rowIdx+1),
				zap.String("date", rawDate),
			)
			continue
		}
		records = append(records, models.SessionRecord{
			Date:        date,
			Subject:     layout.value(row, models.ColumnSubject),
			StudentName: layout.value(row, models.ColumnStudentName),
			StudentID:   layout.value(row, models.ColumnStudentID),
			Status:      strings.ToLower(layout.value(row, models.ColumnStatus)),
		})
	}
	return records, dropped
}
