package tabular

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/noah-isme/attendance-insights-api/internal/models"
)

// Format identifies a supported tabular file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupported is returned for file extensions without a reader.
var ErrUnsupported = fmt.Errorf("unsupported tabular format")

// DetectFormat maps a file name onto a Format by extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(name))
	}
}

// Read parses r as the format implied by name. The first non-blank row is the header.
func Read(name string, r io.Reader) (models.SourceTable, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return models.SourceTable{}, err
	}
	var rows [][]string
	switch format {
	case FormatCSV:
		rows, err = readCSV(r)
	case FormatXLSX:
		rows, err = readXLSX(r)
	}
	if err != nil {
		return models.SourceTable{}, fmt.Errorf("read %s: %w", name, err)
	}
	return toTable(name, rows), nil
}

func toTable(name string, rows [][]string) models.SourceTable {
	table := models.SourceTable{Name: name}
	start := 0
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return table
	}
	table.Header = rows[start]
	body := make([][]string, 0, len(rows)-start-1)
	for _, row := range rows[start+1:] {
		if blank(row) {
			continue
		}
		body = append(body, row)
	}
	table.Rows = body
	return table
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
