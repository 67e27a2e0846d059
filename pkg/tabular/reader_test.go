package tabular

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV(t *testing.T) {
	payload := "\xEF\xBB\xBFDate,Subject,Student Name,ER Number,Status\n" +
		"2024-01-01,OS,Alice,E1,Present\n" +
		",,,,\n" +
		"2024-01-01,OS,Bob,E2\n"

	tbl, err := Read("20240101_2020-2024_A_OS.csv", strings.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Subject", "Student Name", "ER Number", "Status"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"2024-01-01", "OS", "Bob", "E2"}, tbl.Rows[1])
	assert.Equal(t, "20240101_2020-2024_A_OS.csv", tbl.Name)
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Date", "Subject", "Student Name", "ER Number", "Status"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{45292, "OS", "Alice", 1001, "Present"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	tbl, err := Read("session.XLSX", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []string{"45292", "OS", "Alice", "1001", "Present"}, tbl.Rows[0])
}

func TestReadUnsupported(t *testing.T) {
	_, err := Read("notes.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestReadHeaderOnly(t *testing.T) {
	tbl, err := Read("empty.csv", strings.NewReader("\n\nDate,Subject\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Subject"}, tbl.Header)
	assert.Empty(t, tbl.Rows)
}
