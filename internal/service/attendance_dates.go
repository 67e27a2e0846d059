package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/xuri/excelize/v2"
)

const sessionDateLayout = "2006-01-02"

// maxExcelSerial is 9999-12-31 in the 1900 date system.
const maxExcelSerial = 2958465

// parseSessionDate accepts ISO dates, slash/dash/dot dates (month first when ambiguous, day first when
// month first is impossible), month-name dates, timestamps, bare years, compact yyyymmdd and Excel serial
// day numbers. The result is truncated to a UTC calendar day.
func parseSessionDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if isDigits(raw) {
		switch len(raw) {
		case 4:
			t, err := time.Parse("2006", raw)
			if err != nil {
				return time.Time{}, false
			}
			return calendarDay(t), true
		case 8:
			t, err := time.Parse("20060102", raw)
			if err != nil {
				return time.Time{}, false
			}
			return calendarDay(t), true
		}
	}

	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if serial < 1 || serial > maxExcelSerial {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return calendarDay(t), true
	}

	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		// 15/01/2024 only makes sense day first.
		t, err = dateparse.ParseIn(raw, time.UTC, dateparse.PreferMonthFirst(false))
		if err != nil {
			return time.Time{}, false
		}
	}
	return calendarDay(t), true
}

func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
