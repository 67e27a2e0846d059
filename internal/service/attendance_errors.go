package service

import (
	"fmt"
	"strings"

	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
)

// SchemaError reports canonical columns missing from the merged schema of all sources.
type SchemaError struct {
	Missing []string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Unwrap exposes the HTTP-aware error so handlers render a 422 with the column list.
func (e *SchemaError) Unwrap() error {
	return appErrors.WithDetails(appErrors.ErrSchema, e.Error(), map[string]interface{}{
		"missing_columns": e.Missing,
	})
}

func errNoSources() error {
	return appErrors.Clone(appErrors.ErrEmptyInput, "no attendance sources provided")
}

func errNoValidRows(dropped int) error {
	return appErrors.WithDetails(appErrors.ErrEmptyInput, "no valid attendance rows after normalization", map[string]interface{}{
		"rows_dropped": dropped,
	})
}
