package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/attendance-insights-api/internal/models"
	"github.com/noah-isme/attendance-insights-api/internal/service"
	"github.com/noah-isme/attendance-insights-api/pkg/tabular"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type lowAttendanceOutput struct {
	Threshold float64                    `json:"threshold"`
	Students  []models.StudentAttendance `json:"students"`
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("attendance-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	threshold := fs.Float64("threshold", 0, "only print students strictly below this percentage (0 prints the full report)")
	keyword := fs.String("present", "present", "status keyword counted as presence")
	verbose := fs.Bool("v", false, "log dropped rows and aggregation details to stderr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: attendance-report [flags] <file.csv|file.xlsx|dir>...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	if *threshold < 0 || *threshold > 100 {
		fmt.Fprintln(stderr, "threshold must be between 0 and 100")
		return 2
	}

	logr := zap.NewNop()
	if *verbose {
		encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		logr = zap.New(zapcore.NewCore(encoder, zapcore.AddSync(stderr), zapcore.DebugLevel))
	}
	defer logr.Sync() //nolint:errcheck

	paths, err := expandPaths(fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	sources, err := readSources(paths)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	aggregator := service.NewAttendanceAggregator(service.AggregatorConfig{PresenceKeyword: *keyword}, logr)
	report, err := aggregator.Aggregate(sources)
	if err != nil {
		var schemaErr *service.SchemaError
		if errors.As(err, &schemaErr) {
			fmt.Fprintf(stderr, "missing required columns: %v\n", schemaErr.Missing)
			return 1
		}
		fmt.Fprintln(stderr, err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	var out interface{} = report
	if *threshold > 0 {
		out = lowAttendanceOutput{Threshold: *threshold, Students: report.BelowThreshold(*threshold)}
	}
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// expandPaths replaces directories with the supported files they directly contain.
func expandPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		found := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if _, err := tabular.DetectFormat(entry.Name()); err == nil {
				found = append(found, filepath.Join(arg, entry.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

func readSources(paths []string) ([]models.SourceTable, error) {
	sources := make([]models.SourceTable, 0, len(paths))
	for _, path := range paths {
		table, err := readSource(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, table)
	}
	return sources, nil
}

func readSource(path string) (models.SourceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.SourceTable{}, err
	}
	defer f.Close() //nolint:errcheck
	return tabular.Read(filepath.Base(path), f)
}
