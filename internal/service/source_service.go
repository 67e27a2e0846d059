package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-insights-api/internal/models"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
	"github.com/noah-isme/attendance-insights-api/pkg/storage"
	"github.com/noah-isme/attendance-insights-api/pkg/tabular"
)

var safeFileName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._ -]*$`)

// SourceRepository persists uploaded session files.
type SourceRepository interface {
	SourceStore
	Save(name string, data []byte) (string, error)
	Delete(name string) error
}

// ReportInvalidator drops derived reports after the sources change.
type ReportInvalidator interface {
	Invalidate(ctx context.Context)
}

// UploadFile is one file received for storage.
type UploadFile struct {
	Name    string
	Size    int64
	Content io.Reader
}

// SourceServiceConfig holds upload limits and subject code aliases.
type SourceServiceConfig struct {
	MaxFileSizeBytes int64
	SubjectAliases   map[string]string
}

// SourceService manages the stored attendance session files.
type SourceService struct {
	repo        SourceRepository
	invalidator ReportInvalidator
	cfg         SourceServiceConfig
	logger      *zap.Logger
}

// NewSourceService constructs a source service.
func NewSourceService(repo SourceRepository, invalidator ReportInvalidator, cfg SourceServiceConfig, logger *zap.Logger) *SourceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 10 * 1024 * 1024
	}
	aliases := make(map[string]string, len(cfg.SubjectAliases))
	for code, name := range cfg.SubjectAliases {
		aliases[strings.ToUpper(code)] = name
	}
	cfg.SubjectAliases = aliases
	return &SourceService{repo: repo, invalidator: invalidator, cfg: cfg, logger: logger}
}

// Upload validates and stores files. Every file is checked before any is written.
func (s *SourceService) Upload(ctx context.Context, files []UploadFile) ([]models.SourceMetadata, error) {
	if len(files) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one file is required")
	}

	type accepted struct {
		name    string
		content []byte
		table   models.SourceTable
	}
	ready := make([]accepted, 0, len(files))
	for _, file := range files {
		name, err := cleanFileName(file.Name)
		if err != nil {
			return nil, err
		}
		if _, err := tabular.DetectFormat(name); err != nil {
			return nil, appErrors.WithDetails(appErrors.ErrUnsupportedFormat, "only .csv and .xlsx files are accepted", map[string]interface{}{"file": name})
		}
		if file.Size > s.cfg.MaxFileSizeBytes {
			return nil, tooLarge(name, s.cfg.MaxFileSizeBytes)
		}
		content, err := io.ReadAll(io.LimitReader(file.Content, s.cfg.MaxFileSizeBytes+1))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
		}
		if int64(len(content)) > s.cfg.MaxFileSizeBytes {
			return nil, tooLarge(name, s.cfg.MaxFileSizeBytes)
		}
		table, err := tabular.Read(name, bytes.NewReader(content))
		if err != nil {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "file could not be parsed", map[string]interface{}{"file": name, "cause": err.Error()})
		}
		if len(table.Header) == 0 {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "file has no header row", map[string]interface{}{"file": name})
		}
		ready = append(ready, accepted{name: name, content: content, table: table})
	}

	result := make([]models.SourceMetadata, 0, len(ready))
	now := time.Now().UTC()
	for _, file := range ready {
		if _, err := s.repo.Save(file.name, file.content); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store source")
		}
		meta := s.describe(storage.FileInfo{Name: file.name, Size: int64(len(file.content)), ModTime: now})
		meta.Records = len(file.table.Rows)
		meta.Status = models.SourceStatusReady
		result = append(result, meta)
		s.logger.Info("attendance source stored", zap.String("file", file.name), zap.Int("records", meta.Records))
	}
	s.invalidate(ctx)
	return result, nil
}

// List returns metadata for every stored source, counting the data rows of each.
func (s *SourceService) List(ctx context.Context) ([]models.SourceMetadata, error) {
	files, err := s.repo.List()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sources")
	}
	result := make([]models.SourceMetadata, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := tabular.DetectFormat(file.Name); err != nil {
			continue
		}
		meta := s.describe(file)
		meta.Status = models.SourceStatusReady
		if records, err := s.countRecords(file.Name); err != nil {
			s.logger.Warn("source unreadable", zap.String("file", file.Name), zap.Error(err))
			meta.Status = models.SourceStatusUnreadable
		} else {
			meta.Records = records
		}
		result = append(result, meta)
	}
	return result, nil
}

// Delete removes a stored source.
func (s *SourceService) Delete(ctx context.Context, name string) error {
	clean, err := cleanFileName(name)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(clean); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("source %s not found", clean))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete source")
	}
	s.logger.Info("attendance source deleted", zap.String("file", clean))
	s.invalidate(ctx)
	return nil
}

func (s *SourceService) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

func (s *SourceService) countRecords(name string) (int, error) {
	rc, err := s.repo.Open(name)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck
	table, err := tabular.Read(name, rc)
	if err != nil {
		return 0, err
	}
	return len(table.Rows), nil
}

// describe derives display metadata from the <yyyymmdd>_<batch>_<section>_<subject> naming convention.
func (s *SourceService) describe(file storage.FileInfo) models.SourceMetadata {
	meta := models.SourceMetadata{
		FileName:    file.Name,
		DisplayName: file.Name,
		Batch:       "-",
		Section:     "-",
		Subject:     "-",
		SessionDate: "-",
		SizeBytes:   file.Size,
		UploadedAt:  file.ModTime.UTC(),
	}
	parsed, ok := parseSourceName(file.Name, s.cfg.SubjectAliases)
	if !ok {
		return meta
	}
	meta.Batch = parsed.batch
	meta.Section = parsed.section
	meta.Subject = parsed.subject
	meta.SessionDate = parsed.date.Format(sessionDateLayout)
	meta.DisplayName = fmt.Sprintf("%s | Batch %s | Section %s | %s", parsed.subject, parsed.batch, parsed.section, parsed.date.Format("02 Jan 2006"))
	meta.MetadataResolved = true
	return meta
}

type sourceName struct {
	date    time.Time
	batch   string
	section string
	subject string
}

// parseSourceName splits <yyyymmdd>_<batch>_<section>_<subject>[.ext], expanding subject codes through aliases.
func parseSourceName(name string, aliases map[string]string) (sourceName, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(stem, "_")
	if len(parts) < 4 {
		return sourceName{}, false
	}
	date, err := time.Parse("20060102", parts[0])
	if err != nil {
		return sourceName{}, false
	}
	subject := parts[3]
	if alias, ok := aliases[strings.ToUpper(subject)]; ok {
		subject = alias
	}
	return sourceName{date: date, batch: parts[1], section: parts[2], subject: subject}, true
}

// cleanFileName strips any directory part and rejects names unsafe to store.
func cleanFileName(raw string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/"))
	if name == "." || name == "/" || !safeFileName.MatchString(name) || len(name) > 200 {
		return "", appErrors.WithDetails(appErrors.ErrValidation, "invalid file name", map[string]interface{}{"file": raw})
	}
	return name, nil
}

func tooLarge(name string, limit int64) error {
	return appErrors.WithDetails(appErrors.ErrPayloadTooLarge, "file exceeds the upload limit", map[string]interface{}{
		"file":        name,
		"limit_bytes": limit,
	})
}
