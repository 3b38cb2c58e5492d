package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/SAP-F-2025/english-practice-service/internal/cache"
	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
)

const (
	BackupFormatJSON = "json"
	BackupFormatZIP  = "zip"

	usersCSV    = "users.csv"
	problemsCSV = "problems.csv"
	recordsCSV  = "student_records.csv"
)

type backupService struct {
	repo      repositories.Repository
	cache     *cache.CacheManager
	publisher events.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewBackupService exports and restores the whole document. API keys live
// in the environment and are never part of a backup.
func NewBackupService(repo repositories.Repository, cm *cache.CacheManager, publisher events.EventPublisher, logger *slog.Logger) BackupService {
	return &backupService{
		repo:      repo,
		cache:     cm,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *backupService) Backup(ctx context.Context, format string) (*BackupFile, error) {
	if format == "" {
		format = BackupFormatJSON
	}

	doc, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot document: %w", err)
	}
	name := "ai_english_backup_" + s.now().Format("20060102_150405")

	var file *BackupFile
	switch format {
	case BackupFormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode backup: %w", err)
		}
		file = &BackupFile{Filename: name + ".json", ContentType: "application/json", Data: data}
	case BackupFormatZIP:
		data, err := zipBackup(doc)
		if err != nil {
			return nil, err
		}
		file = &BackupFile{Filename: name + ".zip", ContentType: "application/zip", Data: data}
	default:
		return nil, NewBusinessRuleError("backup_format", "format must be json or zip", map[string]interface{}{
			"format": format,
		})
	}

	s.logger.Info("Backup created",
		"format", format,
		"filename", file.Filename,
		"bytes", len(file.Data),
		"users", len(doc.Users),
		"problems", len(doc.TeacherProblems))
	return file, nil
}

// Restore accepts either backup format, detected from the file name or the
// ZIP signature.
func (s *backupService) Restore(ctx context.Context, filename string, data []byte, confirm bool, actorID string) (*RestoreSummary, error) {
	s.logger.Info("Restore requested", "filename", filename, "bytes", len(data), "actor", actorID, "confirm", confirm)

	if !confirm {
		return nil, ErrConfirmationRequired
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidBackup)
	}

	var doc *models.Document
	var err error
	if strings.EqualFold(filepath.Ext(filename), ".zip") || bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		doc, err = unzipBackup(data)
	} else {
		doc, err = decodeJSONBackup(data)
	}
	if err != nil {
		return nil, err
	}

	if err := checkRestoredDocument(doc); err != nil {
		return nil, err
	}
	if err := s.repo.Replace(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to restore document: %w", err)
	}

	summary := &RestoreSummary{
		Users:          len(doc.Users),
		Problems:       len(doc.TeacherProblems),
		StudentRecords: len(doc.StudentRecords),
	}
	cache.InvalidateAllStats(ctx, s.cache)
	publish(ctx, s.publisher, s.logger, events.NewEvent(events.DataRestored, actorID, filename, map[string]interface{}{
		"users":            summary.Users,
		"teacher_problems": summary.Problems,
		"student_records":  summary.StudentRecords,
	}))

	s.logger.Warn("Document restored from backup",
		"filename", filename,
		"actor", actorID,
		"users", summary.Users,
		"problems", summary.Problems,
		"records", summary.StudentRecords)
	return summary, nil
}

func decodeJSONBackup(data []byte) (*models.Document, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	var missing []string
	for _, key := range []string{"users", "teacher_problems", "student_records"} {
		if _, ok := sections[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidBackup, strings.Join(missing, ", "))
	}

	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	doc.Normalize()
	return &doc, nil
}

func unzipBackup(data []byte) (*models.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	files := make(map[string]*zip.File)
	for _, f := range zr.File {
		files[filepath.Base(f.Name)] = f
	}
	var missing []string
	for _, name := range []string{usersCSV, problemsCSV, recordsCSV} {
		if _, ok := files[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidBackup, strings.Join(missing, ", "))
	}

	doc := models.NewDocument()
	if err := readZipCSV(files[usersCSV], func(row map[string]string) error {
		return addUserRow(doc, row)
	}); err != nil {
		return nil, err
	}
	if err := readZipCSV(files[problemsCSV], func(row map[string]string) error {
		return addProblemRow(doc, row)
	}); err != nil {
		return nil, err
	}
	if err := readZipCSV(files[recordsCSV], func(row map[string]string) error {
		return addRecordRow(doc, row)
	}); err != nil {
		return nil, err
	}
	return doc, nil
}

// checkRestoredDocument rejects documents that would lock every admin out.
func checkRestoredDocument(doc *models.Document) error {
	hasAdmin := false
	for name, u := range doc.Users {
		if u == nil || !u.Role.IsValid() {
			return fmt.Errorf("%w: user %q has an invalid role", ErrInvalidBackup, name)
		}
		if u.Username == "" {
			u.Username = name
		}
		if u.Role == models.RoleAdmin {
			hasAdmin = true
		}
	}
	if !hasAdmin {
		return NewBusinessRuleError("no_admin", "backup contains no admin account", nil)
	}
	return nil
}
