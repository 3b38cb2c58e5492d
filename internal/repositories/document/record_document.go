package document

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
)

type recordRepository struct {
	r *Repository
}

func copyRecord(rec *models.StudentRecord) *models.StudentRecord {
	out := &models.StudentRecord{
		TotalProblems:  rec.TotalProblems,
		SolvedProblems: make([]models.SolvedProblemRecord, len(rec.SolvedProblems)),
		Sessions:       make([]models.SessionSummary, len(rec.Sessions)),
	}
	copy(out.SolvedProblems, rec.SolvedProblems)
	copy(out.Sessions, rec.Sessions)
	return out
}

func (rr *recordRepository) Get(ctx context.Context, username string) (*models.StudentRecord, error) {
	var out *models.StudentRecord
	err := rr.r.read(func(doc *models.Document) error {
		rec, ok := doc.StudentRecords[username]
		if !ok {
			return fmt.Errorf("student record %q: %w", username, repositories.ErrNotFound)
		}
		out = copyRecord(rec)
		return nil
	})
	return out, err
}

func (rr *recordRepository) List(ctx context.Context) (map[string]*models.StudentRecord, error) {
	out := map[string]*models.StudentRecord{}
	err := rr.r.read(func(doc *models.Document) error {
		for name, rec := range doc.StudentRecords {
			out[name] = copyRecord(rec)
		}
		return nil
	})
	return out, err
}

func (rr *recordRepository) Ensure(ctx context.Context, username string) error {
	return rr.r.write(ctx, func(doc *models.Document) error {
		if _, ok := doc.StudentRecords[username]; !ok {
			doc.StudentRecords[username] = models.NewStudentRecord()
		}
		return nil
	})
}

func (rr *recordRepository) Append(ctx context.Context, username string, solved []models.SolvedProblemRecord, session *models.SessionSummary) error {
	return rr.r.write(ctx, func(doc *models.Document) error {
		rec, ok := doc.StudentRecords[username]
		if !ok {
			rec = models.NewStudentRecord()
			doc.StudentRecords[username] = rec
		}
		rec.SolvedProblems = append(rec.SolvedProblems, solved...)
		rec.TotalProblems += len(solved)
		if session != nil {
			rec.Sessions = append(rec.Sessions, *session)
		}
		return nil
	})
}

func (rr *recordRepository) UpdateSolved(ctx context.Context, username string, index int, fn func(*models.SolvedProblemRecord) error) error {
	return rr.r.write(ctx, func(doc *models.Document) error {
		rec, ok := doc.StudentRecords[username]
		if !ok {
			return fmt.Errorf("student record %q: %w", username, repositories.ErrNotFound)
		}
		if index < 0 || index >= len(rec.SolvedProblems) {
			return fmt.Errorf("solved problem %d of %q: %w", index, username, repositories.ErrOutOfRange)
		}
		return fn(&rec.SolvedProblems[index])
	})
}

func (rr *recordRepository) Delete(ctx context.Context, username string) error {
	return rr.r.write(ctx, func(doc *models.Document) error {
		delete(doc.StudentRecords, username)
		return nil
	})
}
