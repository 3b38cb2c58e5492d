package repositories

import (
	"context"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

type RecordRepository interface {
	// Get returns ErrNotFound when the student has no record yet.
	Get(ctx context.Context, username string) (*models.StudentRecord, error)
	List(ctx context.Context) (map[string]*models.StudentRecord, error)

	// Ensure creates an empty record when none exists.
	Ensure(ctx context.Context, username string) error
	// Append adds solved problems and an optional session summary, keeping
	// total_problems in step with the solved list.
	Append(ctx context.Context, username string, solved []models.SolvedProblemRecord, session *models.SessionSummary) error
	// UpdateSolved applies fn to the solved problem at index.
	UpdateSolved(ctx context.Context, username string, index int, fn func(*models.SolvedProblemRecord) error) error
	Delete(ctx context.Context, username string) error
}
