package repositories

import (
	"context"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

type ProblemRepository interface {
	GetByID(ctx context.Context, id string) (*models.Problem, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.Problem, error)
	// List returns matching problems, newest first.
	List(ctx context.Context, filter models.ProblemFilter) ([]*models.Problem, error)
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)

	Create(ctx context.Context, problem *models.Problem) error
	CreateBatch(ctx context.Context, problems []*models.Problem) error
	Update(ctx context.Context, problem *models.Problem) error
	Delete(ctx context.Context, id string) error
	// DeleteByCreator removes every problem authored by username.
	DeleteByCreator(ctx context.Context, username string) (int, error)
}
