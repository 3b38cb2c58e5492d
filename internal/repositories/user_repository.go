package repositories

import (
	"context"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

// UserFilters defines filters for user queries
type UserFilters struct {
	Role      *models.UserRole
	CreatedBy string
	Query     string // matched against username, name and email
}

type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, filters UserFilters) ([]*models.User, error)
	Exists(ctx context.Context, username string) (bool, error)
	CountByRole(ctx context.Context) (map[models.UserRole]int, error)

	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, username string) error
}
