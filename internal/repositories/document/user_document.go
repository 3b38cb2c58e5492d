package document

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
)

type userRepository struct {
	r *Repository
}

func (u *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var out *models.User
	err := u.r.read(func(doc *models.Document) error {
		user, ok := doc.Users[username]
		if !ok {
			return fmt.Errorf("user %q: %w", username, repositories.ErrNotFound)
		}
		copied := *user
		out = &copied
		return nil
	})
	return out, err
}

func (u *userRepository) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, error) {
	var out []*models.User
	query := strings.ToLower(strings.TrimSpace(filters.Query))

	err := u.r.read(func(doc *models.Document) error {
		for _, user := range doc.Users {
			if filters.Role != nil && user.Role != *filters.Role {
				continue
			}
			if filters.CreatedBy != "" && user.CreatedBy != filters.CreatedBy {
				continue
			}
			if query != "" &&
				!strings.Contains(strings.ToLower(user.Username), query) &&
				!strings.Contains(strings.ToLower(user.Name), query) &&
				!strings.Contains(strings.ToLower(user.Email), query) {
				continue
			}
			copied := *user
			out = append(out, &copied)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (u *userRepository) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := u.r.read(func(doc *models.Document) error {
		_, exists = doc.Users[username]
		return nil
	})
	return exists, err
}

func (u *userRepository) CountByRole(ctx context.Context) (map[models.UserRole]int, error) {
	counts := map[models.UserRole]int{
		models.RoleStudent: 0,
		models.RoleTeacher: 0,
		models.RoleAdmin:   0,
	}
	err := u.r.read(func(doc *models.Document) error {
		for _, user := range doc.Users {
			counts[user.Role]++
		}
		return nil
	})
	return counts, err
}

func (u *userRepository) Create(ctx context.Context, user *models.User) error {
	return u.r.write(ctx, func(doc *models.Document) error {
		if _, ok := doc.Users[user.Username]; ok {
			return fmt.Errorf("user %q: %w", user.Username, repositories.ErrAlreadyExists)
		}
		copied := *user
		doc.Users[user.Username] = &copied
		return nil
	})
}

func (u *userRepository) Update(ctx context.Context, user *models.User) error {
	return u.r.write(ctx, func(doc *models.Document) error {
		if _, ok := doc.Users[user.Username]; !ok {
			return fmt.Errorf("user %q: %w", user.Username, repositories.ErrNotFound)
		}
		copied := *user
		doc.Users[user.Username] = &copied
		return nil
	})
}

func (u *userRepository) Delete(ctx context.Context, username string) error {
	return u.r.write(ctx, func(doc *models.Document) error {
		if _, ok := doc.Users[username]; !ok {
			return fmt.Errorf("user %q: %w", username, repositories.ErrNotFound)
		}
		delete(doc.Users, username)
		return nil
	})
}
