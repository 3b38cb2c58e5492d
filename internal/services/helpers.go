package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
)

// loadActor fetches the acting user and checks that it holds one of roles.
// Admins always pass.
func loadActor(ctx context.Context, repo repositories.Repository, actorID, resource, action string, roles ...models.UserRole) (*models.User, error) {
	actor, err := repo.User().GetByUsername(ctx, actorID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewPermissionError(actorID, "", resource, action, "unknown user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if actor.Role == models.RoleAdmin {
		return actor, nil
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return nil, NewPermissionError(actorID, "", resource, action, "insufficient role permissions")
}

// canManageStudent reports whether actor may see or change the student's
// data: admins always, teachers only for students they registered.
func canManageStudent(actor, student *models.User) bool {
	if actor.Role == models.RoleAdmin {
		return true
	}
	return actor.Role == models.RoleTeacher &&
		student.Role == models.RoleStudent &&
		student.CreatedBy == actor.Username
}

// canEditProblem: admins edit everything, teachers their own problems.
func canEditProblem(actor *models.User, p *models.Problem) bool {
	return actor.Role == models.RoleAdmin || (actor.Role == models.RoleTeacher && p.CreatedBy == actor.Username)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
