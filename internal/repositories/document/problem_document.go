package document

import (
	"context"
	"fmt"
	"sort"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
)

type problemRepository struct {
	r *Repository
}

func (p *problemRepository) GetByID(ctx context.Context, id string) (*models.Problem, error) {
	var out *models.Problem
	err := p.r.read(func(doc *models.Document) error {
		problem, ok := doc.TeacherProblems[id]
		if !ok {
			return fmt.Errorf("problem %q: %w", id, repositories.ErrNotFound)
		}
		copied := *problem
		out = &copied
		return nil
	})
	return out, err
}

// GetByIDs keeps the order of ids and fails on the first unknown id.
func (p *problemRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Problem, error) {
	out := make([]*models.Problem, 0, len(ids))
	err := p.r.read(func(doc *models.Document) error {
		for _, id := range ids {
			problem, ok := doc.TeacherProblems[id]
			if !ok {
				return fmt.Errorf("problem %q: %w", id, repositories.ErrNotFound)
			}
			copied := *problem
			out = append(out, &copied)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *problemRepository) List(ctx context.Context, filter models.ProblemFilter) ([]*models.Problem, error) {
	var out []*models.Problem
	err := p.r.read(func(doc *models.Document) error {
		for _, problem := range doc.TeacherProblems {
			if !filter.Matches(problem) {
				continue
			}
			copied := *problem
			out = append(out, &copied)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (p *problemRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.r.read(func(doc *models.Document) error {
		_, exists = doc.TeacherProblems[id]
		return nil
	})
	return exists, err
}

func (p *problemRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := p.r.read(func(doc *models.Document) error {
		n = len(doc.TeacherProblems)
		return nil
	})
	return n, err
}

func (p *problemRepository) Create(ctx context.Context, problem *models.Problem) error {
	return p.CreateBatch(ctx, []*models.Problem{problem})
}

func (p *problemRepository) CreateBatch(ctx context.Context, problems []*models.Problem) error {
	return p.r.write(ctx, func(doc *models.Document) error {
		for _, problem := range problems {
			if _, ok := doc.TeacherProblems[problem.ID]; ok {
				return fmt.Errorf("problem %q: %w", problem.ID, repositories.ErrAlreadyExists)
			}
			copied := *problem
			doc.TeacherProblems[problem.ID] = &copied
		}
		return nil
	})
}

func (p *problemRepository) Update(ctx context.Context, problem *models.Problem) error {
	return p.r.write(ctx, func(doc *models.Document) error {
		if _, ok := doc.TeacherProblems[problem.ID]; !ok {
			return fmt.Errorf("problem %q: %w", problem.ID, repositories.ErrNotFound)
		}
		copied := *problem
		doc.TeacherProblems[problem.ID] = &copied
		return nil
	})
}

func (p *problemRepository) Delete(ctx context.Context, id string) error {
	return p.r.write(ctx, func(doc *models.Document) error {
		if _, ok := doc.TeacherProblems[id]; !ok {
			return fmt.Errorf("problem %q: %w", id, repositories.ErrNotFound)
		}
		delete(doc.TeacherProblems, id)
		return nil
	})
}

func (p *problemRepository) DeleteByCreator(ctx context.Context, username string) (int, error) {
	var removed int
	err := p.r.write(ctx, func(doc *models.Document) error {
		for id, problem := range doc.TeacherProblems {
			if problem.CreatedBy == username {
				delete(doc.TeacherProblems, id)
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
