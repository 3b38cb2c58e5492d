package document

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
)

// Repository keeps the document in memory and writes it through to the
// store on every committed change. Writers are serialized by a process-wide
// mutex; separate processes sharing one store still overwrite each other.
type Repository struct {
	store  repositories.DocumentStore
	logger *slog.Logger

	mu  *sync.RWMutex
	doc *models.Document

	// Non-nil while running inside WithTransaction.
	tx *models.Document
}

// NewRepository wraps a document that has already been loaded from store.
func NewRepository(store repositories.DocumentStore, doc *models.Document, logger *slog.Logger) *Repository {
	if doc == nil {
		doc = models.NewDocument()
	}
	doc.Normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		store:  store,
		logger: logger,
		mu:     &sync.RWMutex{},
		doc:    doc,
	}
}

func (r *Repository) User() repositories.UserRepository {
	return &userRepository{r: r}
}

func (r *Repository) Problem() repositories.ProblemRepository {
	return &problemRepository{r: r}
}

func (r *Repository) Record() repositories.RecordRepository {
	return &recordRepository{r: r}
}

func (r *Repository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	working, err := r.doc.Clone()
	if err != nil {
		return fmt.Errorf("failed to copy document: %w", err)
	}

	txRepo := &Repository{
		store:  r.store,
		logger: r.logger,
		mu:     r.mu,
		doc:    r.doc,
		tx:     working,
	}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := r.store.Save(ctx, working); err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist document, changes discarded",
			"error", err,
			"driver", r.store.Driver())
		return fmt.Errorf("failed to persist document: %w", err)
	}

	r.doc = working
	return nil
}

func (r *Repository) Snapshot(ctx context.Context) (*models.Document, error) {
	var out *models.Document
	err := r.read(func(doc *models.Document) error {
		var err error
		out, err = doc.Clone()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot document: %w", err)
	}
	return out, nil
}

func (r *Repository) Replace(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("cannot replace with a nil document")
	}
	replacement, err := doc.Clone()
	if err != nil {
		return fmt.Errorf("failed to copy document: %w", err)
	}

	return r.write(ctx, func(current *models.Document) error {
		current.Users = replacement.Users
		current.TeacherProblems = replacement.TeacherProblems
		current.StudentRecords = replacement.StudentRecords
		return nil
	})
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func (r *Repository) Close() error {
	return r.store.Close()
}

func (r *Repository) read(fn func(doc *models.Document) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(r.doc)
}

func (r *Repository) write(ctx context.Context, fn func(doc *models.Document) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	return r.WithTransaction(ctx, func(tx repositories.Repository) error {
		return fn(tx.(*Repository).tx)
	})
}

// Manager loads the document once and hands out the repository.
type Manager struct {
	store  repositories.DocumentStore
	logger *slog.Logger
	repo   *Repository
}

func NewManager(store repositories.DocumentStore, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("document store unavailable: %w", err)
	}

	doc, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}

	m.repo = NewRepository(m.store, doc, m.logger)
	m.logger.Info("Document loaded",
		"driver", m.store.Driver(),
		"users", len(doc.Users),
		"problems", len(doc.TeacherProblems),
		"student_records", len(doc.StudentRecords))
	return nil
}

func (m *Manager) GetRepository() repositories.Repository {
	return m.repo
}

func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.repo == nil {
		return fmt.Errorf("repository not initialized")
	}
	return m.repo.Ping(ctx)
}

func (m *Manager) Shutdown(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	return m.repo.Close()
}
