package repositories

import (
	"context"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

// DocumentStore persists the whole application document at once.
type DocumentStore interface {
	// Load returns an empty document when nothing has been saved yet.
	Load(ctx context.Context) (*models.Document, error)
	Save(ctx context.Context, doc *models.Document) error
	Ping(ctx context.Context) error
	Close() error

	// Driver names the backend ("file", "postgres").
	Driver() string
}

// Repository groups the per-entity repositories over one document.
type Repository interface {
	User() UserRepository
	Problem() ProblemRepository
	Record() RecordRepository

	// WithTransaction runs fn against a working copy of the document and
	// persists it once fn returns nil. Nothing is kept when fn or the save
	// fails.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Snapshot returns a deep copy of the committed document.
	Snapshot(ctx context.Context) (*models.Document, error)

	// Replace swaps the whole document, used by restore.
	Replace(ctx context.Context, doc *models.Document) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize loads the document from the store.
	Initialize(ctx context.Context) error

	GetRepository() Repository

	HealthCheck(ctx context.Context) error

	Shutdown(ctx context.Context) error
}
