package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

const defaultSnapshotName = "default"

// DocumentSnapshot holds the whole document as one jsonb value. Every save
// replaces the row, keeping the single-document model of the file store.
type DocumentSnapshot struct {
	ID        uint           `gorm:"primaryKey"`
	Name      string         `gorm:"uniqueIndex;not null;size:100"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null"`
	Revision  int64          `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DocumentSnapshot) TableName() string {
	return "document_snapshots"
}

// InitDatabase opens the connection and migrates the snapshot table.
func InitDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&DocumentSnapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate document_snapshots: %w", err)
	}
	return db, nil
}

// SnapshotStore implements repositories.DocumentStore on PostgreSQL.
type SnapshotStore struct {
	db   *gorm.DB
	name string
}

func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db, name: defaultSnapshotName}
}

func (s *SnapshotStore) Driver() string {
	return "postgres"
}

func (s *SnapshotStore) Load(ctx context.Context) (*models.Document, error) {
	var snap DocumentSnapshot
	err := s.db.WithContext(ctx).Where("name = ?", s.name).First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewDocument(), nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	doc := models.NewDocument()
	if err := json.Unmarshal(snap.Data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	doc.Normalize()
	return doc, nil
}

func (s *SnapshotStore) Save(ctx context.Context, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	snap := DocumentSnapshot{
		Name:     s.name,
		Data:     datatypes.JSON(data),
		Revision: 1,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"data":       gorm.Expr("EXCLUDED.data"),
			"revision":   gorm.Expr("document_snapshots.revision + 1"),
			"updated_at": gorm.Expr("EXCLUDED.updated_at"),
		}),
	}).Create(&snap).Error
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
