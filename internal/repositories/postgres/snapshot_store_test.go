package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

// Runs only against a real database: TEST_DATABASE_URL=postgres://... go test ./...
func TestSnapshotStore_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := InitDatabase(dsn)
	if err != nil {
		t.Fatalf("InitDatabase() error = %v", err)
	}
	store := NewSnapshotStore(db)
	store.name = "test-" + t.Name()
	t.Cleanup(func() {
		db.Where("name = ?", store.name).Delete(&DocumentSnapshot{})
		store.Close()
	})

	ctx := context.Background()
	doc := models.NewDocument()
	doc.Users["kim"] = &models.User{Username: "kim", Role: models.RoleStudent, Name: "Kim"}
	doc.TeacherProblems["p1"] = &models.Problem{ID: "p1", QuestionType: models.Essay, Question: "Describe"}

	for i := 0; i < 2; i++ {
		if err := store.Save(ctx, doc); err != nil {
			t.Fatalf("Save() #%d error = %v", i, err)
		}
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Users["kim"] == nil || got.TeacherProblems["p1"] == nil {
		t.Errorf("document not round-tripped: %+v", got)
	}

	var snap DocumentSnapshot
	if err := db.Where("name = ?", store.name).First(&snap).Error; err != nil {
		t.Fatal(err)
	}
	if snap.Revision != 2 {
		t.Errorf("Revision = %d, want 2", snap.Revision)
	}
}
