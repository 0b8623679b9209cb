package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestConversationCreateThenGet(t *testing.T) {
	repo := NewConversationRepo(openTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, "farmer@example.com", "FAC01", "Hỏi về thức ăn")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !ValidConversationID(created.ID) {
		t.Fatalf("expected ULID id, got %q", created.ID)
	}

	got, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected conversation, got nil")
	}
	if got.Email != "farmer@example.com" || got.FacilityID != "FAC01" || got.Title != "Hỏi về thức ăn" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestConversationGetByIDMissing(t *testing.T) {
	repo := NewConversationRepo(openTestDB(t))

	got, err := repo.GetByID(context.Background(), "01JC0000000000000000000000")
	if err != nil {
		t.Fatalf("expected nil error for missing conversation, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil conversation, got %+v", got)
	}
}

func TestConversationCreateRequiresOwner(t *testing.T) {
	repo := NewConversationRepo(openTestDB(t))

	if _, err := repo.Create(context.Background(), "", "FAC01", "t"); err == nil {
		t.Fatalf("expected error for empty email")
	}
}

func TestConversationListByOwnerOrder(t *testing.T) {
	repo := NewConversationRepo(openTestDB(t))
	ctx := context.Background()

	first, err := repo.Create(ctx, "farmer@example.com", "FAC01", "first")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := repo.Create(ctx, "farmer@example.com", "FAC01", "second")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(ctx, "other@example.com", "FAC01", "other owner"); err != nil {
		t.Fatalf("create: %v", err)
	}

	// bump the older conversation past the newer one
	if err := repo.Touch(ctx, first.ID, time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}

	convos, err := repo.ListByOwner(ctx, "farmer@example.com", "FAC01", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convos) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convos))
	}
	if convos[0].ID != first.ID || convos[1].ID != second.ID {
		t.Fatalf("unexpected order: %s, %s", convos[0].ID, convos[1].ID)
	}
}

func TestConversationTouchIsMonotonic(t *testing.T) {
	repo := NewConversationRepo(openTestDB(t))
	ctx := context.Background()

	convo, err := repo.Create(ctx, "farmer@example.com", "FAC01", "t")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	future := time.Now().UTC().Add(time.Hour)
	if err := repo.Touch(ctx, convo.ID, future); err != nil {
		t.Fatalf("touch: %v", err)
	}
	// an older timestamp must not move updated_at backwards
	if err := repo.Touch(ctx, convo.ID, future.Add(-2*time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := repo.GetByID(ctx, convo.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UpdatedAt.Before(future.Add(-time.Second)) {
		t.Fatalf("updated_at moved backwards: %v", got.UpdatedAt)
	}
}

func TestConversationDelete(t *testing.T) {
	repo := NewConversationRepo(openTestDB(t))
	ctx := context.Background()

	convo, err := repo.Create(ctx, "farmer@example.com", "FAC01", "t")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	removed, err := repo.Delete(ctx, convo.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !removed {
		t.Fatalf("expected delete to report removal")
	}

	removed, err = repo.Delete(ctx, convo.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if removed {
		t.Fatalf("expected second delete to be a no-op")
	}
}
