package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/store/vec"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := vec.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open vec db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, nil, zap.NewNop())
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if s.Available() {
		t.Fatalf("nil store must report unavailable")
	}
	if err := s.Save(ctx, Record{Email: "a@b.c", Content: "x"}); err != nil {
		t.Fatalf("save on nil store: %v", err)
	}
	if got := s.QueryRecent(ctx, "a@b.c", "conv", 5); got != nil {
		t.Fatalf("expected no records, got %v", got)
	}
	if err := s.DeleteByConversation(ctx, "a@b.c", "conv"); err != nil {
		t.Fatalf("delete on nil store: %v", err)
	}
}

func TestSaveAndQueryRecentOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, content := range []string{"đầu tiên", "thứ hai", "thứ ba"} {
		rec := Record{
			Email:          "farmer@example.com",
			ConversationID: "conv-1",
			Content:        content,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	got := s.QueryRecent(ctx, "farmer@example.com", "conv-1", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Content != "thứ ba" || got[1].Content != "thứ hai" {
		t.Fatalf("expected newest first, got %q, %q", got[0].Content, got[1].Content)
	}
	if got[0].Kind != DefaultKind {
		t.Fatalf("expected default kind, got %q", got[0].Kind)
	}
	if got[0].Importance == nil || *got[0].Importance != DefaultImportance {
		t.Fatalf("expected default importance, got %v", got[0].Importance)
	}
}

func TestSaveKeepsExplicitZeroImportance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	zero := 0.0
	rec := Record{
		Email:          "farmer@example.com",
		ConversationID: "conv-1",
		Content:        "không quan trọng",
		Importance:     &zero,
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := s.QueryRecent(ctx, "farmer@example.com", "conv-1", 5)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Importance == nil || *got[0].Importance != 0 {
		t.Fatalf("explicit zero importance lost, got %v", got[0].Importance)
	}
}

type fixedEmbedder struct {
	vec  []float32
	dims int
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, nil
}

func (f *fixedEmbedder) Dimensions() int { return f.dims }

func TestSaveSkipsWrongDimensionVector(t *testing.T) {
	db, err := vec.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open vec db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// embedder reports 4 dimensions but returns 3
	s := NewStore(db, &fixedEmbedder{vec: []float32{1, 2, 3}, dims: 4}, zap.NewNop())
	ctx := context.Background()

	if err := s.Save(ctx, Record{Email: "a@b.c", ConversationID: "conv-1", Content: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := s.QueryRecent(ctx, "a@b.c", "conv-1", 5)
	if len(got) != 1 {
		t.Fatalf("expected record stored without vector, got %d records", len(got))
	}

	var withVector int
	row := db.QueryRow(`SELECT COUNT(*) FROM memories WHERE embedding IS NOT NULL`)
	if err := row.Scan(&withVector); err != nil {
		t.Fatalf("count: %v", err)
	}
	if withVector != 0 {
		t.Fatalf("expected no stored vectors, found %d", withVector)
	}
}

func TestQueryRecentScopesByOwnerAndConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	recs := []Record{
		{Email: "a@b.c", ConversationID: "conv-1", Content: "mine"},
		{Email: "a@b.c", ConversationID: "conv-2", Content: "other conversation"},
		{Email: "x@y.z", ConversationID: "conv-1", Content: "other owner"},
	}
	for _, r := range recs {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got := s.QueryRecent(ctx, "a@b.c", "conv-1", 5)
	if len(got) != 1 || got[0].Content != "mine" {
		t.Fatalf("unexpected recall: %+v", got)
	}
}

func TestDeleteByConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, Record{Email: "a@b.c", ConversationID: "conv-1", Content: "bye"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.DeleteByConversation(ctx, "a@b.c", "conv-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := s.QueryRecent(ctx, "a@b.c", "conv-1", 5); len(got) != 0 {
		t.Fatalf("expected no records after delete, got %d", len(got))
	}
}
