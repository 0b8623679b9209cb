package chat

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMessageAppendAndList(t *testing.T) {
	db := openTestDB(t)
	convos := NewConversationRepo(db)
	msgs := NewMessageRepo(db)
	ctx := context.Background()

	convo, err := convos.Create(ctx, "farmer@example.com", "FAC01", "t")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	sender := "farmer@example.com"
	ts := time.Now().UTC()
	if _, err := msgs.Append(ctx, convo.ID, RoleUser, &sender, "câu hỏi", ts); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if _, err := msgs.Append(ctx, convo.ID, RoleBot, nil, "câu trả lời", ts.Add(time.Millisecond)); err != nil {
		t.Fatalf("append bot: %v", err)
	}

	stored, err := msgs.ListByConversation(ctx, convo.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(stored))
	}
	if stored[0].Content != "câu hỏi" || stored[1].Content != "câu trả lời" {
		t.Fatalf("unexpected order: %q, %q", stored[0].Content, stored[1].Content)
	}
	if stored[0].ID >= stored[1].ID {
		t.Fatalf("ids not increasing: %d, %d", stored[0].ID, stored[1].ID)
	}
}

func TestMessageAppendValidation(t *testing.T) {
	msgs := NewMessageRepo(openTestDB(t))
	ctx := context.Background()
	ts := time.Now().UTC()

	if _, err := msgs.Append(ctx, "", RoleUser, nil, "x", ts); err == nil {
		t.Fatalf("expected error for empty conversation id")
	}
	if _, err := msgs.Append(ctx, "01JC0000000000000000000000", "moderator", nil, "x", ts); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if _, err := msgs.Append(ctx, "01JC0000000000000000000000", RoleUser, nil, "", ts); err == nil {
		t.Fatalf("expected error for empty content")
	}
}

func TestMessageConcurrentAppendsListInOrder(t *testing.T) {
	db := openTestDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	convos := NewConversationRepo(db)
	msgs := NewMessageRepo(db)
	ctx := context.Background()

	convo, err := convos.Create(ctx, "farmer@example.com", "FAC01", "t")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	wg.Add(writers)
	errs := make(chan error, writers*perWriter)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if _, err := msgs.Append(ctx, convo.ID, RoleBot, nil, "m", time.Now().UTC()); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append: %v", err)
	}

	stored, err := msgs.ListByConversation(ctx, convo.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != writers*perWriter {
		t.Fatalf("expected %d messages, got %d", writers*perWriter, len(stored))
	}
	for i := 1; i < len(stored); i++ {
		if stored[i].CreatedAt.Before(stored[i-1].CreatedAt) {
			t.Fatalf("timestamps decrease at index %d: %v then %v", i, stored[i-1].CreatedAt, stored[i].CreatedAt)
		}
	}
}

func TestMessageListPagination(t *testing.T) {
	db := openTestDB(t)
	convos := NewConversationRepo(db)
	msgs := NewMessageRepo(db)
	ctx := context.Background()

	convo, err := convos.Create(ctx, "farmer@example.com", "FAC01", "t")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if _, err := msgs.Append(ctx, convo.ID, RoleBot, nil, "m", base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page, err := msgs.ListByConversationPage(ctx, convo.ID, 2, 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
}
