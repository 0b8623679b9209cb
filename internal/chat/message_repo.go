package chat

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type MessageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append inserts one message. The caller supplies the timestamp so that
// ordering stays authoritative in the orchestrator.
func (r *MessageRepo) Append(ctx context.Context, conversationID, role string, senderID *string, content string, ts time.Time) (*Message, error) {
	if conversationID == "" || content == "" {
		return nil, fmt.Errorf("%w: conversation id and content are required", ErrInvalidArgument)
	}
	if role != RoleUser && role != RoleBot {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}

	msg := &Message{
		ConversationID: conversationID,
		Role:           role,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      ts,
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err)
	}

	var got Message
	if err := r.db.WithContext(ctx).First(&got, "id = ?", msg.ID).Error; err != nil {
		return nil, fmt.Errorf("%w: read-back after insert: %s", ErrPersistenceFailed, err)
	}
	return &got, nil
}

// ListByConversation returns all messages in ascending timestamp order.
// An unknown conversation yields an empty slice, not an error.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err)
	}
	return msgs, nil
}

// ListByConversationPage is ListByConversation with simple pagination for
// the HTTP layer.
func (r *MessageRepo) ListByConversationPage(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err)
	}
	return msgs, nil
}

// DeleteByConversation removes every message of a conversation. Used by the
// conversation-delete cascade.
func (r *MessageRepo) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&Message{}, "conversation_id = ?", conversationID)
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %s", ErrStorageUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}
