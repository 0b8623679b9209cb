package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const maxListLimit = 200

type ConversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create inserts a new conversation and reads it back. The record is only
// returned once the read-back proves it was durably written.
func (r *ConversationRepo) Create(ctx context.Context, email, facilityID, title string) (*Conversation, error) {
	if email == "" || facilityID == "" {
		return nil, fmt.Errorf("%w: email and facility id are required", ErrInvalidArgument)
	}
	if len([]rune(title)) > maxTitleLen {
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrInvalidArgument, maxTitleLen)
	}

	id, err := NewConversationID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	convo := &Conversation{
		ID:         id,
		Email:      email,
		FacilityID: facilityID,
		Title:      title,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.db.WithContext(ctx).Create(convo).Error; err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err)
	}

	var got Conversation
	if err := r.db.WithContext(ctx).First(&got, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("%w: read-back after insert: %s", ErrPersistenceFailed, err)
	}
	return &got, nil
}

// GetByID returns (nil, nil) when no conversation matches.
func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err)
	}
	return &c, nil
}

// Touch bumps the last-updated timestamp. Best effort, idempotent.
func (r *ConversationRepo) Touch(ctx context.Context, id string, ts time.Time) error {
	return r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ? AND updated_at < ?", id, ts).
		UpdateColumn("updated_at", ts).Error
}

// ListByOwner returns conversations sorted by last update, newest first.
// facilityID narrows the scope when non-empty.
func (r *ConversationRepo) ListByOwner(ctx context.Context, email, facilityID string, limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	q := r.db.WithContext(ctx).
		Where("email = ?", email).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset)
	if facilityID != "" {
		q = q.Where("facility_id = ?", facilityID)
	}

	var convos []Conversation
	if err := q.Find(&convos).Error; err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err)
	}
	return convos, nil
}

func (r *ConversationRepo) UpdateTitle(ctx context.Context, id, title string) error {
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	if len([]rune(title)) > maxTitleLen {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidArgument, maxTitleLen)
	}
	return r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ?", id).
		UpdateColumn("title", title).Error
}

// Delete removes a conversation. Returns true iff a record was removed.
func (r *ConversationRepo) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&Conversation{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("%w: %s", ErrStorageUnavailable, res.Error)
	}
	return res.RowsAffected > 0, nil
}
