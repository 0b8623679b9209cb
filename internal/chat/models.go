package chat

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	RoleUser = "user"
	RoleBot  = "bot"
)

type Conversation struct {
	ID         string    `gorm:"type:varchar(26);primaryKey" json:"id"`
	Email      string    `gorm:"type:varchar(255);not null;index:idx_conv_owner,priority:1" json:"email"`
	FacilityID string    `gorm:"type:varchar(64);not null;index:idx_conv_owner,priority:2" json:"facility_id"`
	Title      string    `gorm:"type:varchar(100);not null" json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"type:varchar(26);not null;index:idx_msg_convo_ts,priority:1" json:"conversation_id"`
	Role           string    `gorm:"type:varchar(8);not null" json:"role"`
	SenderID       *string   `gorm:"type:varchar(255)" json:"sender_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"index:idx_msg_convo_ts,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// NewConversationID returns a fresh ULID string.
func NewConversationID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidConversationID reports whether s parses as a ULID.
func ValidConversationID(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}
