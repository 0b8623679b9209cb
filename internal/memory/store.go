// Package memory is the long-lived semantic memory of the chat bot. It is
// optional infrastructure: when the backing index is missing every write and
// read becomes a logged no-op, and a chat turn proceeds without context.
package memory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/ai"
	"github.com/agrilink/farmchat/internal/store/vec"
)

const (
	DefaultKind       = "fact"
	DefaultImportance = 0.5
)

type Record struct {
	Email          string
	ConversationID string
	Kind           string
	Content        string
	// Importance nil means "use the default"; an explicit 0 is kept.
	Importance      *float64
	SourceMessageID string
	CreatedAt       time.Time
}

type Store struct {
	db       *vec.DB
	embedder ai.Embedder
	logger   *zap.Logger
}

// NewStore prepares the memory table. db and embedder may both be nil; the
// store then reports itself unavailable.
func NewStore(db *vec.DB, embedder ai.Embedder, logger *zap.Logger) *Store {
	s := &Store{db: db, embedder: embedder, logger: logger}
	if db == nil {
		return s
	}
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS memories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		memory_type TEXT NOT NULL DEFAULT 'fact',
		content TEXT NOT NULL,
		importance REAL NOT NULL DEFAULT 0.5,
		source_message_id TEXT,
		embedding BLOB,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_owner
		ON memories(email, conversation_id, created_at);
	`)
	if err != nil {
		logger.Warn("memory schema init failed, store disabled", zap.Error(err))
		s.db = nil
	}
	return s
}

// Available reports whether the backing index can be used at all.
func (s *Store) Available() bool {
	return s != nil && s.db != nil
}

// Save writes one memory record. Callers treat a returned error as
// non-fatal. The embedding is itself best-effort: if the embedder is absent
// or failing the record is stored without a vector.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if !s.Available() {
		return nil
	}
	if rec.Kind == "" {
		rec.Kind = DefaultKind
	}
	if rec.Importance == nil {
		v := DefaultImportance
		rec.Importance = &v
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var blob []byte
	if s.embedder != nil {
		if v, err := s.embedder.Embed(ctx, rec.Content); err != nil {
			s.logger.Warn("memory embed failed, storing without vector", zap.Error(err))
		} else if d := s.embedder.Dimensions(); d > 0 && len(v) != d {
			s.logger.Warn("memory embedding has wrong dimension, storing without vector",
				zap.Int("got", len(v)), zap.Int("want", d))
		} else if b, err := vec.SerializeFloat32(v); err == nil {
			blob = b
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (email, conversation_id, memory_type, content, importance, source_message_id, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Email, rec.ConversationID, rec.Kind, rec.Content, *rec.Importance,
		rec.SourceMessageID, blob, rec.CreatedAt,
	)
	return err
}

// QueryRecent returns the newest records for (owner, conversation), newest
// first. It never surfaces an error: an unavailable or failing index yields
// an empty list.
func (s *Store) QueryRecent(ctx context.Context, email, conversationID string, limit int) []Record {
	if !s.Available() {
		return nil
	}
	if limit <= 0 || limit > 10 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT email, conversation_id, memory_type, content, importance, source_message_id, created_at
		FROM memories
		WHERE email = ? AND conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		email, conversationID, limit,
	)
	if err != nil {
		s.logger.Warn("memory query failed", zap.Error(err))
		return nil
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var importance float64
		if err := rows.Scan(&r.Email, &r.ConversationID, &r.Kind, &r.Content, &importance, &r.SourceMessageID, &r.CreatedAt); err != nil {
			s.logger.Warn("memory row scan failed", zap.Error(err))
			continue
		}
		r.Importance = &importance
		out = append(out, r)
	}
	return out
}

// DeleteByConversation removes the memories of one conversation. Used by the
// conversation-delete cascade; failures are the caller's to log.
func (s *Store) DeleteByConversation(ctx context.Context, email, conversationID string) error {
	if !s.Available() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE email = ? AND conversation_id = ?`,
		email, conversationID,
	)
	return err
}
