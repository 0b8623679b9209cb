// Package knowledge is the farming knowledge base: curated feeding and
// vaccination guidance, searchable by meaning and scoped per facility with a
// shared "global" tier as fallback.
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/ai"
	"github.com/agrilink/farmchat/internal/store/vec"
)

// GlobalFacility scopes guidance that applies to every farm.
const GlobalFacility = "global"

// ErrUnavailable is returned by Ingest when the vector index or the
// embedding engine is not configured.
var ErrUnavailable = errors.New("knowledge: base unavailable")

type Entry struct {
	FacilityID      string `json:"facility_id"`
	Stage           string `json:"stage"`
	MinAgeDays      int    `json:"min_age_days"`
	MaxAgeDays      int    `json:"max_age_days"`
	AgeRange        string `json:"age_range"`
	RecommendedFeed string `json:"recommended_feed"`
	FeedDosage      string `json:"feed_dosage"`
	Medication      string `json:"medication"`
	Notes           string `json:"notes"`
	Content         string `json:"content"`
}

type Base struct {
	db       *vec.DB
	embedder ai.Embedder
	logger   *zap.Logger
}

func NewBase(db *vec.DB, embedder ai.Embedder, logger *zap.Logger) *Base {
	b := &Base{db: db, embedder: embedder, logger: logger}
	if db == nil {
		return b
	}
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS knowledge (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		facility_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		min_age_days INTEGER NOT NULL DEFAULT 0,
		max_age_days INTEGER NOT NULL DEFAULT 0,
		age_range TEXT NOT NULL DEFAULT '',
		recommended_feed TEXT NOT NULL DEFAULT '',
		feed_dosage TEXT NOT NULL DEFAULT '',
		medication TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		embedding BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_facility ON knowledge(facility_id);
	`)
	if err != nil {
		logger.Warn("knowledge schema init failed, base disabled", zap.Error(err))
		b.db = nil
	}
	return b
}

func (b *Base) Available() bool {
	return b != nil && b.db != nil && b.embedder != nil
}

var agePattern = regexp.MustCompile(`(\d+)\s*ngày`)

// ExtractAgeDays pulls an age in days out of a Vietnamese question,
// e.g. "Heo 35 ngày tuổi nên ăn gì?" -> 35.
func ExtractAgeDays(query string) (int, bool) {
	m := agePattern.FindStringSubmatch(query)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Search returns the best matching entry for the question, or nil. It tries
// the caller's facility first, then the global tier. Failures are logged and
// swallowed; the caller renders a "no guidance found" answer on nil.
func (b *Base) Search(ctx context.Context, query, facilityID string) *Entry {
	if !b.Available() {
		return nil
	}

	q, err := b.embedder.Embed(ctx, query)
	if err != nil {
		b.logger.Warn("knowledge query embed failed", zap.Error(err))
		return nil
	}
	if d := b.embedder.Dimensions(); d > 0 && len(q) != d {
		b.logger.Warn("knowledge query embedding has wrong dimension",
			zap.Int("got", len(q)), zap.Int("want", d))
		return nil
	}
	blob, err := vec.SerializeFloat32(q)
	if err != nil {
		b.logger.Warn("knowledge embedding serialize failed", zap.Error(err))
		return nil
	}

	age, hasAge := ExtractAgeDays(query)

	if e := b.nearest(ctx, blob, facilityID, age, hasAge); e != nil {
		return e
	}
	return b.nearest(ctx, blob, GlobalFacility, 0, false)
}

func (b *Base) nearest(ctx context.Context, queryBlob []byte, facilityID string, age int, hasAge bool) *Entry {
	args := []any{queryBlob, facilityID}
	sqlText := `
		SELECT facility_id, stage, min_age_days, max_age_days, age_range,
		       recommended_feed, feed_dosage, medication, notes, content,
		       vec_distance_cosine(embedding, ?) AS distance
		FROM knowledge
		WHERE facility_id = ?`
	if hasAge {
		sqlText += ` AND min_age_days <= ? AND max_age_days >= ?`
		args = append(args, age, age)
	}
	sqlText += ` ORDER BY distance ASC LIMIT 1`

	row := b.db.QueryRowContext(ctx, sqlText, args...)

	var e Entry
	var distance float64
	err := row.Scan(&e.FacilityID, &e.Stage, &e.MinAgeDays, &e.MaxAgeDays, &e.AgeRange,
		&e.RecommendedFeed, &e.FeedDosage, &e.Medication, &e.Notes, &e.Content, &distance)
	if err != nil {
		if err != sql.ErrNoRows {
			b.logger.Warn("knowledge search failed", zap.String("facility", facilityID), zap.Error(err))
		}
		return nil
	}
	return &e
}

// Ingest embeds and stores one entry. Used by the ingest worker.
func (b *Base) Ingest(ctx context.Context, e Entry) error {
	if !b.Available() {
		return ErrUnavailable
	}
	content := e.Content
	if content == "" {
		content = e.Stage + " " + e.RecommendedFeed + " " + e.Medication + " " + e.Notes
	}

	v, err := b.embedder.Embed(ctx, content)
	if err != nil {
		return err
	}
	if d := b.embedder.Dimensions(); d > 0 && len(v) != d {
		return fmt.Errorf("knowledge: embedding has %d dimensions, want %d", len(v), d)
	}
	blob, err := vec.SerializeFloat32(v)
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO knowledge (facility_id, stage, min_age_days, max_age_days, age_range,
			recommended_feed, feed_dosage, medication, notes, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.FacilityID, e.Stage, e.MinAgeDays, e.MaxAgeDays, e.AgeRange,
		e.RecommendedFeed, e.FeedDosage, e.Medication, e.Notes, content, blob,
	)
	return err
}
