// Package answer maps a classified intent to a concrete answer. Every path
// out of Dispatch returns usable text; downstream failures become localized
// fallback messages, never errors.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/ai"
	"github.com/agrilink/farmchat/internal/intent"
	"github.com/agrilink/farmchat/internal/knowledge"
	"github.com/agrilink/farmchat/internal/memory"
	"github.com/agrilink/farmchat/internal/trace"
)

const (
	ClarifyFeedBatch       = "Bạn muốn hỏi về đàn nào ạ? Vui lòng cung cấp mã đàn (ví dụ: ASSET_HEO_001)."
	ClarifyMedicationBatch = "Bạn muốn hỏi về lịch tiêm của đàn nào ạ? Vui lòng cung cấp mã đàn."
	NoFeedGuidance         = "Xin lỗi, tôi chưa tìm thấy hướng dẫn dinh dưỡng phù hợp trong cơ sở tri thức."
	NoMedicationGuidance   = "Xin lỗi, tôi chưa tìm thấy hướng dẫn về thuốc/vắc-xin phù hợp trong cơ sở tri thức."
	UnknownFallback        = "Xin lỗi, tôi chưa được huấn luyện để trả lời câu hỏi này. Bạn có thể hỏi về thông tin đàn, thức ăn hoặc thuốc men nhé."

	defaultNotes = "Không có ghi chú đặc biệt"
)

const generateTimeout = 30 * time.Second

type Dispatcher struct {
	trace     *trace.Client
	knowledge *knowledge.Base
	provider  ai.Provider // nil when no generation service is configured
	logger    *zap.Logger
}

func NewDispatcher(tc *trace.Client, kb *knowledge.Base, provider ai.Provider, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{trace: tc, knowledge: kb, provider: provider, logger: logger}
}

// Dispatch produces the answer for one turn. For every intent except unknown
// a best-effort enhancement pass may rephrase the structured answer; the
// structured answer survives any enhancement failure.
func (d *Dispatcher) Dispatch(ctx context.Context, res intent.Result, question, facilityID string, memories []memory.Record) string {
	switch res.Intent {
	case intent.GetFeedInfo:
		return d.enhance(ctx, d.feedInfo(ctx, res.Entities["batch_id"]), memories)
	case intent.GetMedicationInfo:
		return d.enhance(ctx, d.medicationInfo(ctx, res.Entities["batch_id"]), memories)
	case intent.SuggestFeed:
		return d.enhance(ctx, d.suggestFeed(ctx, question, facilityID), memories)
	case intent.SuggestMedication:
		return d.enhance(ctx, d.suggestMedication(ctx, question, facilityID), memories)
	default:
		return d.openAnswer(ctx, question, memories)
	}
}

func (d *Dispatcher) feedInfo(ctx context.Context, assetID string) string {
	if assetID == "" {
		return ClarifyFeedBatch
	}

	notFound := fmt.Sprintf("Không tìm thấy thông tin thức ăn cho đàn %s. Vui lòng kiểm tra lại mã đàn.", assetID)

	t, err := d.trace.Fetch(ctx, assetID)
	if err != nil {
		d.logger.Warn("trace fetch failed for feed info", zap.String("asset_id", assetID), zap.Error(err))
		return notFound
	}

	details := t.LatestDetails()
	if details == nil || len(details.Feeds) == 0 {
		return fmt.Sprintf("Không tìm thấy thông tin thức ăn cho đàn %s.", assetID)
	}

	feed := details.Feeds[0]
	notes := feed.Notes
	if notes == "" {
		notes = defaultNotes
	}
	return fmt.Sprintf("Đàn %s hiện đang sử dụng '%s' với liều lượng %v kg/con/ngày từ ngày %s đến %s. Ghi chú: %s.",
		assetID, feed.Name, feed.DosageKg, feed.StartDate, feed.EndDate, notes)
}

func (d *Dispatcher) medicationInfo(ctx context.Context, assetID string) string {
	if assetID == "" {
		return ClarifyMedicationBatch
	}

	notFound := fmt.Sprintf("Không tìm thấy thông tin lịch tiêm phòng cho đàn %s.", assetID)

	t, err := d.trace.Fetch(ctx, assetID)
	if err != nil {
		d.logger.Warn("trace fetch failed for medication info", zap.String("asset_id", assetID), zap.Error(err))
		return notFound
	}

	details := t.LatestDetails()
	if details == nil || len(details.Medications) == 0 {
		return notFound
	}
	meds := details.Medications

	// Prefer the first medication with an upcoming due date.
	for _, med := range meds {
		if med.NextDueDate != "" {
			return fmt.Sprintf("Theo lịch, đàn %s cần tiêm nhắc lại '%s' vào ngày %s với liều lượng %s.",
				assetID, med.Name, med.NextDueDate, med.Dose)
		}
	}

	latest := meds[len(meds)-1]
	return fmt.Sprintf("Đàn %s đã được tiêm '%s' vào ngày %s với liều lượng %s.",
		assetID, latest.Name, latest.DateApplied, latest.Dose)
}

func (d *Dispatcher) suggestFeed(ctx context.Context, question, facilityID string) string {
	e := d.knowledge.Search(ctx, question, facilityID)
	if e == nil {
		return NoFeedGuidance
	}
	return fmt.Sprintf("Với vật nuôi giai đoạn '%s' từ (%d - %d), bạn nên dùng '%s' với liều lượng %s. Lưu ý: %s",
		e.Stage, e.MinAgeDays, e.MaxAgeDays, e.RecommendedFeed, e.FeedDosage, e.Notes)
}

func (d *Dispatcher) suggestMedication(ctx context.Context, question, facilityID string) string {
	e := d.knowledge.Search(ctx, question, facilityID)
	if e == nil {
		return NoMedicationGuidance
	}
	return fmt.Sprintf("Đối với vật nuôi giai đoạn '%s' (%s), quy trình khuyến nghị có nhắc đến: '%s'. Lưu ý thêm: %s. Bạn nên tham khảo ý kiến của bác sĩ thú y để có liều lượng chính xác.",
		e.Stage, e.AgeRange, e.Medication, e.Notes)
}

// openAnswer handles the unknown intent with open-ended generation.
func (d *Dispatcher) openAnswer(ctx context.Context, question string, memories []memory.Record) string {
	if d.provider == nil {
		return UnknownFallback
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	var b strings.Builder
	b.WriteString("Bạn là trợ lý ảo của một trang trại chăn nuôi. Hãy trả lời ngắn gọn, thân thiện và bằng tiếng Việt.\n")
	writeMemoryContext(&b, memories)
	fmt.Fprintf(&b, "\nCâu hỏi của người dùng: %s\n", question)

	out, err := d.provider.Generate(ctx, b.String())
	if err != nil || strings.TrimSpace(out) == "" {
		if err != nil {
			d.logger.Warn("open generation failed", zap.Error(err))
		}
		return UnknownFallback
	}
	return strings.TrimSpace(out)
}

// enhance asks the generation service for a more natural phrasing of a
// structured answer. It never replaces a concrete answer with an error: any
// failure or empty output returns the original text.
func (d *Dispatcher) enhance(ctx context.Context, structured string, memories []memory.Record) string {
	if d.provider == nil {
		return structured
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	var b strings.Builder
	b.WriteString("Hãy diễn đạt lại câu trả lời sau một cách tự nhiên và thân thiện hơn, giữ nguyên toàn bộ số liệu, tên riêng và ngày tháng. Trả lời bằng tiếng Việt, không thêm thông tin mới.\n")
	writeMemoryContext(&b, memories)
	fmt.Fprintf(&b, "\nCâu trả lời: %s\n", structured)

	out, err := d.provider.Generate(ctx, b.String())
	if err != nil || strings.TrimSpace(out) == "" {
		if err != nil {
			d.logger.Warn("answer enhancement failed, keeping structured answer", zap.Error(err))
		}
		return structured
	}
	return strings.TrimSpace(out)
}

func writeMemoryContext(b *strings.Builder, memories []memory.Record) {
	if len(memories) == 0 {
		return
	}
	b.WriteString("Ngữ cảnh từ các cuộc trò chuyện trước:\n")
	for _, m := range memories {
		b.WriteString("- ")
		if r := []rune(m.Content); len(r) > 800 {
			b.WriteString(string(r[:800]))
		} else {
			b.WriteString(m.Content)
		}
		b.WriteString("\n")
	}
}
