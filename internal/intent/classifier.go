// Package intent classifies a user question into the closed vocabulary the
// answer dispatcher understands.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/ai"
	"github.com/agrilink/farmchat/internal/memory"
)

const (
	GetFeedInfo       = "get_feed_info"
	GetMedicationInfo = "get_medication_info"
	SuggestFeed       = "suggest_feed"
	SuggestMedication = "suggest_medication"
	Unknown           = "unknown"
)

// memorySnippetLimit bounds how much of each memory goes into the prompt.
const memorySnippetLimit = 800

const classifyTimeout = 30 * time.Second

type Result struct {
	Intent   string            `json:"intent"`
	Entities map[string]string `json:"entities"`
}

func unknownResult() Result {
	return Result{Intent: Unknown, Entities: map[string]string{}}
}

type Classifier struct {
	provider ai.Provider // nil when no generation service is configured
	logger   *zap.Logger
}

func NewClassifier(provider ai.Provider, logger *zap.Logger) *Classifier {
	return &Classifier{provider: provider, logger: logger}
}

// Classify never fails: a missing provider, a provider error or malformed
// model output all degrade to the unknown intent.
func (c *Classifier) Classify(ctx context.Context, question string, memories []memory.Record) Result {
	if c.provider == nil {
		return unknownResult()
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	raw, err := c.provider.Generate(ctx, buildPrompt(question, memories))
	if err != nil {
		c.logger.Warn("intent classification call failed", zap.Error(err))
		return unknownResult()
	}

	res, err := parseResult(raw)
	if err != nil {
		c.logger.Warn("intent classification parse failed",
			zap.Error(err), zap.String("raw", truncate(raw, 200)))
		return unknownResult()
	}
	return res
}

func buildPrompt(question string, memories []memory.Record) string {
	var b strings.Builder
	b.WriteString(`Bạn là một trợ lý AI chuyên phân tích ý định của người dùng cho một chatbot quản lý trang trại chăn nuôi.
Nhiệm vụ của bạn là đọc câu hỏi của người dùng và phân loại nó vào một trong các ý định (intent) sau đây,
đồng thời trích xuất các thông tin quan trọng (entities) như mã đàn (batch_id).

Các intent có thể có:
- get_feed_info: Hỏi về thông tin thức ăn của một đàn cụ thể. (Ví dụ: "Đàn H001 đang ăn gì?", "Thức ăn của đàn B012?")
- get_medication_info: Hỏi về thông tin thuốc men, lịch tiêm của một đàn cụ thể. (Ví dụ: "Đàn H001 đã tiêm vắc-xin gì?", "Lịch tiêm phòng của đàn G003?")
- suggest_feed: Cần gợi ý, tư vấn loại thức ăn phù hợp với độ tuổi hoặc giai đoạn. (Ví dụ: "Heo 35 ngày tuổi nên ăn gì?", "Gà con mới nở cho ăn cám nào?")
- suggest_medication: Cần gợi ý, tư vấn về thuốc hoặc lịch tiêm phòng. (Ví dụ: "Heo con mới nhập chuồng cần tiêm gì?", "Bò bị ho nên dùng thuốc nào?")
- unknown: Các câu hỏi không liên quan, câu chào hỏi, hoặc không xác định được. (Ví dụ: "Chào bạn", "Thời tiết hôm nay thế nào?", "Cho xem hình ảnh")

Yêu cầu đầu ra:
- Trả về kết quả dưới dạng một chuỗi JSON hợp lệ.
- JSON object phải có key "intent".
- Nếu câu hỏi chứa mã đàn (ví dụ: H001, B012), hãy trích xuất nó vào key "entities" với key con là "batch_id". Nếu không có, entities là một object rỗng.
`)

	if len(memories) > 0 {
		b.WriteString("\nNgữ cảnh từ các cuộc trò chuyện trước:\n")
		for _, m := range memories {
			b.WriteString("- ")
			b.WriteString(truncate(m.Content, memorySnippetLimit))
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nDưới đây là câu hỏi của người dùng:\n%q\n\nHãy phân tích và trả về kết quả dưới dạng JSON.\n", question)
	return b.String()
}

// parseResult strips markdown fences the model likes to add and decodes the
// JSON, validating the intent against the vocabulary.
func parseResult(raw string) (Result, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var decoded struct {
		Intent   string         `json:"intent"`
		Entities map[string]any `json:"entities"`
	}
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return Result{}, err
	}

	switch decoded.Intent {
	case GetFeedInfo, GetMedicationInfo, SuggestFeed, SuggestMedication, Unknown:
	default:
		return Result{}, fmt.Errorf("intent %q not in vocabulary", decoded.Intent)
	}

	entities := make(map[string]string, len(decoded.Entities))
	for k, v := range decoded.Entities {
		switch t := v.(type) {
		case string:
			entities[k] = t
		default:
			entities[k] = fmt.Sprintf("%v", t)
		}
	}
	return Result{Intent: decoded.Intent, Entities: entities}, nil
}

// truncate cuts on rune boundaries so Vietnamese text never ends up as a
// broken UTF-8 sequence in the prompt.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
