package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/intent"
	"github.com/agrilink/farmchat/internal/memory"
)

// Classifier maps a question plus recalled memories to an intent. It must
// not fail: degraded implementations return the unknown intent.
type Classifier interface {
	Classify(ctx context.Context, question string, memories []memory.Record) intent.Result
}

// Dispatcher turns a classified intent into answer text. It must not fail:
// downstream trouble becomes localized fallback text.
type Dispatcher interface {
	Dispatch(ctx context.Context, res intent.Result, question, facilityID string, memories []memory.Record) string
}

// Principal is the authenticated caller of a turn.
type Principal struct {
	Email      string
	FacilityID string
}

type TurnRequest struct {
	Question          string
	ConversationID    string // empty means "start a new conversation"
	ConversationTitle string
}

type TurnResult struct {
	Answer            string
	ConversationID    string
	ConversationTitle string
	UserMessageID     uint64
	BotMessageID      uint64
}

// Service is the session orchestrator: one HandleTurn call per chat turn.
type Service struct {
	convos      *ConversationRepo
	msgs        *MessageRepo
	memories    *memory.Store
	classifier  Classifier
	dispatcher  Dispatcher
	recallLimit int
	logger      *zap.Logger
}

func NewService(convos *ConversationRepo, msgs *MessageRepo, memories *memory.Store, classifier Classifier, dispatcher Dispatcher, recallLimit int, logger *zap.Logger) *Service {
	if recallLimit <= 0 || recallLimit > 10 {
		recallLimit = 5
	}
	return &Service{
		convos:      convos,
		msgs:        msgs,
		memories:    memories,
		classifier:  classifier,
		dispatcher:  dispatcher,
		recallLimit: recallLimit,
		logger:      logger,
	}
}

// HandleTurn runs one chat turn. Resolving the conversation and persisting
// the two messages are mandatory; memory recall, classification, dispatch
// and memory write-back are best-effort and degrade to safe defaults so the
// caller always gets a complete result.
func (s *Service) HandleTurn(ctx context.Context, p Principal, req TurnRequest) (*TurnResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidArgument)
	}

	convo, err := s.resolveConversation(ctx, p, req)
	if err != nil {
		return nil, err
	}

	userTS := time.Now().UTC()
	sender := p.Email
	userMsg, err := s.msgs.Append(ctx, convo.ID, RoleUser, &sender, question, userTS)
	if err != nil {
		return nil, err
	}
	if err := s.convos.Touch(ctx, convo.ID, userTS); err != nil {
		s.logger.Warn("conversation touch failed", zap.String("conversation_id", convo.ID), zap.Error(err))
	}

	var memories []memory.Record
	if s.memories.Available() {
		memories = s.memories.QueryRecent(ctx, p.Email, convo.ID, s.recallLimit)
	}

	res := s.classifier.Classify(ctx, question, memories)
	answer := s.dispatcher.Dispatch(ctx, res, question, p.FacilityID, memories)

	botTS := time.Now().UTC()
	if botTS.Before(userTS) {
		botTS = userTS
	}
	botMsg, err := s.msgs.Append(ctx, convo.ID, RoleBot, nil, answer, botTS)
	if err != nil {
		return nil, err
	}
	if err := s.convos.Touch(ctx, convo.ID, botTS); err != nil {
		s.logger.Warn("conversation touch failed", zap.String("conversation_id", convo.ID), zap.Error(err))
	}

	if s.memories.Available() {
		rec := memory.Record{
			Email:           p.Email,
			ConversationID:  convo.ID,
			Kind:            memory.DefaultKind,
			Content:         question,
			SourceMessageID: fmt.Sprintf("%d", userMsg.ID),
			CreatedAt:       botTS,
		}
		if err := s.memories.Save(ctx, rec); err != nil {
			s.logger.Warn("memory save failed", zap.String("conversation_id", convo.ID), zap.Error(err))
		}
	}

	return &TurnResult{
		Answer:            answer,
		ConversationID:    convo.ID,
		ConversationTitle: convo.Title,
		UserMessageID:     userMsg.ID,
		BotMessageID:      botMsg.ID,
	}, nil
}

// resolveConversation looks up the referenced conversation or creates a new
// one. A caller-supplied id that is malformed or unknown fails the turn; a
// new conversation is never created under a caller-chosen id.
func (s *Service) resolveConversation(ctx context.Context, p Principal, req TurnRequest) (*Conversation, error) {
	if req.ConversationID == "" {
		title := strings.TrimSpace(req.ConversationTitle)
		if title == "" {
			title = makeTitle(req.Question)
		}
		return s.convos.Create(ctx, p.Email, p.FacilityID, title)
	}

	if !ValidConversationID(req.ConversationID) {
		return nil, fmt.Errorf("%w: malformed conversation id %q", ErrInvalidArgument, req.ConversationID)
	}

	convo, err := s.convos.GetByID(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if convo == nil || convo.Email != p.Email {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, req.ConversationID)
	}
	return convo, nil
}

// DeleteConversation removes a conversation with its messages; memory
// records go with it, best-effort. Returns true iff the conversation
// existed.
func (s *Service) DeleteConversation(ctx context.Context, p Principal, id string) (bool, error) {
	if !ValidConversationID(id) {
		return false, fmt.Errorf("%w: malformed conversation id %q", ErrInvalidArgument, id)
	}
	convo, err := s.convos.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if convo == nil || convo.Email != p.Email {
		return false, nil
	}

	removed, err := s.convos.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if _, err := s.msgs.DeleteByConversation(ctx, id); err != nil {
		s.logger.Warn("message cascade delete failed", zap.String("conversation_id", id), zap.Error(err))
	}
	if s.memories.Available() {
		if err := s.memories.DeleteByConversation(ctx, p.Email, id); err != nil {
			s.logger.Warn("memory cascade delete failed", zap.String("conversation_id", id), zap.Error(err))
		}
	}
	return removed, nil
}

const maxTitleLen = 100

// makeTitle derives a conversation title from the first question.
func makeTitle(question string) string {
	t := strings.Join(strings.Fields(question), " ")
	if t == "" {
		return "Cuộc trò chuyện mới"
	}
	runes := []rune(t)
	if len(runes) > maxTitleLen {
		t = string(runes[:maxTitleLen])
	}
	return t
}
