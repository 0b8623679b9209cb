package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/chat"
)

type chatTurnReq struct {
	Question          string `json:"question" binding:"required"`
	ConversationID    string `json:"conversation_id"`
	ConversationTitle string `json:"conversation_title"`
}

func (h *Handler) HandleChatTurn(c *gin.Context) {
	p, okk := principalFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req chatTurnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	res, err := h.ChatSvc.HandleTurn(c.Request.Context(), p, chat.TurnRequest{
		Question:          req.Question,
		ConversationID:    req.ConversationID,
		ConversationTitle: req.ConversationTitle,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrInvalidArgument):
			fail(c, http.StatusBadRequest, 10002, err.Error())
		case errors.Is(err, chat.ErrNotFound):
			fail(c, http.StatusNotFound, 40004, "conversation not found")
		default:
			h.Logger.Error("chat turn failed", zap.Error(err))
			fail(c, http.StatusInternalServerError, 50001, "chat turn failed")
		}
		return
	}

	ok(c, gin.H{
		"answer":             res.Answer,
		"conversation_id":    res.ConversationID,
		"conversation_title": res.ConversationTitle,
		"user_message_id":    res.UserMessageID,
		"bot_message_id":     res.BotMessageID,
	})
}
