package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/chat"
)

type createConversationReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	p, okk := principalFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	convo, err := h.Convos.Create(c.Request.Context(), p.Email, p.FacilityID, req.Title)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidArgument) {
			fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		h.Logger.Error("conversation create failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50002, "failed to create conversation")
		return
	}
	ok(c, convo)
}

func (h *Handler) ListConversations(c *gin.Context) {
	p, okk := principalFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	convos, err := h.Convos.ListByOwner(c.Request.Context(), p.Email, p.FacilityID, limit, offset)
	if err != nil {
		h.Logger.Error("list conversations failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50002, "failed to list conversations")
		return
	}
	ok(c, gin.H{"conversations": convos, "limit": limit, "offset": offset})
}

type updateTitleReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) UpdateConversationTitle(c *gin.Context) {
	p, okk := principalFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	id := c.Param("conversation_id")
	if !chat.ValidConversationID(id) {
		fail(c, http.StatusBadRequest, 10003, "invalid conversation id format")
		return
	}

	var req updateTitleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	convo, err := h.Convos.GetByID(c.Request.Context(), id)
	if err != nil {
		h.Logger.Error("conversation lookup failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50003, "failed to update title")
		return
	}
	if convo == nil || convo.Email != p.Email {
		fail(c, http.StatusNotFound, 40004, "conversation not found")
		return
	}

	if err := h.Convos.UpdateTitle(c.Request.Context(), id, req.Title); err != nil {
		if errors.Is(err, chat.ErrInvalidArgument) {
			fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		h.Logger.Error("title update failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50003, "failed to update title")
		return
	}
	ok(c, gin.H{"conversation_id": id, "title": req.Title})
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	p, okk := principalFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	id := c.Param("conversation_id")
	removed, err := h.ChatSvc.DeleteConversation(c.Request.Context(), p, id)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidArgument) {
			fail(c, http.StatusBadRequest, 10003, "invalid conversation id format")
			return
		}
		h.Logger.Error("conversation delete failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50004, "failed to delete conversation")
		return
	}
	if !removed {
		fail(c, http.StatusNotFound, 40004, "conversation not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListConversationMessages(c *gin.Context) {
	p, okk := principalFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	id := c.Param("conversation_id")
	if !chat.ValidConversationID(id) {
		fail(c, http.StatusBadRequest, 10003, "invalid conversation id format")
		return
	}

	convo, err := h.Convos.GetByID(c.Request.Context(), id)
	if err != nil {
		h.Logger.Error("conversation lookup failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50005, "failed to list messages")
		return
	}
	if convo == nil || convo.Email != p.Email {
		fail(c, http.StatusNotFound, 40004, "conversation not found")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	msgs, err := h.Msgs.ListByConversationPage(c.Request.Context(), id, limit, offset)
	if err != nil {
		h.Logger.Error("message list failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50005, "failed to list messages")
		return
	}
	ok(c, gin.H{"messages": msgs, "limit": limit, "offset": offset})
}
