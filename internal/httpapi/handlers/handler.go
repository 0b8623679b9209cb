package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/chat"
	"github.com/agrilink/farmchat/internal/config"
	"github.com/agrilink/farmchat/internal/httpapi/middleware"
	"github.com/agrilink/farmchat/internal/knowledge"
	"github.com/agrilink/farmchat/internal/store/rabbitmq"
	"github.com/agrilink/farmchat/internal/user"
)

type Handler struct {
	Cfg       config.Config
	ChatSvc   *chat.Service
	Convos    *chat.ConversationRepo
	Msgs      *chat.MessageRepo
	Users     *user.Repo
	Knowledge *knowledge.Base
	Publisher *rabbitmq.Publisher // nil when the broker is not configured
	Logger    *zap.Logger
}

func NewHandler(cfg config.Config, chatSvc *chat.Service, convos *chat.ConversationRepo, msgs *chat.MessageRepo, users *user.Repo, kb *knowledge.Base, pub *rabbitmq.Publisher, logger *zap.Logger) *Handler {
	return &Handler{
		Cfg:       cfg,
		ChatSvc:   chatSvc,
		Convos:    convos,
		Msgs:      msgs,
		Users:     users,
		Knowledge: kb,
		Publisher: pub,
		Logger:    logger,
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

func (h *Handler) Ping(c *gin.Context) {
	ok(c, gin.H{"pong": true})
}

func principalFromContext(c *gin.Context) (chat.Principal, bool) {
	email, okk := c.Get(middleware.EmailKey)
	if !okk {
		return chat.Principal{}, false
	}
	facility, okk := c.Get(middleware.FacilityIDKey)
	if !okk {
		return chat.Principal{}, false
	}
	e, okE := email.(string)
	f, okF := facility.(string)
	if !okE || !okF {
		return chat.Principal{}, false
	}
	return chat.Principal{Email: e, FacilityID: f}, true
}
