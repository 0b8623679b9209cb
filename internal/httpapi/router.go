package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agrilink/farmchat/internal/config"
	"github.com/agrilink/farmchat/internal/httpapi/handlers"
	"github.com/agrilink/farmchat/internal/httpapi/middleware"
)

func NewRouter(cfg config.Config, h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "route not found", "data": nil})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"code": 40500, "message": "method not allowed", "data": nil})
	})

	r.GET("/ping", h.Ping)

	r.POST("/users", h.Register)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// Chat (JWT required)
	authGroup.POST("/chat", h.HandleChatTurn)
	authGroup.POST("/conversations", h.CreateConversation)
	authGroup.GET("/conversations", h.ListConversations)
	authGroup.PATCH("/conversations/:conversation_id/title", h.UpdateConversationTitle)
	authGroup.DELETE("/conversations/:conversation_id", h.DeleteConversation)
	authGroup.GET("/conversations/:conversation_id/messages", h.ListConversationMessages)

	// Knowledge base
	authGroup.POST("/knowledge", h.IngestKnowledge)
	authGroup.GET("/knowledge/search", h.SearchKnowledge)

	return r
}
