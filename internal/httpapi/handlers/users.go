package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/auth"
	"github.com/agrilink/farmchat/internal/user"
)

type registerReq struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	FacilityID string `json:"facility_id" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, 10002, "email and password required")
		return
	}

	existing, err := h.Users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.Logger.Error("user lookup failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50006, "failed to create user")
		return
	}
	if existing != nil {
		fail(c, http.StatusConflict, 10030, "email already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50007, "failed to hash password")
		return
	}

	u := &user.User{Email: email, PasswordHash: hash, FacilityID: req.FacilityID}
	if err := h.Users.Create(c.Request.Context(), u); err != nil {
		h.Logger.Error("user create failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50006, "failed to create user")
		return
	}
	ok(c, gin.H{"email": u.Email, "facility_id": u.FacilityID})
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	u, err := h.Users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.Logger.Error("user lookup failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50008, "login failed")
		return
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		fail(c, http.StatusUnauthorized, 40110, "invalid email or password")
		return
	}

	token, err := auth.GenerateToken(h.Cfg.JWTSecret, u.Email, u.FacilityID)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50009, "failed to issue token")
		return
	}
	ok(c, gin.H{"token": token})
}

func (h *Handler) Me(c *gin.Context) {
	p, okk := principalFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	ok(c, gin.H{"email": p.Email, "facility_id": p.FacilityID})
}
