package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cna-finance/internal/auth"
	"cna-finance/internal/model"
	"cna-finance/internal/store"
)

type AuthHandler struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	Log         *zap.Logger
}

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}

	user, err := h.Store.Authenticate(body.Username, body.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgBadCredentials})
		return
	}

	token, err := auth.CreateToken(user.ID, user.Role, h.TokenConfig)
	if err != nil {
		logger(h.Log).Error("token creation failed", zap.Int64("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgTokenFailed})
		return
	}

	identity := user.Identity()
	identity.Token = token
	c.JSON(http.StatusOK, identity)
}

// Register always creates a plain user, whatever the body asks for.
func (h *AuthHandler) Register(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}

	user, err := h.Store.CreateUser(body.Username, body.Password, model.RoleUser)
	switch {
	case errors.Is(err, store.ErrMissingFields):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingFields})
		return
	case errors.Is(err, store.ErrUserExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgUserExists})
		return
	case err != nil:
		logger(h.Log).Error("register failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
		return
	}

	logger(h.Log).Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	c.JSON(http.StatusCreated, gin.H{"message": msgAccountCreated})
}
