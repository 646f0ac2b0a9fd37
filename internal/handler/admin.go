package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cna-finance/internal/hub"
	"cna-finance/internal/model"
	"cna-finance/internal/store"
)

// AdminHandler serves the admin routes. RequireAdmin guards them all.
type AdminHandler struct {
	Store *store.Store
	Hub   *hub.Hub
	Log   *zap.Logger
}

type updateBalanceBody struct {
	UserID int64           `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

func remoteUsers(users []model.User) []model.RemoteUser {
	out := make([]model.RemoteUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Remote())
	}
	return out
}

func (h *AdminHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, remoteUsers(h.Store.ListUsers()))
}

func (h *AdminHandler) Search(c *gin.Context) {
	c.JSON(http.StatusOK, remoteUsers(h.Store.SearchUsers(c.Query("name"))))
}

func (h *AdminHandler) UpdateBalance(c *gin.Context) {
	var body updateBalanceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}

	balance, err := h.Store.AdjustBalance(body.UserID, body.Amount, c.GetHeader(idempotencyKeyHead))
	if err != nil {
		status, msg := mutationError(err)
		if status == http.StatusInternalServerError {
			logger(h.Log).Error("balance update failed", zap.Int64("user_id", body.UserID), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	logger(h.Log).Info("balance adjusted",
		zap.Int64("user_id", body.UserID),
		zap.String("delta", body.Amount.String()),
		zap.String("balance", balance.String()),
	)
	if h.Hub != nil {
		h.Hub.BalanceChanged(body.UserID)
	}
	c.JSON(http.StatusOK, gin.H{"message": msgBalanceUpdated, "new_balance": balance})
}
