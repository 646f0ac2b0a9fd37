package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cna-finance/internal/hub"
	"cna-finance/internal/middleware"
	"cna-finance/internal/store"
)

type UserHandler struct {
	Store *store.Store
	Hub   *hub.Hub
	Log   *zap.Logger
}

type payBody struct {
	UserID int64           `json:"user_id"`
	Value  decimal.Decimal `json:"value"`
}

// canAccess lets a caller read or debit only their own account, unless
// they are an admin.
func canAccess(c *gin.Context, userID int64) bool {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return false
	}
	return p.UserID == userID || p.IsAdmin()
}

func (h *UserHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": msgUserNotFound})
		return
	}
	if !canAccess(c, id) {
		c.JSON(http.StatusForbidden, gin.H{"error": msgForbidden})
		return
	}

	user, ok := h.Store.GetUser(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msgUserNotFound})
		return
	}
	c.JSON(http.StatusOK, user.Remote())
}

func (h *UserHandler) Pay(c *gin.Context) {
	var body payBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}
	if !canAccess(c, body.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": msgForbidden})
		return
	}

	balance, err := h.Store.Pay(body.UserID, body.Value, c.GetHeader(idempotencyKeyHead))
	if err != nil {
		status, msg := mutationError(err)
		if status == http.StatusInternalServerError {
			logger(h.Log).Error("payment failed", zap.Int64("user_id", body.UserID), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	if h.Hub != nil {
		h.Hub.BalanceChanged(body.UserID)
	}
	c.JSON(http.StatusOK, gin.H{"message": msgPaymentDone, "new_balance": balance})
}

func mutationError(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		return http.StatusBadRequest, msgInsufficient
	case errors.Is(err, store.ErrInvalidAmount):
		return http.StatusBadRequest, msgInvalidAmount
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, msgUserNotFound
	case errors.Is(err, store.ErrKeyReused):
		return http.StatusConflict, msgKeyReused
	default:
		return http.StatusInternalServerError, msgInternal
	}
}
