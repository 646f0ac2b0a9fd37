package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cna-finance/internal/auth"
	"cna-finance/internal/model"
)

const (
	userIDContextKey = "userID"
	roleContextKey   = "role"
)

const (
	msgInvalidToken = "Sessão inválida. Faça login novamente."
	msgAdminOnly    = "Acesso restrito a administradores"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID int64
	Role   model.Role
}

func (p Principal) IsAdmin() bool { return p.Role == model.RoleAdmin }

// PrincipalFromContext returns the caller set by RequireAuth.
func PrincipalFromContext(c *gin.Context) (Principal, bool) {
	rawID, ok := c.Get(userIDContextKey)
	if !ok {
		return Principal{}, false
	}
	id, ok := rawID.(int64)
	if !ok || id <= 0 {
		return Principal{}, false
	}
	rawRole, _ := c.Get(roleContextKey)
	role, _ := rawRole.(model.Role)
	return Principal{UserID: id, Role: role}, true
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidToken})
	c.Abort()
}

func RequireAuth(cfg auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(c)
			return
		}

		claims, err := auth.VerifyToken(parts[1], cfg)
		if err != nil {
			unauthorized(c)
			return
		}
		id, _ := claims.UserID()
		c.Set(userIDContextKey, id)
		c.Set(roleContextKey, claims.Role)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFromContext(c)
		if !ok {
			unauthorized(c)
			return
		}
		if !p.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": msgAdminOnly})
			c.Abort()
			return
		}
		c.Next()
	}
}
