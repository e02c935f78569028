package api

import (
	"net/http"
	"strings"

	"github.com/annel0/voxel-server/internal/auth"
	"github.com/gin-gonic/gin"
)

// corsMiddleware выставляет CORS-заголовки для настроенного origin
func (rs *RestServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", rs.origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// jwtMiddleware проверяет JWT токен в заголовке Authorization
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			fail(c, http.StatusUnauthorized, "Отсутствует токен авторизации")
			return
		}

		// Проверяем формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			fail(c, http.StatusUnauthorized, "Неверный формат токена")
			return
		}

		claims, valid := auth.ValidateJWT(parts[1])
		if !valid {
			fail(c, http.StatusUnauthorized, "Недействительный токен")
			return
		}

		c.Set("username", claims.Username)
		c.Set("is_admin", claims.IsAdmin())
		c.Set("role", claims.Role)
		c.Next()
	}
}

// adminMiddleware проверяет, что пользователь является администратором
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool("is_admin") {
			fail(c, http.StatusForbidden, "Недостаточно прав доступа")
			return
		}
		c.Next()
	}
}
