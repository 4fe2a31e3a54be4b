package middlewares

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/concessions-app/utils"
)

// AuthMiddleware validates the bearer token and binds the caller's user,
// theater and role into the request context. Every theater-scoped handler
// trusts theater_id from here, never from the payload.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("authorization token missing"))
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(token, "Bearer ")
		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.RespondAppError(c, err)
			c.Abort()
			return
		}
		if claims.UserID == 0 || claims.TheaterID == 0 {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid token claims"))
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("theater_id", claims.TheaterID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireRole gates a route group to one role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != role {
			utils.RespondError(c, http.StatusForbidden, errors.New("insufficient role"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireTheater rejects requests whose path theater does not match the
// token's theater.
func RequireTheater() gin.HandlerFunc {
	return func(c *gin.Context) {
		pathTheater := c.Param("theater_id")
		if pathTheater == "" {
			c.Next()
			return
		}
		tokenTheater := c.GetUint("theater_id")
		if pathTheater != strconv.FormatUint(uint64(tokenTheater), 10) {
			utils.RespondError(c, http.StatusForbidden, errors.New("theater mismatch"))
			c.Abort()
			return
		}
		c.Next()
	}
}
