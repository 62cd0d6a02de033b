package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mlevkov/chatgate/internal/server/auth"
)

const ctxUserIDKey = "user_id"

// unauthorizedDetail is intentionally the same for every authentication
// failure so callers cannot tell a bad signature from a deleted account.
const unauthorizedDetail = "could not validate credentials"

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": unauthorizedDetail})
}

// authRequired verifies the bearer token and resolves its subject to a live
// user before any handler runs.
func (s *HTTPServer) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			unauthorized(c)
			return
		}

		userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
		if err != nil {
			unauthorized(c)
			return
		}

		user, err := s.users.ResolveUser(c.Request.Context(), userID)
		if err != nil {
			unauthorized(c)
			return
		}

		c.Set(ctxUserIDKey, user.ID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	return c.GetString(ctxUserIDKey)
}
