package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminRequired authenticates operator endpoints with the configured admin
// secret. When no secret hash is configured the endpoints are disabled
// rather than open.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		encoded := strings.TrimSpace(s.cfg.Admin.SecretHash)
		if encoded == "" {
			AbortWithError(c, ErrForbidden)
			return
		}

		secret := strings.TrimSpace(c.GetHeader(HeaderAdminSecret))
		if secret == "" || !verifySecret(secret, encoded) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
