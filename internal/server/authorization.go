package server

import (
	"github.com/gin-gonic/gin"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
)

// requireAction enforces role-based access for the authenticated actor.
// Requests without a staff identity act as the integration itself, which the
// authorization service treats as system-level.
func (s *Server) requireAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		clinicID, ok := clinicctx.ClinicIDFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor := "system"
		if staffID := c.GetString(contextStaffIDKey); staffID != "" {
			actor = "user:" + staffID
		}

		if err := s.authz.Authorize(c.Request.Context(), actor, clinicID.String(), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
