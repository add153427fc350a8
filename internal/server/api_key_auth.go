package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
)

const (
	contextAuthTypeKey = "auth_type"
	contextClinicIDKey = "clinic_id"
	contextAPIKeyIDKey = "api_key_id"
	contextStaffIDKey  = "staff_id"
)

// APIKeyRequired authenticates requests with a bearer API key. Clinic
// identity is derived solely from the api_keys table; an explicit
// X-Clinic-Id is allowed but must match the key's clinic.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if s.limiter != nil && !s.limiter.Allow(c.Request.Context(), parts[1]) {
			AbortWithError(c, ErrRateLimited)
			return
		}

		key, err := s.apiKeys.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if requested := strings.TrimSpace(c.GetHeader(HeaderClinic)); requested != "" {
			requestedID, err := snowflake.ParseString(requested)
			if err != nil || requestedID != key.ClinicID {
				AbortWithError(c, ErrUnauthorized)
				return
			}
		}

		actor := "apikey:" + key.Prefix
		staffID := strings.TrimSpace(c.GetHeader(HeaderStaff))
		if staffID != "" {
			if _, err := snowflake.ParseString(staffID); err != nil {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			actor = "user:" + staffID
		}

		ctx := c.Request.Context()
		ctx = clinicctx.WithClinicID(ctx, key.ClinicID)
		ctx = clinicctx.WithActor(ctx, actor)

		c.Set(contextAuthTypeKey, "api_key")
		c.Set(contextClinicIDKey, key.ClinicID.String())
		c.Set(contextAPIKeyIDKey, key.ID.String())
		c.Set(contextStaffIDKey, staffID)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
