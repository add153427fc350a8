package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	apikeydomain "github.com/kronusitsolutions/kronusmed/internal/apikey/domain"
	auditdomain "github.com/kronusitsolutions/kronusmed/internal/audit/domain"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
)

func (s *Server) adminClinicContext(c *gin.Context) (*gin.Context, bool) {
	raw := strings.TrimSpace(c.Param("clinic_id"))
	clinicID, err := snowflake.ParseString(raw)
	if err != nil || clinicID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return nil, false
	}

	ctx := clinicctx.WithClinicID(c.Request.Context(), clinicID)
	ctx = clinicctx.WithActor(ctx, "admin")
	c.Request = c.Request.WithContext(ctx)
	return c, true
}

// CreateAPIKey handles POST /admin/v1/clinics/:clinic_id/api-keys
func (s *Server) CreateAPIKey(c *gin.Context) {
	if _, ok := s.adminClinicContext(c); !ok {
		return
	}

	var req apikeydomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	created, err := s.apiKeys.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		ActorType:  "admin",
		Action:     "apikey.create",
		TargetType: "api_key",
		TargetID:   &created.ID,
	})

	c.JSON(http.StatusCreated, gin.H{"data": created})
}

// ListAPIKeys handles GET /admin/v1/clinics/:clinic_id/api-keys
func (s *Server) ListAPIKeys(c *gin.Context) {
	if _, ok := s.adminClinicContext(c); !ok {
		return
	}

	keys, err := s.apiKeys.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, keys, nil)
}

// RevokeAPIKey handles DELETE /admin/v1/clinics/:clinic_id/api-keys/:id
func (s *Server) RevokeAPIKey(c *gin.Context) {
	if _, ok := s.adminClinicContext(c); !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := s.apiKeys.Revoke(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		ActorType:  "admin",
		Action:     "apikey.revoke",
		TargetType: "api_key",
		TargetID:   &id,
	})

	c.Status(http.StatusNoContent)
}
