package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/kronusitsolutions/kronusmed/internal/audit/domain"
	catalogdomain "github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
)

type createServiceRequest struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Active         *bool  `json:"active"`
}

type updateServiceRequest struct {
	Name           *string `json:"name,omitempty"`
	Category       *string `json:"category,omitempty"`
	UnitPriceCents *int64  `json:"unit_price_cents,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

// @Summary      Create Service
// @Description  Create a billable clinic service
// @Tags         services
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        Idempotency-Key  header  string  false  "Idempotency Key"
// @Param        request body createServiceRequest true "Create Service Request"
// @Success      200  {object}  DataResponse
// @Router       /services [post]
func (s *Server) CreateService(c *gin.Context) {
	var req createServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.Create(c.Request.Context(), catalogdomain.CreateRequest{
		Code:           strings.TrimSpace(req.Code),
		Name:           strings.TrimSpace(req.Name),
		Category:       strings.TrimSpace(req.Category),
		UnitPriceCents: req.UnitPriceCents,
		Active:         req.Active,
		IdempotencyKey: idempotencyKeyFromHeader(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "service.create",
		TargetType: "service",
		TargetID:   &resp.ID,
		Metadata:   map[string]any{"code": resp.Code, "unit_price_cents": resp.UnitPriceCents},
	})

	respondData(c, resp)
}

// @Summary      List Services
// @Description  List clinic services
// @Tags         services
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        category    query  string  false  "Category"
// @Param        name        query  string  false  "Name"
// @Param        active      query  bool    false  "Active"
// @Param        page_token  query  string  false  "Page Token"
// @Param        page_size   query  int     false  "Page Size"
// @Success      200  {object}  ListResponse
// @Router       /services [get]
func (s *Server) ListServices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Category string `form:"category"`
		Name     string `form:"name"`
		Active   string `form:"active"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	active, err := parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	resp, err := s.catalogSvc.List(c.Request.Context(), catalogdomain.ListRequest{
		Category:  strings.TrimSpace(query.Category),
		Name:      strings.TrimSpace(query.Name),
		Active:    active,
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, resp.Services, &resp.PageInfo)
}

// @Summary      Get Service
// @Description  Get service by ID
// @Tags         services
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Service ID"
// @Success      200  {object}  DataResponse
// @Router       /services/{id} [get]
func (s *Server) GetService(c *gin.Context) {
	resp, err := s.catalogSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}

// @Summary      Update Service
// @Description  Update service attributes
// @Tags         services
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Service ID"
// @Param        request body updateServiceRequest true "Update Service Request"
// @Success      200  {object}  DataResponse
// @Router       /services/{id} [patch]
func (s *Server) UpdateService(c *gin.Context) {
	var req updateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.Update(c.Request.Context(), catalogdomain.UpdateRequest{
		ID:             strings.TrimSpace(c.Param("id")),
		Name:           req.Name,
		Category:       req.Category,
		UnitPriceCents: req.UnitPriceCents,
		Active:         req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "service.update",
		TargetType: "service",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}

// @Summary      Archive Service
// @Description  Deactivate a service without deleting history
// @Tags         services
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Service ID"
// @Success      200  {object}  DataResponse
// @Router       /services/{id} [delete]
func (s *Server) ArchiveService(c *gin.Context) {
	resp, err := s.catalogSvc.Archive(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "service.archive",
		TargetType: "service",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}
