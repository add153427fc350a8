package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/kronusitsolutions/kronusmed/internal/audit/domain"
	insurancedomain "github.com/kronusitsolutions/kronusmed/internal/insurance/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
)

type createPolicyRequest struct {
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

type updatePolicyRequest struct {
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

type upsertRuleRequest struct {
	ServiceID string `json:"service_id"`
	Percent   int    `json:"percent"`
	Active    *bool  `json:"active"`
}

// @Summary      Create Policy
// @Description  Create an insurance policy
// @Tags         insurance
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        request body createPolicyRequest true "Create Policy Request"
// @Success      200  {object}  DataResponse
// @Router       /policies [post]
func (s *Server) CreatePolicy(c *gin.Context) {
	var req createPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.insuranceSvc.CreatePolicy(c.Request.Context(), insurancedomain.CreatePolicyRequest{
		Name:   strings.TrimSpace(req.Name),
		Active: req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "policy.create",
		TargetType: "insurance_policy",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}

// @Summary      List Policies
// @Description  List insurance policies
// @Tags         insurance
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        page_token  query  string  false  "Page Token"
// @Param        page_size   query  int     false  "Page Size"
// @Success      200  {object}  ListResponse
// @Router       /policies [get]
func (s *Server) ListPolicies(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.insuranceSvc.ListPolicies(c.Request.Context(), insurancedomain.ListPoliciesRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, resp.Policies, &resp.PageInfo)
}

// @Summary      Get Policy
// @Description  Get policy by ID
// @Tags         insurance
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Policy ID"
// @Success      200  {object}  DataResponse
// @Router       /policies/{id} [get]
func (s *Server) GetPolicy(c *gin.Context) {
	resp, err := s.insuranceSvc.GetPolicy(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}

// @Summary      Update Policy
// @Description  Update policy attributes
// @Tags         insurance
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Policy ID"
// @Param        request body updatePolicyRequest true "Update Policy Request"
// @Success      200  {object}  DataResponse
// @Router       /policies/{id} [patch]
func (s *Server) UpdatePolicy(c *gin.Context) {
	var req updatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.insuranceSvc.UpdatePolicy(c.Request.Context(), insurancedomain.UpdatePolicyRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Name:   req.Name,
		Active: req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "policy.update",
		TargetType: "insurance_policy",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}

// @Summary      Upsert Coverage Rule
// @Description  Set the coverage percent for a (policy, service) pair
// @Tags         insurance
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Policy ID"
// @Param        request body upsertRuleRequest true "Upsert Rule Request"
// @Success      200  {object}  DataResponse
// @Router       /policies/{id}/rules [put]
func (s *Server) UpsertCoverageRule(c *gin.Context) {
	var req upsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.insuranceSvc.UpsertRule(c.Request.Context(), insurancedomain.UpsertRuleRequest{
		PolicyID:  strings.TrimSpace(c.Param("id")),
		ServiceID: strings.TrimSpace(req.ServiceID),
		Percent:   req.Percent,
		Active:    req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "policy.upsert_rule",
		TargetType: "coverage_rule",
		TargetID:   &resp.ID,
		Metadata:   map[string]any{"service_id": req.ServiceID, "percent": req.Percent},
	})

	respondData(c, resp)
}

// @Summary      List Coverage Rules
// @Description  List coverage rules for a policy
// @Tags         insurance
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Policy ID"
// @Success      200  {object}  ListResponse
// @Router       /policies/{id}/rules [get]
func (s *Server) ListCoverageRules(c *gin.Context) {
	rules, err := s.insuranceSvc.ListRules(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, rules, nil)
}
