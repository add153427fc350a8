package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/kronusitsolutions/kronusmed/internal/audit/domain"
	patientdomain "github.com/kronusitsolutions/kronusmed/internal/patient/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
)

type registerPatientRequest struct {
	DocumentID string     `json:"document_id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	BirthDate  *time.Time `json:"birth_date"`
	Phone      *string    `json:"phone"`
	Email      *string    `json:"email"`
}

type updatePatientRequest struct {
	FirstName *string    `json:"first_name,omitempty"`
	LastName  *string    `json:"last_name,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Active    *bool      `json:"active,omitempty"`
}

type linkPolicyRequest struct {
	PolicyID string `json:"policy_id"`
}

// @Summary      Register Patient
// @Description  Register a new patient
// @Tags         patients
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        request body registerPatientRequest true "Register Patient Request"
// @Success      200  {object}  DataResponse
// @Router       /patients [post]
func (s *Server) RegisterPatient(c *gin.Context) {
	var req registerPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.patientSvc.Register(c.Request.Context(), patientdomain.RegisterRequest{
		DocumentID: strings.TrimSpace(req.DocumentID),
		FirstName:  strings.TrimSpace(req.FirstName),
		LastName:   strings.TrimSpace(req.LastName),
		BirthDate:  req.BirthDate,
		Phone:      req.Phone,
		Email:      req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "patient.register",
		TargetType: "patient",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}

// @Summary      List Patients
// @Description  List registered patients
// @Tags         patients
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        search      query  string  false  "Name or document search"
// @Param        active      query  bool    false  "Active"
// @Param        page_token  query  string  false  "Page Token"
// @Param        page_size   query  int     false  "Page Size"
// @Success      200  {object}  ListResponse
// @Router       /patients [get]
func (s *Server) ListPatients(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Search string `form:"search"`
		Active string `form:"active"`
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

	resp, err := s.patientSvc.List(c.Request.Context(), patientdomain.ListRequest{
		Search:    strings.TrimSpace(query.Search),
		Active:    active,
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, resp.Patients, &resp.PageInfo)
}

// @Summary      Get Patient
// @Description  Get patient by ID
// @Tags         patients
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Patient ID"
// @Success      200  {object}  DataResponse
// @Router       /patients/{id} [get]
func (s *Server) GetPatient(c *gin.Context) {
	resp, err := s.patientSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}

// @Summary      Update Patient
// @Description  Update patient attributes
// @Tags         patients
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Patient ID"
// @Param        request body updatePatientRequest true "Update Patient Request"
// @Success      200  {object}  DataResponse
// @Router       /patients/{id} [patch]
func (s *Server) UpdatePatient(c *gin.Context) {
	var req updatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.patientSvc.Update(c.Request.Context(), patientdomain.UpdateRequest{
		ID:        strings.TrimSpace(c.Param("id")),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		BirthDate: req.BirthDate,
		Phone:     req.Phone,
		Email:     req.Email,
		Active:    req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "patient.update",
		TargetType: "patient",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}

// @Summary      Link Insurance Policy
// @Description  Link a patient to an insurance policy
// @Tags         patients
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Patient ID"
// @Param        request body linkPolicyRequest true "Link Policy Request"
// @Success      200  {object}  DataResponse
// @Router       /patients/{id}/policy [put]
func (s *Server) LinkPatientPolicy(c *gin.Context) {
	var req linkPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.patientSvc.LinkPolicy(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.PolicyID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "patient.link_policy",
		TargetType: "patient",
		TargetID:   &resp.ID,
		Metadata:   map[string]any{"policy_id": req.PolicyID},
	})

	respondData(c, resp)
}

// @Summary      Unlink Insurance Policy
// @Description  Remove a patient's insurance policy link
// @Tags         patients
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Patient ID"
// @Success      200  {object}  DataResponse
// @Router       /patients/{id}/policy [delete]
func (s *Server) UnlinkPatientPolicy(c *gin.Context) {
	resp, err := s.patientSvc.UnlinkPolicy(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "patient.unlink_policy",
		TargetType: "patient",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}
