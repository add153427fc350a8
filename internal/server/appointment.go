package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	appointmentdomain "github.com/kronusitsolutions/kronusmed/internal/appointment/domain"
	auditdomain "github.com/kronusitsolutions/kronusmed/internal/audit/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
)

type bookAppointmentRequest struct {
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	ServiceID string    `json:"service_id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Notes     *string   `json:"notes"`
}

type rescheduleAppointmentRequest struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// @Summary      Book Appointment
// @Description  Book a doctor's time slot for a patient
// @Tags         appointments
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        request body bookAppointmentRequest true "Book Appointment Request"
// @Success      200  {object}  DataResponse
// @Router       /appointments [post]
func (s *Server) BookAppointment(c *gin.Context) {
	var req bookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.apptSvc.Book(c.Request.Context(), appointmentdomain.BookRequest{
		PatientID: strings.TrimSpace(req.PatientID),
		DoctorID:  strings.TrimSpace(req.DoctorID),
		ServiceID: strings.TrimSpace(req.ServiceID),
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Notes:     req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "appointment.book",
		TargetType: "appointment",
		TargetID:   &resp.ID,
		Metadata:   map[string]any{"doctor_id": req.DoctorID, "starts_at": req.StartsAt},
	})

	respondData(c, resp)
}

// @Summary      List Appointments
// @Description  List appointments with optional filters
// @Tags         appointments
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        status      query  string  false  "Status"
// @Param        doctor_id   query  string  false  "Doctor ID"
// @Param        patient_id  query  string  false  "Patient ID"
// @Param        from        query  string  false  "From (RFC3339)"
// @Param        to          query  string  false  "To (RFC3339)"
// @Param        page_token  query  string  false  "Page Token"
// @Param        page_size   query  int     false  "Page Size"
// @Success      200  {object}  ListResponse
// @Router       /appointments [get]
func (s *Server) ListAppointments(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status    string `form:"status"`
		DoctorID  string `form:"doctor_id"`
		PatientID string `form:"patient_id"`
		From      string `form:"from"`
		To        string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalTime(query.From)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_date", "from must be RFC3339"))
		return
	}
	to, err := parseOptionalTime(query.To)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_date", "to must be RFC3339"))
		return
	}

	resp, err := s.apptSvc.List(c.Request.Context(), appointmentdomain.ListRequest{
		Status:    strings.TrimSpace(query.Status),
		DoctorID:  strings.TrimSpace(query.DoctorID),
		PatientID: strings.TrimSpace(query.PatientID),
		From:      from,
		To:        to,
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, resp.Appointments, &resp.PageInfo)
}

// @Summary      Get Appointment
// @Description  Get appointment by ID
// @Tags         appointments
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Appointment ID"
// @Success      200  {object}  DataResponse
// @Router       /appointments/{id} [get]
func (s *Server) GetAppointment(c *gin.Context) {
	resp, err := s.apptSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}

// @Summary      Reschedule Appointment
// @Description  Move a scheduled appointment to a new slot
// @Tags         appointments
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Appointment ID"
// @Param        request body rescheduleAppointmentRequest true "Reschedule Request"
// @Success      200  {object}  DataResponse
// @Router       /appointments/{id}/reschedule [put]
func (s *Server) RescheduleAppointment(c *gin.Context) {
	var req rescheduleAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.apptSvc.Reschedule(c.Request.Context(), appointmentdomain.RescheduleRequest{
		ID:       id,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "appointment.reschedule",
		TargetType: "appointment",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}

// @Summary      Complete Appointment
// @Description  Mark a scheduled appointment completed
// @Tags         appointments
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Appointment ID"
// @Success      200  {object}  DataResponse
// @Router       /appointments/{id}/complete [put]
func (s *Server) CompleteAppointment(c *gin.Context) {
	resp, err := s.apptSvc.Complete(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "appointment.complete",
		TargetType: "appointment",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}

// @Summary      Cancel Appointment
// @Description  Cancel a scheduled appointment
// @Tags         appointments
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Appointment ID"
// @Success      200  {object}  DataResponse
// @Router       /appointments/{id}/cancel [put]
func (s *Server) CancelAppointment(c *gin.Context) {
	resp, err := s.apptSvc.Cancel(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "appointment.cancel",
		TargetType: "appointment",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}
