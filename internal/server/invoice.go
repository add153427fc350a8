package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/kronusitsolutions/kronusmed/internal/audit/domain"
	invoicedomain "github.com/kronusitsolutions/kronusmed/internal/invoice/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
)

type createInvoiceRequest struct {
	PatientID string                        `json:"patient_id"`
	DoctorID  string                        `json:"doctor_id"`
	DueDate   *time.Time                    `json:"due_date"`
	LineItems []invoicedomain.LineItemInput `json:"line_items"`
}

type addLineItemRequest struct {
	ServiceID string `json:"service_id"`
	Quantity  int    `json:"quantity"`
}

type recordPaymentRequest struct {
	AmountCents int64   `json:"amount_cents"`
	Method      *string `json:"method"`
	Notes       *string `json:"notes"`
}

type exonerateInvoiceRequest struct {
	Reason       string `json:"reason"`
	AuthorizedBy string `json:"authorized_by"`
}

// @Summary      Create Invoice
// @Description  Create an invoice with its coverage snapshot frozen at creation
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        request body createInvoiceRequest true "Create Invoice Request"
// @Success      200  {object}  DataResponse
// @Router       /invoices [post]
func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.Create(c.Request.Context(), invoicedomain.CreateRequest{
		PatientID: strings.TrimSpace(req.PatientID),
		DoctorID:  strings.TrimSpace(req.DoctorID),
		DueDate:   req.DueDate,
		LineItems: req.LineItems,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "invoice.create",
		TargetType: "invoice",
		TargetID:   &resp.ID,
		Metadata: map[string]any{
			"invoice_number":     resp.InvoiceNumber,
			"total_amount_cents": resp.TotalAmountCents,
		},
	})

	respondData(c, resp)
}

// @Summary      List Invoices
// @Description  List invoices with optional filters
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        status      query  string  false  "Status"
// @Param        patient_id  query  string  false  "Patient ID"
// @Param        doctor_id   query  string  false  "Doctor ID"
// @Param        overdue     query  bool    false  "Overdue"
// @Param        from        query  string  false  "From (RFC3339)"
// @Param        to          query  string  false  "To (RFC3339)"
// @Param        page_token  query  string  false  "Page Token"
// @Param        page_size   query  int     false  "Page Size"
// @Success      200  {object}  ListResponse
// @Router       /invoices [get]
func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status    string `form:"status"`
		PatientID string `form:"patient_id"`
		DoctorID  string `form:"doctor_id"`
		Overdue   string `form:"overdue"`
		From      string `form:"from"`
		To        string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	overdue, err := parseOptionalBool(query.Overdue)
	if err != nil {
		AbortWithError(c, newValidationError("overdue", "invalid_overdue", "invalid overdue"))
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

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListRequest{
		Status:    strings.TrimSpace(query.Status),
		PatientID: strings.TrimSpace(query.PatientID),
		DoctorID:  strings.TrimSpace(query.DoctorID),
		Overdue:   overdue,
		From:      from,
		To:        to,
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, resp.Invoices, &resp.PageInfo)
}

// @Summary      Get Invoice
// @Description  Get invoice by ID with line items, payments, and snapshot
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  DataResponse
// @Router       /invoices/{id} [get]
func (s *Server) GetInvoice(c *gin.Context) {
	resp, err := s.invoiceSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}

// @Summary      Explain Invoice
// @Description  Show the per-line coverage math behind an invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  DataResponse
// @Router       /invoices/{id}/explanation [get]
func (s *Server) ExplainInvoice(c *gin.Context) {
	explanation, err := s.explainSvc.ExplainInvoice(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, explanation)
}

// @Summary      Render Invoice PDF
// @Description  Render a printable invoice document
// @Tags         invoices
// @Produce      application/pdf
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {file}  binary
// @Router       /invoices/{id}/pdf [get]
func (s *Server) RenderInvoicePDF(c *gin.Context) {
	resp, err := s.invoiceSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.pdf.Render(resp)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+resp.InvoiceNumber+".pdf\"")
	c.Data(http.StatusOK, "application/pdf", doc)
}

// @Summary      Add Line Item
// @Description  Add a line item to a pending invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Invoice ID"
// @Param        request body addLineItemRequest true "Add Line Item Request"
// @Success      200  {object}  DataResponse
// @Router       /invoices/{id}/line-items [post]
func (s *Server) AddInvoiceLineItem(c *gin.Context) {
	var req addLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.AddLineItem(c.Request.Context(), invoicedomain.AddLineItemRequest{
		InvoiceID: strings.TrimSpace(c.Param("id")),
		ServiceID: strings.TrimSpace(req.ServiceID),
		Quantity:  req.Quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "invoice.add_line_item",
		TargetType: "invoice",
		TargetID:   &resp.ID,
		Metadata:   map[string]any{"service_id": req.ServiceID, "quantity": req.Quantity},
	})

	respondData(c, resp)
}

// @Summary      Remove Line Item
// @Description  Remove a line item from a pending invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id       path  string  true  "Invoice ID"
// @Param        item_id  path  string  true  "Line Item ID"
// @Success      200  {object}  DataResponse
// @Router       /invoices/{id}/line-items/{item_id} [delete]
func (s *Server) RemoveInvoiceLineItem(c *gin.Context) {
	itemID := strings.TrimSpace(c.Param("item_id"))
	resp, err := s.invoiceSvc.RemoveLineItem(c.Request.Context(), strings.TrimSpace(c.Param("id")), itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "invoice.remove_line_item",
		TargetType: "invoice",
		TargetID:   &resp.ID,
		Metadata:   map[string]any{"line_item_id": itemID},
	})

	respondData(c, resp)
}

// @Summary      Record Payment
// @Description  Record a payment against an invoice's patient share
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Invoice ID"
// @Param        request body recordPaymentRequest true "Record Payment Request"
// @Success      200  {object}  DataResponse
// @Router       /invoices/{id}/payments [post]
func (s *Server) RecordInvoicePayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.RecordPayment(c.Request.Context(), invoicedomain.RecordPaymentRequest{
		InvoiceID:   strings.TrimSpace(c.Param("id")),
		AmountCents: req.AmountCents,
		Method:      req.Method,
		Notes:       req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "invoice.record_payment",
		TargetType: "invoice",
		TargetID:   &resp.ID,
		Metadata: map[string]any{
			"amount_cents":         req.AmountCents,
			"pending_amount_cents": resp.PendingAmountCents,
			"status":               resp.Status,
		},
	})

	respondData(c, resp)
}

// @Summary      Exonerate Invoice
// @Description  Forgive the remaining balance of an invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Invoice ID"
// @Param        request body exonerateInvoiceRequest true "Exonerate Request"
// @Success      200  {object}  DataResponse
// @Router       /invoices/{id}/exonerate [post]
func (s *Server) ExonerateInvoice(c *gin.Context) {
	var req exonerateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.Exonerate(c.Request.Context(), invoicedomain.ExonerateRequest{
		InvoiceID:    strings.TrimSpace(c.Param("id")),
		Reason:       strings.TrimSpace(req.Reason),
		AuthorizedBy: strings.TrimSpace(req.AuthorizedBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "invoice.exonerate",
		TargetType: "invoice",
		TargetID:   &resp.ID,
		Metadata:   map[string]any{"reason": req.Reason},
	})

	respondData(c, resp)
}

// @Summary      Cancel Invoice
// @Description  Cancel a pending invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  DataResponse
// @Router       /invoices/{id}/cancel [put]
func (s *Server) CancelInvoice(c *gin.Context) {
	resp, err := s.invoiceSvc.Cancel(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "invoice.cancel",
		TargetType: "invoice",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}

// @Summary      Mark Invoice Overdue
// @Description  Flag an unpaid invoice whose due date passed
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  DataResponse
// @Router       /invoices/{id}/mark-overdue [put]
func (s *Server) MarkInvoiceOverdue(c *gin.Context) {
	resp, err := s.invoiceSvc.MarkOverdue(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "invoice.mark_overdue",
		TargetType: "invoice",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}

// @Summary      Refresh Invoice Coverage
// @Description  Recompute a pending invoice's coverage snapshot against current rules
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  DataResponse
// @Router       /invoices/{id}/refresh-coverage [put]
func (s *Server) RefreshInvoiceCoverage(c *gin.Context) {
	resp, err := s.invoiceSvc.RefreshCoverage(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     "invoice.refresh_coverage",
		TargetType: "invoice",
		TargetID:   &resp.ID,
	})

	respondData(c, resp)
}
