package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/kronusitsolutions/kronusmed/internal/audit/domain"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
)

// recordAudit fills request metadata before handing the entry to the
// recorder. Recording never fails the request.
func (s *Server) recordAudit(c *gin.Context, entry auditdomain.Entry) {
	if s.audit == nil {
		return
	}
	if ip := c.ClientIP(); ip != "" {
		entry.IPAddress = &ip
	}
	if ua := c.Request.UserAgent(); ua != "" {
		entry.UserAgent = &ua
	}
	s.audit.Record(c.Request.Context(), entry)
}

// ListAuditLogs handles GET /api/v1/audit
func (s *Server) ListAuditLogs(c *gin.Context) {
	filter := auditdomain.ListFilter{}

	if raw := strings.TrimSpace(c.Query("actions")); raw != "" {
		actions := strings.Split(raw, ",")
		for i := range actions {
			actions[i] = strings.TrimSpace(actions[i])
		}
		filter.Actions = actions
	}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("from", "invalid_date", "from must be RFC3339"))
			return
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("to", "invalid_date", "to must be RFC3339"))
			return
		}
		filter.To = &to
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	logs, err := s.audit.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, logs, nil)
}

// ExportAuditLogs handles GET /api/v1/audit/export
func (s *Server) ExportAuditLogs(c *gin.Context) {
	startDateStr := strings.TrimSpace(c.Query("start_date"))
	endDateStr := strings.TrimSpace(c.Query("end_date"))
	formatStr := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv")))
	actionsStr := strings.TrimSpace(c.Query("actions"))

	if startDateStr == "" || endDateStr == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	startDate, err := time.Parse("2006-01-02", startDateStr)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	endDate, err := time.Parse("2006-01-02", endDateStr)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	// End date is inclusive for callers, exclusive in the query.
	endDate = endDate.Add(24 * time.Hour)

	if endDate.Before(startDate) {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if endDate.Sub(startDate) > 90*24*time.Hour {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var format auditdomain.ExportFormat
	switch formatStr {
	case "csv":
		format = auditdomain.ExportFormatCSV
	case "json":
		format = auditdomain.ExportFormatJSON
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var actions []string
	if actionsStr != "" {
		actions = strings.Split(actionsStr, ",")
		for i := range actions {
			actions[i] = strings.TrimSpace(actions[i])
		}
	}

	clinicID, ok := clinicctx.ClinicIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.auditExport.Export(c.Request.Context(), auditdomain.ExportRequest{
		ClinicID:  &clinicID,
		StartDate: startDate,
		EndDate:   endDate,
		Format:    format,
		Actions:   actions,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("X-Audit-Export-Checksum", result.Checksum)
	c.Header("X-Audit-Export-Count", strconv.Itoa(result.Count))

	var contentType, filename string
	switch result.Format {
	case auditdomain.ExportFormatCSV:
		contentType = "text/csv"
		filename = "audit_export_" + startDateStr + "_" + endDateStr + ".csv"
	case auditdomain.ExportFormatJSON:
		contentType = "application/json"
		filename = "audit_export_" + startDateStr + "_" + endDateStr + ".json"
	}

	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Data(http.StatusOK, contentType, result.Data)
}
