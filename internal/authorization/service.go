package authorization

import "context"

// Service answers whether an actor may perform an action on an object within
// a clinic. Actors are "user:<id>" for staff or "system" for internal jobs.
type Service interface {
	Authorize(ctx context.Context, actor string, clinicID string, object string, action string) error
}

// Objects.
const (
	ObjectCatalog     = "catalog"
	ObjectPatient     = "patient"
	ObjectInsurance   = "insurance"
	ObjectAppointment = "appointment"
	ObjectInvoice     = "invoice"
	ObjectAudit       = "audit"
	ObjectAPIKey      = "apikey"
)

// Actions.
const (
	ActionRead             = "read"
	ActionWrite            = "write"
	ActionInvoicePay       = "invoice.pay"
	ActionInvoiceExonerate = "invoice.exonerate"
	ActionInvoiceCancel    = "invoice.cancel"
	ActionAuditExport      = "audit.export"
)

// Staff roles.
const (
	RoleAdmin     = "ADMIN"
	RoleDoctor    = "DOCTOR"
	RoleFrontdesk = "FRONTDESK"
)
