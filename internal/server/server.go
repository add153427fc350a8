package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/kronusitsolutions/kronusmed/internal/apikey/domain"
	appointmentdomain "github.com/kronusitsolutions/kronusmed/internal/appointment/domain"
	auditdomain "github.com/kronusitsolutions/kronusmed/internal/audit/domain"
	"github.com/kronusitsolutions/kronusmed/internal/authorization"
	catalogdomain "github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	"github.com/kronusitsolutions/kronusmed/internal/config"
	insurancedomain "github.com/kronusitsolutions/kronusmed/internal/insurance/domain"
	invoicedomain "github.com/kronusitsolutions/kronusmed/internal/invoice/domain"
	"github.com/kronusitsolutions/kronusmed/internal/invoice/render"
	invoiceservice "github.com/kronusitsolutions/kronusmed/internal/invoice/service"
	"github.com/kronusitsolutions/kronusmed/internal/observability"
	patientdomain "github.com/kronusitsolutions/kronusmed/internal/patient/domain"
	"github.com/kronusitsolutions/kronusmed/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// HeaderClinic optionally pins a request to a clinic; it must match the
	// clinic the API key belongs to.
	HeaderClinic = "X-Clinic-Id"
	// HeaderStaff identifies the staff member acting through an API key.
	HeaderStaff = "X-Staff-Id"
	// HeaderAdminSecret authenticates operator-only endpoints.
	HeaderAdminSecret = "X-Admin-Secret"
)

// Server holds every dependency the HTTP handlers need.
type Server struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     config.Config
	limiter ratelimit.Limiter

	apiKeys      apikeydomain.APIKeyService
	authz        authorization.Service
	catalogSvc   catalogdomain.CatalogService
	patientSvc   patientdomain.PatientService
	insuranceSvc insurancedomain.InsuranceService
	apptSvc      appointmentdomain.AppointmentService
	invoiceSvc   invoicedomain.LedgerService
	explainSvc   *invoiceservice.ExplanationService
	pdf          *render.PDFRenderer
	audit        auditdomain.Recorder
	auditExport  auditdomain.ExportService
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Limiter ratelimit.Limiter

	APIKeys      apikeydomain.APIKeyService
	Authz        authorization.Service
	Catalog      catalogdomain.CatalogService
	Patients     patientdomain.PatientService
	Insurance    insurancedomain.InsuranceService
	Appointments appointmentdomain.AppointmentService
	Invoices     invoicedomain.LedgerService
	Explain      *invoiceservice.ExplanationService
	PDF          *render.PDFRenderer
	Audit        auditdomain.Recorder
	AuditExport  auditdomain.ExportService
}

func NewServer(p Params) *Server {
	return &Server{
		db:           p.DB,
		log:          p.Log.Named("server"),
		cfg:          p.Config,
		limiter:      p.Limiter,
		apiKeys:      p.APIKeys,
		authz:        p.Authz,
		catalogSvc:   p.Catalog,
		patientSvc:   p.Patients,
		insuranceSvc: p.Insurance,
		apptSvc:      p.Appointments,
		invoiceSvc:   p.Invoices,
		explainSvc:   p.Explain,
		pdf:          p.PDF,
		audit:        p.Audit,
		auditExport:  p.AuditExport,
	}
}

// NewEngine builds the gin engine with the ambient middleware chain. Route
// registration is a separate step so tests can mount a subset.
func NewEngine(cfg config.Config, log *zap.Logger, metrics *observability.HTTPMetrics) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID())
	engine.Use(RequestLogger(log))
	if metrics != nil {
		engine.Use(metrics.GinMiddleware())
	}
	return engine
}

// RegisterAPIRoutes mounts every route group on the engine.
func (s *Server) RegisterAPIRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Healthz)
	engine.GET("/readyz", s.Readyz)
	engine.GET("/metrics", observability.MetricsHandler())

	admin := engine.Group("/admin/v1")
	admin.Use(s.AdminRequired())
	{
		admin.POST("/clinics/:clinic_id/api-keys", s.CreateAPIKey)
		admin.GET("/clinics/:clinic_id/api-keys", s.ListAPIKeys)
		admin.DELETE("/clinics/:clinic_id/api-keys/:id", s.RevokeAPIKey)
	}

	api := engine.Group("/api/v1")
	api.Use(s.APIKeyRequired())
	{
		api.POST("/services", s.requireAction(authorization.ObjectCatalog, authorization.ActionWrite), s.CreateService)
		api.GET("/services", s.requireAction(authorization.ObjectCatalog, authorization.ActionRead), s.ListServices)
		api.GET("/services/:id", s.requireAction(authorization.ObjectCatalog, authorization.ActionRead), s.GetService)
		api.PATCH("/services/:id", s.requireAction(authorization.ObjectCatalog, authorization.ActionWrite), s.UpdateService)
		api.DELETE("/services/:id", s.requireAction(authorization.ObjectCatalog, authorization.ActionWrite), s.ArchiveService)

		api.POST("/patients", s.requireAction(authorization.ObjectPatient, authorization.ActionWrite), s.RegisterPatient)
		api.GET("/patients", s.requireAction(authorization.ObjectPatient, authorization.ActionRead), s.ListPatients)
		api.GET("/patients/:id", s.requireAction(authorization.ObjectPatient, authorization.ActionRead), s.GetPatient)
		api.PATCH("/patients/:id", s.requireAction(authorization.ObjectPatient, authorization.ActionWrite), s.UpdatePatient)
		api.PUT("/patients/:id/policy", s.requireAction(authorization.ObjectPatient, authorization.ActionWrite), s.LinkPatientPolicy)
		api.DELETE("/patients/:id/policy", s.requireAction(authorization.ObjectPatient, authorization.ActionWrite), s.UnlinkPatientPolicy)

		api.POST("/policies", s.requireAction(authorization.ObjectInsurance, authorization.ActionWrite), s.CreatePolicy)
		api.GET("/policies", s.requireAction(authorization.ObjectInsurance, authorization.ActionRead), s.ListPolicies)
		api.GET("/policies/:id", s.requireAction(authorization.ObjectInsurance, authorization.ActionRead), s.GetPolicy)
		api.PATCH("/policies/:id", s.requireAction(authorization.ObjectInsurance, authorization.ActionWrite), s.UpdatePolicy)
		api.PUT("/policies/:id/rules", s.requireAction(authorization.ObjectInsurance, authorization.ActionWrite), s.UpsertCoverageRule)
		api.GET("/policies/:id/rules", s.requireAction(authorization.ObjectInsurance, authorization.ActionRead), s.ListCoverageRules)

		api.POST("/appointments", s.requireAction(authorization.ObjectAppointment, authorization.ActionWrite), s.BookAppointment)
		api.GET("/appointments", s.requireAction(authorization.ObjectAppointment, authorization.ActionRead), s.ListAppointments)
		api.GET("/appointments/:id", s.requireAction(authorization.ObjectAppointment, authorization.ActionRead), s.GetAppointment)
		api.PUT("/appointments/:id/reschedule", s.requireAction(authorization.ObjectAppointment, authorization.ActionWrite), s.RescheduleAppointment)
		api.PUT("/appointments/:id/complete", s.requireAction(authorization.ObjectAppointment, authorization.ActionWrite), s.CompleteAppointment)
		api.PUT("/appointments/:id/cancel", s.requireAction(authorization.ObjectAppointment, authorization.ActionWrite), s.CancelAppointment)

		api.POST("/invoices", s.requireAction(authorization.ObjectInvoice, authorization.ActionWrite), s.CreateInvoice)
		api.GET("/invoices", s.requireAction(authorization.ObjectInvoice, authorization.ActionRead), s.ListInvoices)
		api.GET("/invoices/:id", s.requireAction(authorization.ObjectInvoice, authorization.ActionRead), s.GetInvoice)
		api.GET("/invoices/:id/explanation", s.requireAction(authorization.ObjectInvoice, authorization.ActionRead), s.ExplainInvoice)
		api.GET("/invoices/:id/pdf", s.requireAction(authorization.ObjectInvoice, authorization.ActionRead), s.RenderInvoicePDF)
		api.POST("/invoices/:id/line-items", s.requireAction(authorization.ObjectInvoice, authorization.ActionWrite), s.AddInvoiceLineItem)
		api.DELETE("/invoices/:id/line-items/:item_id", s.requireAction(authorization.ObjectInvoice, authorization.ActionWrite), s.RemoveInvoiceLineItem)
		api.POST("/invoices/:id/payments", s.requireAction(authorization.ObjectInvoice, authorization.ActionInvoicePay), s.RecordInvoicePayment)
		api.POST("/invoices/:id/exonerate", s.requireAction(authorization.ObjectInvoice, authorization.ActionInvoiceExonerate), s.ExonerateInvoice)
		api.PUT("/invoices/:id/cancel", s.requireAction(authorization.ObjectInvoice, authorization.ActionInvoiceCancel), s.CancelInvoice)
		api.PUT("/invoices/:id/mark-overdue", s.requireAction(authorization.ObjectInvoice, authorization.ActionWrite), s.MarkInvoiceOverdue)
		api.PUT("/invoices/:id/refresh-coverage", s.requireAction(authorization.ObjectInvoice, authorization.ActionWrite), s.RefreshInvoiceCoverage)

		api.GET("/audit", s.requireAction(authorization.ObjectAudit, authorization.ActionRead), s.ListAuditLogs)
		api.GET("/audit/export", s.requireAction(authorization.ObjectAudit, authorization.ActionAuditExport), s.ExportAuditLogs)
	}
}

// RunHTTP starts the HTTP listener and wires graceful shutdown into the fx
// lifecycle.
func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx := ctx
			if cfg.Server.ShutdownTimeout > 0 {
				var cancel context.CancelFunc
				shutdownCtx, cancel = context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
				defer cancel()
			}
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server, engine *gin.Engine) {
		s.RegisterAPIRoutes(engine)
	}),
	fx.Invoke(RunHTTP),
)
