package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	catalogrepository "github.com/kronusitsolutions/kronusmed/internal/catalog/repository"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	"github.com/kronusitsolutions/kronusmed/internal/clock"
	"github.com/kronusitsolutions/kronusmed/internal/config"
	insurancedomain "github.com/kronusitsolutions/kronusmed/internal/insurance/domain"
	insurancerepository "github.com/kronusitsolutions/kronusmed/internal/insurance/repository"
	insuranceservice "github.com/kronusitsolutions/kronusmed/internal/insurance/service"
	"github.com/kronusitsolutions/kronusmed/internal/invoice/domain"
	invoicerepository "github.com/kronusitsolutions/kronusmed/internal/invoice/repository"
	patientdomain "github.com/kronusitsolutions/kronusmed/internal/patient/domain"
	patientrepository "github.com/kronusitsolutions/kronusmed/internal/patient/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ledgerHarness struct {
	db       *gorm.DB
	svc      domain.LedgerService
	repo     domain.Repository
	params   Params
	genID    *snowflake.Node
	clinicID snowflake.ID
	ctx      context.Context

	patientID snowflake.ID
	policyID  snowflake.ID
	consultID snowflake.ID // $50.00, covered 80%
	labID     snowflake.ID // $100.00, no rule
}

func newLedgerHarness(t *testing.T) *ledgerHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Service{},
		&patientdomain.Patient{},
		&insurancedomain.InsurancePolicy{},
		&insurancedomain.CoverageRule{},
		&domain.Invoice{},
		&domain.InvoiceLineItem{},
		&domain.Payment{},
		&domain.Exoneration{},
	))

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()
	cfg := config.Config{Billing: config.BillingConfig{
		InvoiceNumberPrefix: "INV",
		CoverageCacheTTL:    time.Minute,
	}}

	catalogRepo := catalogrepository.Provide()
	patientRepo := patientrepository.Provide()
	invoiceRepo := invoicerepository.Provide()
	insuranceSvc := insuranceservice.New(insuranceservice.Params{
		DB:      db,
		Log:     logger,
		GenID:   genID,
		Config:  cfg,
		Repo:    insurancerepository.Provide(),
		Catalog: catalogRepo,
	})

	h := &ledgerHarness{
		db:       db,
		repo:     invoiceRepo,
		genID:    genID,
		clinicID: genID.Generate(),
	}
	h.ctx = clinicctx.WithActor(clinicctx.WithClinicID(context.Background(), h.clinicID), "dr.house")

	h.params = Params{
		DB:        db,
		Log:       logger,
		GenID:     genID,
		Config:    cfg,
		Clock:     clock.SystemClock{},
		Repo:      invoiceRepo,
		Catalog:   catalogRepo,
		Patients:  patientRepo,
		Insurance: insuranceSvc,
	}
	h.svc = New(h.params)

	now := time.Now().UTC()
	h.policyID = genID.Generate()
	require.NoError(t, db.Create(&insurancedomain.InsurancePolicy{
		ID: h.policyID, ClinicID: h.clinicID, Name: "Acme Health", Active: true,
		CreatedAt: now, UpdatedAt: now,
	}).Error)

	h.consultID = genID.Generate()
	require.NoError(t, db.Create(&catalogdomain.Service{
		ID: h.consultID, ClinicID: h.clinicID, Code: "consult", Name: "Consultation",
		UnitPriceCents: 5000, Active: true, CreatedAt: now, UpdatedAt: now,
	}).Error)
	h.labID = genID.Generate()
	require.NoError(t, db.Create(&catalogdomain.Service{
		ID: h.labID, ClinicID: h.clinicID, Code: "lab-panel", Name: "Lab Panel",
		UnitPriceCents: 10000, Active: true, CreatedAt: now, UpdatedAt: now,
	}).Error)

	require.NoError(t, db.Create(&insurancedomain.CoverageRule{
		ID: genID.Generate(), ClinicID: h.clinicID, PolicyID: h.policyID,
		ServiceID: h.consultID, Percent: 80, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}).Error)

	h.patientID = genID.Generate()
	require.NoError(t, db.Create(&patientdomain.Patient{
		ID: h.patientID, ClinicID: h.clinicID, DocumentID: "001-1234567-8",
		FirstName: "Ana", LastName: "Reyes", PolicyID: &h.policyID, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}).Error)

	return h
}

func (h *ledgerHarness) createInvoice(t *testing.T, lines ...domain.LineItemInput) *domain.Response {
	t.Helper()
	resp, err := h.svc.Create(h.ctx, domain.CreateRequest{
		PatientID: h.patientID.String(),
		LineItems: lines,
	})
	require.NoError(t, err)
	return resp
}

func TestCreate_CoverageSnapshot(t *testing.T) {
	h := newLedgerHarness(t)

	resp := h.createInvoice(t, domain.LineItemInput{ServiceID: h.consultID.String(), Quantity: 2})

	require.Equal(t, "INV-000001", resp.InvoiceNumber)
	require.Equal(t, domain.InvoiceStatusPending, resp.Status)
	require.Equal(t, int64(10000), resp.TotalAmountCents)
	require.Equal(t, int64(0), resp.PaidAmountCents)
	require.Equal(t, int64(10000), resp.PendingAmountCents)
	require.Len(t, resp.LineItems, 1)
	require.Equal(t, int64(10000), resp.LineItems[0].TotalPriceCents)

	require.NotNil(t, resp.InsuranceSnapshot)
	require.Equal(t, int64(8000), resp.InsuranceSnapshot.TotalInsuranceCents)
	require.Equal(t, int64(2000), resp.InsuranceSnapshot.TotalPatientCents)
	require.Equal(t, resp.InsuranceSnapshot.TotalInsuranceCents+resp.InsuranceSnapshot.TotalPatientCents, resp.TotalAmountCents)

	second := h.createInvoice(t, domain.LineItemInput{ServiceID: h.labID.String(), Quantity: 1})
	require.Equal(t, "INV-000002", second.InvoiceNumber)
}

func TestCreate_NoRuleMeansZeroCoverage(t *testing.T) {
	h := newLedgerHarness(t)

	resp := h.createInvoice(t, domain.LineItemInput{ServiceID: h.labID.String(), Quantity: 1})

	require.NotNil(t, resp.InsuranceSnapshot)
	require.Equal(t, int64(0), resp.InsuranceSnapshot.TotalInsuranceCents)
	require.Equal(t, int64(10000), resp.InsuranceSnapshot.TotalPatientCents)
}

func TestCreate_Validation(t *testing.T) {
	h := newLedgerHarness(t)

	inactive := h.genID.Generate()
	now := time.Now().UTC()
	require.NoError(t, h.db.Create(&catalogdomain.Service{
		ID: inactive, ClinicID: h.clinicID, Code: "retired", Name: "Retired",
		UnitPriceCents: 100, Active: false, CreatedAt: now, UpdatedAt: now,
	}).Error)
	// gorm omits zero-value fields carrying a default tag on insert, so force
	// the inactive flag with an explicit update.
	require.NoError(t, h.db.Model(&catalogdomain.Service{}).
		Where("id = ?", inactive).Update("active", false).Error)

	tests := []struct {
		name    string
		req     domain.CreateRequest
		wantErr error
	}{
		{
			name:    "no line items",
			req:     domain.CreateRequest{PatientID: h.patientID.String()},
			wantErr: domain.ErrNoLineItems,
		},
		{
			name: "unknown patient",
			req: domain.CreateRequest{
				PatientID: h.genID.Generate().String(),
				LineItems: []domain.LineItemInput{{ServiceID: h.consultID.String(), Quantity: 1}},
			},
			wantErr: domain.ErrPatientNotFound,
		},
		{
			name: "zero quantity",
			req: domain.CreateRequest{
				PatientID: h.patientID.String(),
				LineItems: []domain.LineItemInput{{ServiceID: h.consultID.String(), Quantity: 0}},
			},
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name: "unknown service",
			req: domain.CreateRequest{
				PatientID: h.patientID.String(),
				LineItems: []domain.LineItemInput{{ServiceID: h.genID.Generate().String(), Quantity: 1}},
			},
			wantErr: domain.ErrServiceNotFound,
		},
		{
			name: "inactive service",
			req: domain.CreateRequest{
				PatientID: h.patientID.String(),
				LineItems: []domain.LineItemInput{{ServiceID: inactive.String(), Quantity: 1}},
			},
			wantErr: domain.ErrServiceInactive,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Create(h.ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRecordPayment_PartialThenPaid(t *testing.T) {
	h := newLedgerHarness(t)

	inv := h.createInvoice(t,
		domain.LineItemInput{ServiceID: h.consultID.String(), Quantity: 4}, // $200
		domain.LineItemInput{ServiceID: h.labID.String(), Quantity: 1},     // $100
	)
	require.Equal(t, int64(30000), inv.TotalAmountCents)

	resp, err := h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{
		InvoiceID: inv.ID, AmountCents: 10000,
	})
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusPartial, resp.Status)
	require.Equal(t, int64(10000), resp.PaidAmountCents)
	require.Equal(t, int64(20000), resp.PendingAmountCents)

	resp, err = h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{
		InvoiceID: inv.ID, AmountCents: 20000,
	})
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusPaid, resp.Status)
	require.Equal(t, int64(0), resp.PendingAmountCents)
	require.Len(t, resp.Payments, 2)
	require.Equal(t, resp.TotalAmountCents, resp.PaidAmountCents+resp.PendingAmountCents)

	// No further payments once the balance is settled.
	_, err = h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: inv.ID, AmountCents: 1})
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRecordPayment_Validation(t *testing.T) {
	h := newLedgerHarness(t)
	inv := h.createInvoice(t, domain.LineItemInput{ServiceID: h.consultID.String(), Quantity: 1})

	_, err := h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: inv.ID, AmountCents: 0})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: inv.ID, AmountCents: -500})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: inv.ID, AmountCents: 5001})
	require.ErrorIs(t, err, domain.ErrOverpayment)

	// Rejected payments leave no trace.
	var count int64
	require.NoError(t, h.db.Model(&domain.Payment{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestExonerate_ForgivesPendingOnly(t *testing.T) {
	h := newLedgerHarness(t)
	inv := h.createInvoice(t, domain.LineItemInput{ServiceID: h.labID.String(), Quantity: 1}) // $100

	_, err := h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: inv.ID, AmountCents: 5000})
	require.NoError(t, err)

	resp, err := h.svc.Exonerate(h.ctx, domain.ExonerateRequest{
		InvoiceID: inv.ID,
		Reason:    "social services referral",
	})
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusExonerated, resp.Status)
	require.NotNil(t, resp.Exoneration)
	require.Equal(t, int64(10000), resp.Exoneration.OriginalAmountCents)
	require.Equal(t, int64(5000), resp.Exoneration.ExoneratedAmountCents)
	require.Equal(t, "dr.house", resp.Exoneration.AuthorizedBy)

	// The collected half stays collected.
	require.Equal(t, int64(5000), resp.PaidAmountCents)
	require.Len(t, resp.Payments, 1)

	_, err = h.svc.Exonerate(h.ctx, domain.ExonerateRequest{InvoiceID: inv.ID, Reason: "again"})
	require.ErrorIs(t, err, domain.ErrAlreadyExonerated)
}

func TestExonerate_Validation(t *testing.T) {
	h := newLedgerHarness(t)
	inv := h.createInvoice(t, domain.LineItemInput{ServiceID: h.consultID.String(), Quantity: 1})

	_, err := h.svc.Exonerate(h.ctx, domain.ExonerateRequest{InvoiceID: inv.ID})
	require.ErrorIs(t, err, domain.ErrMissingReason)

	ctxNoActor := clinicctx.WithClinicID(context.Background(), h.clinicID)
	_, err = h.svc.Exonerate(ctxNoActor, domain.ExonerateRequest{InvoiceID: inv.ID, Reason: "charity"})
	require.ErrorIs(t, err, domain.ErrMissingAuthorizer)

	_, err = h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: inv.ID, AmountCents: 5000})
	require.NoError(t, err)
	_, err = h.svc.Exonerate(h.ctx, domain.ExonerateRequest{InvoiceID: inv.ID, Reason: "charity"})
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestLineItems_PendingOnlyEditing(t *testing.T) {
	h := newLedgerHarness(t)
	inv := h.createInvoice(t, domain.LineItemInput{ServiceID: h.consultID.String(), Quantity: 1})

	resp, err := h.svc.AddLineItem(h.ctx, domain.AddLineItemRequest{
		InvoiceID: inv.ID, ServiceID: h.labID.String(), Quantity: 2,
	})
	require.NoError(t, err)
	require.Len(t, resp.LineItems, 2)
	require.Equal(t, int64(25000), resp.TotalAmountCents)
	require.Equal(t, int64(25000), resp.PendingAmountCents)

	var labItem string
	for _, item := range resp.LineItems {
		if item.ServiceID == h.labID.String() {
			labItem = item.ID
		}
	}
	require.NotEmpty(t, labItem)

	resp, err = h.svc.RemoveLineItem(h.ctx, inv.ID, labItem)
	require.NoError(t, err)
	require.Len(t, resp.LineItems, 1)
	require.Equal(t, int64(5000), resp.TotalAmountCents)

	// An invoice never goes below one line.
	_, err = h.svc.RemoveLineItem(h.ctx, inv.ID, resp.LineItems[0].ID)
	require.ErrorIs(t, err, domain.ErrLastLineItem)

	_, err = h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: inv.ID, AmountCents: 1000})
	require.NoError(t, err)
	_, err = h.svc.AddLineItem(h.ctx, domain.AddLineItemRequest{
		InvoiceID: inv.ID, ServiceID: h.labID.String(), Quantity: 1,
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCancelAndOverdue(t *testing.T) {
	h := newLedgerHarness(t)

	inv := h.createInvoice(t, domain.LineItemInput{ServiceID: h.consultID.String(), Quantity: 1})
	resp, err := h.svc.Cancel(h.ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusCancelled, resp.Status)

	_, err = h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: inv.ID, AmountCents: 100})
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = h.svc.Cancel(h.ctx, inv.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	past := time.Now().UTC().Add(-48 * time.Hour)
	dueResp, err := h.svc.Create(h.ctx, domain.CreateRequest{
		PatientID: h.patientID.String(),
		DueDate:   &past,
		LineItems: []domain.LineItemInput{{ServiceID: h.consultID.String(), Quantity: 1}},
	})
	require.NoError(t, err)

	marked, err := h.svc.MarkOverdue(h.ctx, dueResp.ID)
	require.NoError(t, err)
	require.True(t, marked.Overdue)
	require.Equal(t, domain.InvoiceStatusPending, marked.Status)

	future := time.Now().UTC().Add(48 * time.Hour)
	notDue, err := h.svc.Create(h.ctx, domain.CreateRequest{
		PatientID: h.patientID.String(),
		DueDate:   &future,
		LineItems: []domain.LineItemInput{{ServiceID: h.consultID.String(), Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = h.svc.MarkOverdue(h.ctx, notDue.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRefreshCoverage_PendingOnly(t *testing.T) {
	h := newLedgerHarness(t)
	inv := h.createInvoice(t, domain.LineItemInput{ServiceID: h.labID.String(), Quantity: 1})
	require.Equal(t, int64(0), inv.InsuranceSnapshot.TotalInsuranceCents)

	now := time.Now().UTC()
	require.NoError(t, h.db.Create(&insurancedomain.CoverageRule{
		ID: h.genID.Generate(), ClinicID: h.clinicID, PolicyID: h.policyID,
		ServiceID: h.labID, Percent: 50, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}).Error)

	resp, err := h.svc.RefreshCoverage(h.ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5000), resp.InsuranceSnapshot.TotalInsuranceCents)
	require.Equal(t, int64(5000), resp.InsuranceSnapshot.TotalPatientCents)

	_, err = h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: inv.ID, AmountCents: 100})
	require.NoError(t, err)
	_, err = h.svc.RefreshCoverage(h.ctx, inv.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestUpdateInvoiceState_StaleVersionLoses(t *testing.T) {
	h := newLedgerHarness(t)
	created := h.createInvoice(t, domain.LineItemInput{ServiceID: h.consultID.String(), Quantity: 1})

	invoiceID, err := snowflake.ParseString(created.ID)
	require.NoError(t, err)
	inv, err := h.repo.FindByID(h.ctx, h.db, h.clinicID, invoiceID)
	require.NoError(t, err)

	stale := *inv
	won, err := h.repo.UpdateInvoiceState(h.ctx, h.db, inv, inv.Version)
	require.NoError(t, err)
	require.True(t, won)

	// A writer holding the pre-update version must not clobber the row.
	won, err = h.repo.UpdateInvoiceState(h.ctx, h.db, &stale, stale.Version)
	require.NoError(t, err)
	require.False(t, won)
}

// staleReadRepo hands back a captured snapshot of one invoice instead of the
// current row, standing in for a reader that loaded the invoice before a
// competing payment landed.
type staleReadRepo struct {
	domain.Repository
	stale *domain.Invoice
}

func (r *staleReadRepo) FindByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*domain.Invoice, error) {
	if r.stale != nil && r.stale.ID == id {
		snapshot := *r.stale
		return &snapshot, nil
	}
	return r.Repository.FindByID(ctx, db, clinicID, id)
}

func TestRecordPayment_StaleWriterRollsBack(t *testing.T) {
	h := newLedgerHarness(t)
	created := h.createInvoice(t, domain.LineItemInput{ServiceID: h.consultID.String(), Quantity: 1}) // $50

	invoiceID, err := snowflake.ParseString(created.ID)
	require.NoError(t, err)
	snapshot, err := h.repo.FindByID(h.ctx, h.db, h.clinicID, invoiceID)
	require.NoError(t, err)

	_, err = h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: created.ID, AmountCents: 1000})
	require.NoError(t, err)

	staleParams := h.params
	staleParams.Repo = &staleReadRepo{Repository: h.repo, stale: snapshot}
	staleSvc := New(staleParams)

	// Validates against the pre-payment balance, then loses the version
	// check. The whole transaction rolls back, payment row included.
	_, err = staleSvc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: created.ID, AmountCents: 4500})
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	var count int64
	require.NoError(t, h.db.Model(&domain.Payment{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	resp, err := h.svc.Get(h.ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusPartial, resp.Status)
	require.Equal(t, int64(1000), resp.PaidAmountCents)
	require.Equal(t, int64(4000), resp.PendingAmountCents)
}

func TestList_FilterAndIsolation(t *testing.T) {
	h := newLedgerHarness(t)

	first := h.createInvoice(t, domain.LineItemInput{ServiceID: h.consultID.String(), Quantity: 1})
	_, err := h.svc.RecordPayment(h.ctx, domain.RecordPaymentRequest{InvoiceID: first.ID, AmountCents: 5000})
	require.NoError(t, err)
	h.createInvoice(t, domain.LineItemInput{ServiceID: h.labID.String(), Quantity: 1})

	out, err := h.svc.List(h.ctx, domain.ListRequest{Status: string(domain.InvoiceStatusPaid)})
	require.NoError(t, err)
	require.Len(t, out.Invoices, 1)
	require.Equal(t, first.ID, out.Invoices[0].ID)

	_, err = h.svc.List(h.ctx, domain.ListRequest{Status: "garbage"})
	require.ErrorIs(t, err, domain.ErrInvalidFilter)

	otherCtx := clinicctx.WithClinicID(context.Background(), h.genID.Generate())
	out, err = h.svc.List(otherCtx, domain.ListRequest{})
	require.NoError(t, err)
	require.Empty(t, out.Invoices)

	_, err = h.svc.Get(otherCtx, first.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExplainInvoice(t *testing.T) {
	h := newLedgerHarness(t)
	inv := h.createInvoice(t,
		domain.LineItemInput{ServiceID: h.consultID.String(), Quantity: 2},
		domain.LineItemInput{ServiceID: h.labID.String(), Quantity: 1},
	)

	explainer := NewExplanationService(h.db)
	out, err := explainer.ExplainInvoice(h.ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.InvoiceNumber, out.InvoiceNumber)
	require.Equal(t, int64(20000), out.TotalCents)
	require.Equal(t, int64(8000), out.InsuranceCents)
	require.Equal(t, int64(12000), out.PatientCents)
	require.Len(t, out.Breakdown, 2)
	for _, line := range out.Breakdown {
		require.NotNil(t, line.Coverage)
		require.Equal(t, line.TotalPriceCents, line.Coverage.InsuranceCents+line.Coverage.PatientCents)
	}

	_, err = explainer.ExplainInvoice(h.ctx, h.genID.Generate().String())
	require.ErrorIs(t, err, domain.ErrNotFound)
}
