package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	"github.com/kronusitsolutions/kronusmed/internal/clock"
	"github.com/kronusitsolutions/kronusmed/internal/config"
	"github.com/kronusitsolutions/kronusmed/internal/coverage"
	insurancedomain "github.com/kronusitsolutions/kronusmed/internal/insurance/domain"
	"github.com/kronusitsolutions/kronusmed/internal/invoice/domain"
	patientdomain "github.com/kronusitsolutions/kronusmed/internal/patient/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Config    config.Config
	Clock     clock.Clock
	Repo      domain.Repository
	Catalog   catalogdomain.Repository
	Patients  patientdomain.Repository
	Insurance insurancedomain.InsuranceService
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	catalog   catalogdomain.Repository
	patients  patientdomain.Repository
	insurance insurancedomain.InsuranceService
	numPrefix string
}

func New(p Params) domain.LedgerService {
	prefix := strings.TrimSpace(p.Config.Billing.InvoiceNumberPrefix)
	if prefix == "" {
		prefix = "INV"
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		catalog:   p.Catalog,
		patients:  p.Patients,
		insurance: p.Insurance,
		numPrefix: prefix,
	}
}

const maxNumberAttempts = 5

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}
	if len(req.LineItems) == 0 {
		return nil, domain.ErrNoLineItems
	}

	patientID, err := snowflake.ParseString(strings.TrimSpace(req.PatientID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	patient, err := s.patients.FindByID(ctx, s.db, clinicID, patientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, domain.ErrPatientNotFound
	}

	var doctorID *snowflake.ID
	if trimmed := strings.TrimSpace(req.DoctorID); trimmed != "" {
		parsed, err := snowflake.ParseString(trimmed)
		if err != nil {
			return nil, domain.ErrInvalidID
		}
		doctorID = &parsed
	}

	lines, items, err := s.buildLineItems(ctx, clinicID, req.LineItems)
	if err != nil {
		return nil, err
	}

	// Coverage is resolved outside the write transaction; the snapshot is a
	// cached computation result, so a slightly stale rule read is
	// acceptable, while a stale balance never is.
	percents, err := s.insurance.ResolveCoverageLenient(ctx, patient.PolicyID, serviceIDsOf(lines))
	if err != nil {
		return nil, err
	}
	breakdown, err := coverage.Calculate(lines, percents)
	if err != nil {
		return nil, err
	}
	snapshot, err := json.Marshal(breakdown)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	inv := &domain.Invoice{
		ID:                 s.genID.Generate(),
		ClinicID:           clinicID,
		PatientID:          patientID,
		DoctorID:           doctorID,
		PolicyID:           patient.PolicyID,
		Status:             domain.InvoiceStatusPending,
		TotalAmountCents:   breakdown.TotalBaseCents,
		PaidAmountCents:    0,
		PendingAmountCents: breakdown.TotalBaseCents,
		DueDate:            req.DueDate,
		InsuranceSnapshot:  datatypes.JSON(snapshot),
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for i := range items {
		items[i].InvoiceID = inv.ID
	}

	// The unique index on (clinic_id, invoice_number) is the real
	// uniqueness guarantee; the max+1 read is only a starting guess, and a
	// duplicate key from a concurrent creator regenerates against a fresh
	// read.
	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		seq, err := s.repo.MaxInvoiceSequence(ctx, s.db, clinicID, s.numPrefix)
		if err != nil {
			return nil, err
		}
		inv.InvoiceNumber = formatInvoiceNumber(s.numPrefix, seq+1)

		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.InsertInvoice(ctx, tx, inv); err != nil {
				return err
			}
			return s.repo.InsertLineItems(ctx, tx, items)
		})
		if txErr == nil {
			return s.expand(ctx, inv)
		}
		if !isDuplicateKey(txErr) {
			return nil, txErr
		}
		lastErr = txErr
	}

	s.log.Error("invoice number regeneration exhausted",
		zap.Stringer("clinic_id", clinicID),
		zap.Error(lastErr),
	)
	return nil, domain.ErrNumberExhausted
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	inv, err := s.repo.FindByID(ctx, s.db, clinicID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	return s.expand(ctx, inv)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidClinic
	}

	filter, err := buildListFilter(req)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize < 0 {
		pageSize = 0
	} else if pageSize == 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, clinicID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	var pageInfo *pagination.PageInfo
	if pageSize > 0 {
		pageInfo = pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.Invoice) string {
			token, err := pagination.EncodeCursor(pagination.Cursor{
				ID:        item.ID.String(),
				CreatedAt: item.CreatedAt.Format(time.RFC3339),
			})
			if err != nil {
				return ""
			}
			return token
		})
		if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
			items = items[:pageSize]
		}
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		resp = append(resp, toResponse(item))
	}

	out := domain.ListResponse{Invoices: resp}
	if pageInfo != nil {
		out.PageInfo = *pageInfo
	}
	return out, nil
}

// AddLineItem appends a billed service to a pending invoice and resets the
// pending balance to the recomputed total. Paid is necessarily zero here:
// no state that has accepted money still allows line edits.
func (s *Service) AddLineItem(ctx context.Context, req domain.AddLineItemRequest) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	serviceID, err := snowflake.ParseString(strings.TrimSpace(req.ServiceID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	if req.Quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	svc, err := s.catalog.FindByID(ctx, s.db, clinicID, serviceID)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, domain.ErrServiceNotFound
	}
	if !svc.Active {
		return nil, domain.ErrServiceInactive
	}

	var inv *domain.Invoice
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err = s.repo.FindByID(ctx, tx, clinicID, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if inv.Status != domain.InvoiceStatusPending {
			return domain.ErrInvalidState
		}

		now := s.clock.Now(ctx)
		item := &domain.InvoiceLineItem{
			ID:              s.genID.Generate(),
			ClinicID:        clinicID,
			InvoiceID:       inv.ID,
			ServiceID:       svc.ID,
			Description:     svc.Name,
			Quantity:        req.Quantity,
			UnitPriceCents:  svc.UnitPriceCents,
			TotalPriceCents: int64(req.Quantity) * svc.UnitPriceCents,
			CreatedAt:       now,
		}
		if err := s.repo.InsertLineItem(ctx, tx, item); err != nil {
			return err
		}
		return s.applyLineTotals(ctx, tx, inv, now)
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.expand(ctx, inv)
}

func (s *Service) RemoveLineItem(ctx context.Context, invoiceID, itemID string) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	invID, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	lineID, err := snowflake.ParseString(strings.TrimSpace(itemID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	var inv *domain.Invoice
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err = s.repo.FindByID(ctx, tx, clinicID, invID)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if inv.Status != domain.InvoiceStatusPending {
			return domain.ErrInvalidState
		}

		item, err := s.repo.FindLineItem(ctx, tx, clinicID, invID, lineID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrLineItemNotFound
		}

		count, err := s.repo.CountLineItems(ctx, tx, clinicID, invID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return domain.ErrLastLineItem
		}

		if err := s.repo.DeleteLineItem(ctx, tx, clinicID, invID, lineID); err != nil {
			return err
		}
		return s.applyLineTotals(ctx, tx, inv, s.clock.Now(ctx))
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.expand(ctx, inv)
}

// RecordPayment applies a payment and the resulting status transition
// atomically. The version predicate on the invoice update means two payments
// racing on the same balance cannot both validate against it: the loser's
// transaction rolls back, payment row included.
func (s *Service) RecordPayment(ctx context.Context, req domain.RecordPaymentRequest) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	if req.AmountCents <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var inv *domain.Invoice
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err = s.repo.FindByID(ctx, tx, clinicID, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if inv.Status.Terminal() {
			return domain.ErrInvalidState
		}
		if req.AmountCents > inv.PendingAmountCents {
			return domain.ErrOverpayment
		}

		now := s.clock.Now(ctx)
		payment := &domain.Payment{
			ID:          s.genID.Generate(),
			ClinicID:    clinicID,
			InvoiceID:   inv.ID,
			AmountCents: req.AmountCents,
			Method:      req.Method,
			Notes:       req.Notes,
			Reference:   ulid.Make().String(),
			ReceivedAt:  now,
			CreatedAt:   now,
		}
		if err := s.repo.InsertPayment(ctx, tx, payment); err != nil {
			return err
		}

		expected := inv.Version
		inv.PaidAmountCents += req.AmountCents
		inv.PendingAmountCents = inv.TotalAmountCents - inv.PaidAmountCents
		if inv.PendingAmountCents == 0 {
			inv.Status = domain.InvoiceStatusPaid
		} else {
			inv.Status = domain.InvoiceStatusPartial
		}
		inv.UpdatedAt = now

		won, err := s.repo.UpdateInvoiceState(ctx, tx, inv, expected)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrConcurrencyConflict
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.expand(ctx, inv)
}

// Exonerate writes off the outstanding balance in a single transaction:
// exoneration record and status flip commit together or not at all. The
// forgiven amount is the pending balance at this moment, so partial payments
// already collected stay collected.
func (s *Service) Exonerate(ctx context.Context, req domain.ExonerateRequest) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, domain.ErrMissingReason
	}
	authorizedBy := strings.TrimSpace(req.AuthorizedBy)
	if authorizedBy == "" {
		authorizedBy = clinicctx.ActorFromContext(ctx)
	}
	if authorizedBy == "" {
		return nil, domain.ErrMissingAuthorizer
	}

	var inv *domain.Invoice
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err = s.repo.FindByID(ctx, tx, clinicID, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if inv.Status == domain.InvoiceStatusExonerated {
			return domain.ErrAlreadyExonerated
		}
		if inv.Status.Terminal() {
			return domain.ErrInvalidState
		}

		existing, err := s.repo.FindExoneration(ctx, tx, clinicID, inv.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyExonerated
		}

		now := s.clock.Now(ctx)
		ex := &domain.Exoneration{
			ID:                    s.genID.Generate(),
			ClinicID:              clinicID,
			InvoiceID:             inv.ID,
			OriginalAmountCents:   inv.TotalAmountCents,
			ExoneratedAmountCents: inv.PendingAmountCents,
			Reason:                reason,
			AuthorizedBy:          authorizedBy,
			CreatedAt:             now,
		}
		if err := s.repo.InsertExoneration(ctx, tx, ex); err != nil {
			if isDuplicateKey(err) {
				return domain.ErrAlreadyExonerated
			}
			return err
		}

		expected := inv.Version
		inv.Status = domain.InvoiceStatusExonerated
		inv.UpdatedAt = now
		won, err := s.repo.UpdateInvoiceState(ctx, tx, inv, expected)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrConcurrencyConflict
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.expand(ctx, inv)
}

func (s *Service) Cancel(ctx context.Context, invoiceID string) (*domain.Response, error) {
	return s.transition(ctx, invoiceID, func(inv *domain.Invoice) error {
		if inv.Status.Terminal() {
			return domain.ErrInvalidState
		}
		inv.Status = domain.InvoiceStatusCancelled
		return nil
	})
}

func (s *Service) MarkOverdue(ctx context.Context, invoiceID string) (*domain.Response, error) {
	return s.transition(ctx, invoiceID, func(inv *domain.Invoice) error {
		if inv.Status.Terminal() {
			return domain.ErrInvalidState
		}
		if inv.DueDate == nil || s.clock.Now(ctx).Before(*inv.DueDate) {
			return domain.ErrInvalidState
		}
		inv.Overdue = true
		return nil
	})
}

func (s *Service) RefreshCoverage(ctx context.Context, invoiceID string) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	invID, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	inv, err := s.repo.FindByID(ctx, s.db, clinicID, invID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if inv.Status != domain.InvoiceStatusPending {
		return nil, domain.ErrInvalidState
	}

	items, err := s.repo.FindLineItems(ctx, s.db, clinicID, inv.ID)
	if err != nil {
		return nil, err
	}
	lines := make([]coverage.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, coverage.Line{
			ServiceID:      item.ServiceID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	percents, err := s.insurance.ResolveCoverageLenient(ctx, inv.PolicyID, serviceIDsOf(lines))
	if err != nil {
		return nil, err
	}
	breakdown, err := coverage.Calculate(lines, percents)
	if err != nil {
		return nil, err
	}
	snapshot, err := json.Marshal(breakdown)
	if err != nil {
		return nil, err
	}

	expected := inv.Version
	inv.InsuranceSnapshot = datatypes.JSON(snapshot)
	inv.UpdatedAt = s.clock.Now(ctx)
	won, err := s.repo.UpdateInvoiceState(ctx, s.db, inv, expected)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, domain.ErrConcurrencyConflict
	}
	return s.expand(ctx, inv)
}

func (s *Service) transition(ctx context.Context, invoiceID string, mutate func(*domain.Invoice) error) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	invID, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	var inv *domain.Invoice
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err = s.repo.FindByID(ctx, tx, clinicID, invID)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}

		expected := inv.Version
		if err := mutate(inv); err != nil {
			return err
		}
		inv.UpdatedAt = s.clock.Now(ctx)

		won, err := s.repo.UpdateInvoiceState(ctx, tx, inv, expected)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrConcurrencyConflict
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.expand(ctx, inv)
}

// applyLineTotals recomputes the invoice total from its line items and resets
// the pending balance to it. Callers hold a pending invoice, so paid is 0.
func (s *Service) applyLineTotals(ctx context.Context, tx *gorm.DB, inv *domain.Invoice, now time.Time) error {
	total, err := s.repo.SumLineItems(ctx, tx, inv.ClinicID, inv.ID)
	if err != nil {
		return err
	}

	expected := inv.Version
	inv.TotalAmountCents = total
	inv.PendingAmountCents = total - inv.PaidAmountCents
	inv.UpdatedAt = now

	won, err := s.repo.UpdateInvoiceState(ctx, tx, inv, expected)
	if err != nil {
		return err
	}
	if !won {
		return domain.ErrConcurrencyConflict
	}
	return nil
}

func (s *Service) buildLineItems(ctx context.Context, clinicID snowflake.ID, inputs []domain.LineItemInput) ([]coverage.Line, []domain.InvoiceLineItem, error) {
	serviceIDs := make([]snowflake.ID, 0, len(inputs))
	for _, input := range inputs {
		if input.Quantity < 1 {
			return nil, nil, domain.ErrInvalidQuantity
		}
		id, err := snowflake.ParseString(strings.TrimSpace(input.ServiceID))
		if err != nil {
			return nil, nil, domain.ErrInvalidID
		}
		serviceIDs = append(serviceIDs, id)
	}

	services, err := s.catalog.FindByIDs(ctx, s.db, clinicID, serviceIDs)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[snowflake.ID]*catalogdomain.Service, len(services))
	for _, svc := range services {
		byID[svc.ID] = svc
	}

	now := s.clock.Now(ctx)
	lines := make([]coverage.Line, 0, len(inputs))
	items := make([]domain.InvoiceLineItem, 0, len(inputs))
	for i, input := range inputs {
		svc := byID[serviceIDs[i]]
		if svc == nil {
			return nil, nil, domain.ErrServiceNotFound
		}
		if !svc.Active {
			return nil, nil, domain.ErrServiceInactive
		}
		lines = append(lines, coverage.Line{
			ServiceID:      svc.ID,
			Quantity:       input.Quantity,
			UnitPriceCents: svc.UnitPriceCents,
		})
		items = append(items, domain.InvoiceLineItem{
			ID:              s.genID.Generate(),
			ClinicID:        clinicID,
			ServiceID:       svc.ID,
			Description:     svc.Name,
			Quantity:        input.Quantity,
			UnitPriceCents:  svc.UnitPriceCents,
			TotalPriceCents: int64(input.Quantity) * svc.UnitPriceCents,
			CreatedAt:       now,
		})
	}
	return lines, items, nil
}

func (s *Service) expand(ctx context.Context, inv *domain.Invoice) (*domain.Response, error) {
	resp := toResponse(inv)

	items, err := s.repo.FindLineItems(ctx, s.db, inv.ClinicID, inv.ID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		resp.LineItems = append(resp.LineItems, domain.LineItemResponse{
			ID:              item.ID.String(),
			ServiceID:       item.ServiceID.String(),
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			TotalPriceCents: item.TotalPriceCents,
		})
	}

	payments, err := s.repo.FindPayments(ctx, s.db, inv.ClinicID, inv.ID)
	if err != nil {
		return nil, err
	}
	for _, payment := range payments {
		resp.Payments = append(resp.Payments, domain.PaymentResponse{
			ID:          payment.ID.String(),
			AmountCents: payment.AmountCents,
			Method:      payment.Method,
			Notes:       payment.Notes,
			Reference:   payment.Reference,
			ReceivedAt:  payment.ReceivedAt,
		})
	}

	ex, err := s.repo.FindExoneration(ctx, s.db, inv.ClinicID, inv.ID)
	if err != nil {
		return nil, err
	}
	if ex != nil {
		resp.Exoneration = &domain.ExonerationResponse{
			ID:                    ex.ID.String(),
			OriginalAmountCents:   ex.OriginalAmountCents,
			ExoneratedAmountCents: ex.ExoneratedAmountCents,
			Reason:                ex.Reason,
			AuthorizedBy:          ex.AuthorizedBy,
			CreatedAt:             ex.CreatedAt,
		}
	}

	if len(inv.InsuranceSnapshot) > 0 {
		var breakdown coverage.Breakdown
		if err := json.Unmarshal(inv.InsuranceSnapshot, &breakdown); err == nil {
			resp.InsuranceSnapshot = &breakdown
		}
	}

	return &resp, nil
}

func toResponse(inv *domain.Invoice) domain.Response {
	resp := domain.Response{
		ID:                 inv.ID.String(),
		ClinicID:           inv.ClinicID.String(),
		InvoiceNumber:      inv.InvoiceNumber,
		PatientID:          inv.PatientID.String(),
		Status:             inv.Status,
		TotalAmountCents:   inv.TotalAmountCents,
		PaidAmountCents:    inv.PaidAmountCents,
		PendingAmountCents: inv.PendingAmountCents,
		DueDate:            inv.DueDate,
		Overdue:            inv.Overdue,
		CreatedAt:          inv.CreatedAt,
		UpdatedAt:          inv.UpdatedAt,
	}
	if inv.DoctorID != nil {
		id := inv.DoctorID.String()
		resp.DoctorID = &id
	}
	if inv.PolicyID != nil {
		id := inv.PolicyID.String()
		resp.PolicyID = &id
	}
	return resp
}

func buildListFilter(req domain.ListRequest) (domain.ListFilter, error) {
	var filter domain.ListFilter

	if status := strings.TrimSpace(req.Status); status != "" {
		parsed := domain.InvoiceStatus(status)
		switch parsed {
		case domain.InvoiceStatusPending, domain.InvoiceStatusPartial,
			domain.InvoiceStatusPaid, domain.InvoiceStatusExonerated,
			domain.InvoiceStatusCancelled:
			filter.Status = &parsed
		default:
			return domain.ListFilter{}, domain.ErrInvalidFilter
		}
	}
	if raw := strings.TrimSpace(req.PatientID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListFilter{}, domain.ErrInvalidFilter
		}
		filter.PatientID = &id
	}
	if raw := strings.TrimSpace(req.DoctorID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListFilter{}, domain.ErrInvalidFilter
		}
		filter.DoctorID = &id
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return domain.ListFilter{}, domain.ErrInvalidFilter
	}
	filter.Overdue = req.Overdue
	filter.From = req.From
	filter.To = req.To
	return filter, nil
}

func serviceIDsOf(lines []coverage.Line) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(lines))
	seen := make(map[snowflake.ID]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ServiceID]; ok {
			continue
		}
		seen[line.ServiceID] = struct{}{}
		ids = append(ids, line.ServiceID)
	}
	return ids
}

func formatInvoiceNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%06d", prefix, seq)
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
