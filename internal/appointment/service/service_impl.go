package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kronusitsolutions/kronusmed/internal/appointment/domain"
	catalogdomain "github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	"github.com/kronusitsolutions/kronusmed/internal/clock"
	patientdomain "github.com/kronusitsolutions/kronusmed/internal/patient/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Patients patientdomain.Repository
	Catalog  catalogdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	patients patientdomain.Repository
	catalog  catalogdomain.Repository
}

func New(p Params) domain.AppointmentService {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("appointment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		patients: p.Patients,
		catalog:  p.Catalog,
	}
}

func (s *Service) Book(ctx context.Context, req domain.BookRequest) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	patientID, err := snowflake.ParseString(strings.TrimSpace(req.PatientID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	doctorID, err := snowflake.ParseString(strings.TrimSpace(req.DoctorID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() || !req.EndsAt.After(req.StartsAt) {
		return nil, domain.ErrInvalidSlot
	}

	patient, err := s.patients.FindByID(ctx, s.db, clinicID, patientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, domain.ErrPatientNotFound
	}

	var serviceID *snowflake.ID
	if trimmed := strings.TrimSpace(req.ServiceID); trimmed != "" {
		parsed, err := snowflake.ParseString(trimmed)
		if err != nil {
			return nil, domain.ErrInvalidID
		}
		svc, err := s.catalog.FindByID(ctx, s.db, clinicID, parsed)
		if err != nil {
			return nil, err
		}
		if svc == nil {
			return nil, domain.ErrInvalidID
		}
		serviceID = &parsed
	}

	var appt *domain.Appointment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		overlaps, err := s.repo.CountOverlapping(ctx, tx, clinicID, doctorID, req.StartsAt, req.EndsAt, 0)
		if err != nil {
			return err
		}
		if overlaps > 0 {
			return domain.ErrSlotTaken
		}

		now := s.clock.Now(ctx)
		appt = &domain.Appointment{
			ID:        s.genID.Generate(),
			ClinicID:  clinicID,
			PatientID: patientID,
			DoctorID:  doctorID,
			ServiceID: serviceID,
			Status:    domain.AppointmentStatusScheduled,
			StartsAt:  req.StartsAt.UTC(),
			EndsAt:    req.EndsAt.UTC(),
			Notes:     req.Notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.repo.Insert(ctx, tx, appt)
	})
	if txErr != nil {
		return nil, txErr
	}

	resp := toResponse(appt)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}
	apptID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	appt, err := s.repo.FindByID(ctx, s.db, clinicID, apptID)
	if err != nil {
		return nil, err
	}
	if appt == nil {
		return nil, domain.ErrNotFound
	}
	resp := toResponse(appt)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidClinic
	}

	var filter domain.ListFilter
	if status := strings.TrimSpace(req.Status); status != "" {
		parsed := domain.AppointmentStatus(status)
		switch parsed {
		case domain.AppointmentStatusScheduled, domain.AppointmentStatusCompleted, domain.AppointmentStatusCancelled:
			filter.Status = &parsed
		default:
			return domain.ListResponse{}, domain.ErrInvalidFilter
		}
	}
	if raw := strings.TrimSpace(req.DoctorID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidFilter
		}
		filter.DoctorID = &id
	}
	if raw := strings.TrimSpace(req.PatientID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidFilter
		}
		filter.PatientID = &id
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return domain.ListResponse{}, domain.ErrInvalidFilter
	}
	filter.From = req.From
	filter.To = req.To

	pageSize := req.PageSize
	if pageSize < 0 {
		pageSize = 0
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
		pageInfo = pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.Appointment) string {
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
		resp = append(resp, toResponse(item))
	}
	out := domain.ListResponse{Appointments: resp}
	if pageInfo != nil {
		out.PageInfo = *pageInfo
	}
	return out, nil
}

func (s *Service) Reschedule(ctx context.Context, req domain.RescheduleRequest) (*domain.Response, error) {
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() || !req.EndsAt.After(req.StartsAt) {
		return nil, domain.ErrInvalidSlot
	}
	return s.transition(ctx, req.ID, func(ctx context.Context, tx *gorm.DB, appt *domain.Appointment) error {
		if appt.Status != domain.AppointmentStatusScheduled {
			return domain.ErrInvalidState
		}
		overlaps, err := s.repo.CountOverlapping(ctx, tx, appt.ClinicID, appt.DoctorID, req.StartsAt, req.EndsAt, appt.ID)
		if err != nil {
			return err
		}
		if overlaps > 0 {
			return domain.ErrSlotTaken
		}
		appt.StartsAt = req.StartsAt.UTC()
		appt.EndsAt = req.EndsAt.UTC()
		return nil
	})
}

func (s *Service) Complete(ctx context.Context, id string) (*domain.Response, error) {
	return s.transition(ctx, id, func(ctx context.Context, tx *gorm.DB, appt *domain.Appointment) error {
		if appt.Status != domain.AppointmentStatusScheduled {
			return domain.ErrInvalidState
		}
		appt.Status = domain.AppointmentStatusCompleted
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.Response, error) {
	return s.transition(ctx, id, func(ctx context.Context, tx *gorm.DB, appt *domain.Appointment) error {
		if appt.Status != domain.AppointmentStatusScheduled {
			return domain.ErrInvalidState
		}
		appt.Status = domain.AppointmentStatusCancelled
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id string, mutate func(context.Context, *gorm.DB, *domain.Appointment) error) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}
	apptID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	var appt *domain.Appointment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		appt, err = s.repo.FindByID(ctx, tx, clinicID, apptID)
		if err != nil {
			return err
		}
		if appt == nil {
			return domain.ErrNotFound
		}
		if err := mutate(ctx, tx, appt); err != nil {
			return err
		}
		appt.UpdatedAt = s.clock.Now(ctx)
		return s.repo.Update(ctx, tx, appt)
	})
	if txErr != nil {
		return nil, txErr
	}
	resp := toResponse(appt)
	return &resp, nil
}

func toResponse(appt *domain.Appointment) domain.Response {
	resp := domain.Response{
		ID:        appt.ID.String(),
		ClinicID:  appt.ClinicID.String(),
		PatientID: appt.PatientID.String(),
		DoctorID:  appt.DoctorID.String(),
		Status:    appt.Status,
		StartsAt:  appt.StartsAt,
		EndsAt:    appt.EndsAt,
		Notes:     appt.Notes,
		CreatedAt: appt.CreatedAt,
		UpdatedAt: appt.UpdatedAt,
	}
	if appt.ServiceID != nil {
		id := appt.ServiceID.String()
		resp.ServiceID = &id
	}
	return resp
}
