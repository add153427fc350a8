package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	insurancedomain "github.com/kronusitsolutions/kronusmed/internal/insurance/domain"
	"github.com/kronusitsolutions/kronusmed/internal/patient/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Insurance insurancedomain.InsuranceService
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	genID     *snowflake.Node
	insurance insurancedomain.InsuranceService
}

func New(p Params) domain.PatientService {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("patient.service"),
		repo:      p.Repo,
		genID:     p.GenID,
		insurance: p.Insurance,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	documentID := strings.TrimSpace(req.DocumentID)
	if documentID == "" {
		return nil, domain.ErrInvalidDocument
	}
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	if firstName == "" || lastName == "" {
		return nil, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	patient := &domain.Patient{
		ID:         s.genID.Generate(),
		ClinicID:   clinicID,
		DocumentID: documentID,
		FirstName:  firstName,
		LastName:   lastName,
		BirthDate:  req.BirthDate,
		Phone:      req.Phone,
		Email:      req.Email,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Insert(ctx, s.db, patient); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrDuplicateDocument
		}
		return nil, err
	}

	resp := toResponse(patient)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	patientID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	patient, err := s.repo.FindByID(ctx, s.db, clinicID, patientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, domain.ErrNotFound
	}

	resp := toResponse(patient)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidClinic
	}

	pageSize := req.PageSize
	if pageSize < 0 {
		pageSize = 0
	} else if pageSize == 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, clinicID, domain.ListFilter{
		Search: strings.TrimSpace(req.Search),
		Active: req.Active,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	var pageInfo *pagination.PageInfo
	if pageSize > 0 {
		pageInfo = pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.Patient) string {
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

	out := domain.ListResponse{Patients: resp}
	if pageInfo != nil {
		out.PageInfo = *pageInfo
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	patientID, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	patient, err := s.repo.FindByID(ctx, s.db, clinicID, patientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, domain.ErrNotFound
	}

	if req.FirstName != nil {
		name := strings.TrimSpace(*req.FirstName)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		patient.FirstName = name
	}
	if req.LastName != nil {
		name := strings.TrimSpace(*req.LastName)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		patient.LastName = name
	}
	if req.BirthDate != nil {
		patient.BirthDate = req.BirthDate
	}
	if req.Phone != nil {
		patient.Phone = req.Phone
	}
	if req.Email != nil {
		patient.Email = req.Email
	}
	if req.Active != nil {
		patient.Active = *req.Active
	}
	patient.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, patient); err != nil {
		return nil, err
	}

	resp := toResponse(patient)
	return &resp, nil
}

// LinkPolicy attaches an insurance policy to the patient, replacing any
// existing link. The policy must exist and belong to the same clinic.
func (s *Service) LinkPolicy(ctx context.Context, patientID, policyID string) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	pid, err := snowflake.ParseString(strings.TrimSpace(patientID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	policy, err := s.insurance.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	linkedPolicyID, err := snowflake.ParseString(policy.ID)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	patient, err := s.repo.FindByID(ctx, s.db, clinicID, pid)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, domain.ErrNotFound
	}

	patient.PolicyID = &linkedPolicyID
	patient.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, patient); err != nil {
		return nil, err
	}

	resp := toResponse(patient)
	return &resp, nil
}

func (s *Service) UnlinkPolicy(ctx context.Context, patientID string) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	pid, err := snowflake.ParseString(strings.TrimSpace(patientID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	patient, err := s.repo.FindByID(ctx, s.db, clinicID, pid)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, domain.ErrNotFound
	}

	patient.PolicyID = nil
	patient.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, patient); err != nil {
		return nil, err
	}

	resp := toResponse(patient)
	return &resp, nil
}

func toResponse(p *domain.Patient) domain.Response {
	resp := domain.Response{
		ID:         p.ID.String(),
		ClinicID:   p.ClinicID.String(),
		DocumentID: p.DocumentID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		BirthDate:  p.BirthDate,
		Phone:      p.Phone,
		Email:      p.Email,
		Active:     p.Active,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.PolicyID != nil {
		policyID := p.PolicyID.String()
		resp.PolicyID = &policyID
	}
	return resp
}
