package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.CatalogService {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, clinicID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			resp := s.toResponse(existing)
			return &resp, nil
		}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.UnitPriceCents < 0 {
		return nil, domain.ErrInvalidPrice
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = slug.Make(name)
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	svc := &domain.Service{
		ID:             s.genID.Generate(),
		ClinicID:       clinicID,
		Code:           code,
		Name:           name,
		Category:       strings.TrimSpace(req.Category),
		UnitPriceCents: req.UnitPriceCents,
		Active:         active,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if idempotencyKey != "" {
		svc.IdempotencyKey = &idempotencyKey
	}

	if err := s.repo.Insert(ctx, s.db, svc); err != nil {
		if idempotencyKey != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.repo.FindByIdempotencyKey(ctx, s.db, clinicID, idempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				resp := s.toResponse(existing)
				return &resp, nil
			}
		}
		return nil, err
	}

	resp := s.toResponse(svc)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	serviceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	svc, err := s.repo.FindByID(ctx, s.db, clinicID, serviceID)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, domain.ErrNotFound
	}

	resp := s.toResponse(svc)
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
		Category: strings.TrimSpace(req.Category),
		Name:     strings.TrimSpace(req.Name),
		Active:   req.Active,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	var pageInfo *pagination.PageInfo
	if pageSize > 0 {
		pageInfo = pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.Service) string {
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
		resp = append(resp, s.toResponse(item))
	}

	out := domain.ListResponse{Services: resp}
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

	serviceID, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	svc, err := s.repo.FindByID(ctx, s.db, clinicID, serviceID)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		svc.Name = name
	}
	if req.Category != nil {
		svc.Category = strings.TrimSpace(*req.Category)
	}
	if req.UnitPriceCents != nil {
		if *req.UnitPriceCents < 0 {
			return nil, domain.ErrInvalidPrice
		}
		svc.UnitPriceCents = *req.UnitPriceCents
	}
	if req.Active != nil {
		svc.Active = *req.Active
	}
	svc.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, svc); err != nil {
		return nil, err
	}

	resp := s.toResponse(svc)
	return &resp, nil
}

// Archive deactivates a service without deleting it; issued invoices keep the
// copied price, and the service stops appearing in coverage resolution.
func (s *Service) Archive(ctx context.Context, id string) (*domain.Response, error) {
	inactive := false
	return s.Update(ctx, domain.UpdateRequest{ID: id, Active: &inactive})
}

func (s *Service) toResponse(svc *domain.Service) domain.Response {
	return domain.Response{
		ID:             svc.ID.String(),
		ClinicID:       svc.ClinicID.String(),
		Code:           svc.Code,
		Name:           svc.Name,
		Category:       svc.Category,
		UnitPriceCents: svc.UnitPriceCents,
		Active:         svc.Active,
		CreatedAt:      svc.CreatedAt,
		UpdatedAt:      svc.UpdatedAt,
	}
}
