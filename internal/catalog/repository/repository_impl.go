package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/option"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, svc *catalogdomain.Service) error {
	return db.WithContext(ctx).Create(svc).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*catalogdomain.Service, error) {
	var svc catalogdomain.Service
	err := db.WithContext(ctx).Raw(
		`SELECT id, clinic_id, code, name, category, unit_price_cents, active,
		 idempotency_key, created_at, updated_at
		 FROM services WHERE clinic_id = ? AND id = ?`,
		clinicID,
		id,
	).Scan(&svc).Error
	if err != nil {
		return nil, err
	}
	if svc.ID == 0 {
		return nil, nil
	}
	return &svc, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, ids []snowflake.ID) ([]*catalogdomain.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []*catalogdomain.Service
	err := db.WithContext(ctx).
		Model(&catalogdomain.Service{}).
		Where("clinic_id = ? AND id IN ?", clinicID, ids).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, key string) (*catalogdomain.Service, error) {
	var svc catalogdomain.Service
	err := db.WithContext(ctx).Raw(
		`SELECT id, clinic_id, code, name, category, unit_price_cents, active,
		 idempotency_key, created_at, updated_at
		 FROM services WHERE clinic_id = ? AND idempotency_key = ? LIMIT 1`,
		clinicID,
		key,
	).Scan(&svc).Error
	if err != nil {
		return nil, err
	}
	if svc.ID == 0 {
		return nil, nil
	}
	return &svc, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, filter catalogdomain.ListFilter, page pagination.Pagination) ([]*catalogdomain.Service, error) {
	var items []*catalogdomain.Service

	query := db.WithContext(ctx).
		Model(&catalogdomain.Service{}).
		Where("clinic_id = ?", clinicID)

	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Name != "" {
		query = query.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	query = option.ApplyPagination(page).Apply(query)
	if page.PageToken != "" || page.PageSize > 0 {
		query = query.Order("created_at desc, id desc")
	} else {
		query = query.Order("created_at ASC")
	}

	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, svc *catalogdomain.Service) error {
	return db.WithContext(ctx).Exec(
		`UPDATE services
		 SET name = ?, category = ?, unit_price_cents = ?, active = ?, updated_at = ?
		 WHERE clinic_id = ? AND id = ?`,
		svc.Name,
		svc.Category,
		svc.UnitPriceCents,
		svc.Active,
		svc.UpdatedAt,
		svc.ClinicID,
		svc.ID,
	).Error
}
