package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Category string
	Name     string
	Active   *bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, svc *Service) error
	FindByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*Service, error)
	FindByIDs(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, ids []snowflake.ID) ([]*Service, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, key string) (*Service, error)
	List(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Service, error)
	Update(ctx context.Context, db *gorm.DB, svc *Service) error
}
