package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/kronusitsolutions/kronusmed/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() auditdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *auditdomain.AuditLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, filter auditdomain.ListFilter) ([]auditdomain.AuditLog, error) {
	query := db.WithContext(ctx).
		Model(&auditdomain.AuditLog{}).
		Where("clinic_id = ?", clinicID)

	if len(filter.Actions) > 0 {
		query = query.Where("action IN ?", filter.Actions)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var logs []auditdomain.AuditLog
	if err := query.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
