package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	insurancedomain "github.com/kronusitsolutions/kronusmed/internal/insurance/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/option"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() insurancedomain.Repository {
	return &repo{}
}

func (r *repo) InsertPolicy(ctx context.Context, db *gorm.DB, p *insurancedomain.InsurancePolicy) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindPolicyByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*insurancedomain.InsurancePolicy, error) {
	var p insurancedomain.InsurancePolicy
	err := db.WithContext(ctx).
		Model(&insurancedomain.InsurancePolicy{}).
		Where("clinic_id = ? AND id = ?", clinicID, id).
		Limit(1).
		Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListPolicies(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, page pagination.Pagination) ([]*insurancedomain.InsurancePolicy, error) {
	var items []*insurancedomain.InsurancePolicy

	query := db.WithContext(ctx).
		Model(&insurancedomain.InsurancePolicy{}).
		Where("clinic_id = ?", clinicID)

	query = option.ApplyPagination(page).Apply(query)
	if page.PageToken != "" || page.PageSize > 0 {
		query = query.Order("created_at desc, id desc")
	} else {
		query = query.Order("name ASC")
	}

	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdatePolicy(ctx context.Context, db *gorm.DB, p *insurancedomain.InsurancePolicy) error {
	return db.WithContext(ctx).Exec(
		`UPDATE insurance_policies
		 SET name = ?, active = ?, updated_at = ?
		 WHERE clinic_id = ? AND id = ?`,
		p.Name,
		p.Active,
		p.UpdatedAt,
		p.ClinicID,
		p.ID,
	).Error
}

func (r *repo) FindRule(ctx context.Context, db *gorm.DB, clinicID, policyID, serviceID snowflake.ID) (*insurancedomain.CoverageRule, error) {
	var rule insurancedomain.CoverageRule
	err := db.WithContext(ctx).
		Model(&insurancedomain.CoverageRule{}).
		Where("clinic_id = ? AND policy_id = ? AND service_id = ?", clinicID, policyID, serviceID).
		Limit(1).
		Find(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, nil
	}
	return &rule, nil
}

func (r *repo) InsertRule(ctx context.Context, db *gorm.DB, rule *insurancedomain.CoverageRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) UpdateRule(ctx context.Context, db *gorm.DB, rule *insurancedomain.CoverageRule) error {
	return db.WithContext(ctx).Exec(
		`UPDATE coverage_rules
		 SET percent = ?, active = ?, updated_at = ?
		 WHERE clinic_id = ? AND id = ?`,
		rule.Percent,
		rule.Active,
		rule.UpdatedAt,
		rule.ClinicID,
		rule.ID,
	).Error
}

func (r *repo) ListRules(ctx context.Context, db *gorm.DB, clinicID, policyID snowflake.ID) ([]*insurancedomain.CoverageRule, error) {
	var items []*insurancedomain.CoverageRule
	err := db.WithContext(ctx).
		Model(&insurancedomain.CoverageRule{}).
		Where("clinic_id = ? AND policy_id = ?", clinicID, policyID).
		Order("service_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindActiveRules(ctx context.Context, db *gorm.DB, clinicID, policyID snowflake.ID, serviceIDs []snowflake.ID) ([]*insurancedomain.CoverageRule, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	var items []*insurancedomain.CoverageRule
	err := db.WithContext(ctx).
		Model(&insurancedomain.CoverageRule{}).
		Where("clinic_id = ? AND policy_id = ? AND active = ? AND service_id IN ?", clinicID, policyID, true, serviceIDs).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
