package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	patientdomain "github.com/kronusitsolutions/kronusmed/internal/patient/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/option"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() patientdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *patientdomain.Patient) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*patientdomain.Patient, error) {
	var p patientdomain.Patient
	err := db.WithContext(ctx).
		Model(&patientdomain.Patient{}).
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

func (r *repo) FindByDocument(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, documentID string) (*patientdomain.Patient, error) {
	var p patientdomain.Patient
	err := db.WithContext(ctx).
		Model(&patientdomain.Patient{}).
		Where("clinic_id = ? AND document_id = ?", clinicID, documentID).
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

func (r *repo) List(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, filter patientdomain.ListFilter, page pagination.Pagination) ([]*patientdomain.Patient, error) {
	var items []*patientdomain.Patient

	query := db.WithContext(ctx).
		Model(&patientdomain.Patient{}).
		Where("clinic_id = ?", clinicID)

	if filter.Search != "" {
		needle := "%" + filter.Search + "%"
		query = query.Where("first_name LIKE ? OR last_name LIKE ? OR document_id LIKE ?", needle, needle, needle)
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	query = option.ApplyPagination(page).Apply(query)
	if page.PageToken != "" || page.PageSize > 0 {
		query = query.Order("created_at desc, id desc")
	} else {
		query = query.Order("last_name ASC, first_name ASC")
	}

	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, p *patientdomain.Patient) error {
	return db.WithContext(ctx).Exec(
		`UPDATE patients
		 SET first_name = ?, last_name = ?, birth_date = ?, phone = ?, email = ?,
		     policy_id = ?, active = ?, updated_at = ?
		 WHERE clinic_id = ? AND id = ?`,
		p.FirstName,
		p.LastName,
		p.BirthDate,
		p.Phone,
		p.Email,
		p.PolicyID,
		p.Active,
		p.UpdatedAt,
		p.ClinicID,
		p.ID,
	).Error
}
