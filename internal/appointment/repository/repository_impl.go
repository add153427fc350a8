package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	appointmentdomain "github.com/kronusitsolutions/kronusmed/internal/appointment/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/option"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() appointmentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, appt *appointmentdomain.Appointment) error {
	return db.WithContext(ctx).Create(appt).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*appointmentdomain.Appointment, error) {
	var appt appointmentdomain.Appointment
	err := db.WithContext(ctx).Raw(
		`SELECT id, clinic_id, patient_id, doctor_id, service_id, status,
		 starts_at, ends_at, notes, created_at, updated_at
		 FROM appointments WHERE clinic_id = ? AND id = ?`,
		clinicID,
		id,
	).Scan(&appt).Error
	if err != nil {
		return nil, err
	}
	if appt.ID == 0 {
		return nil, nil
	}
	return &appt, nil
}

func (r *repo) CountOverlapping(ctx context.Context, db *gorm.DB, clinicID, doctorID snowflake.ID, startsAt, endsAt time.Time, excludeID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM appointments
		 WHERE clinic_id = ? AND doctor_id = ? AND status = ?
		   AND starts_at < ? AND ends_at > ?
		   AND id <> ?`,
		clinicID,
		doctorID,
		appointmentdomain.AppointmentStatusScheduled,
		endsAt,
		startsAt,
		excludeID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, appt *appointmentdomain.Appointment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE appointments
		 SET status = ?, starts_at = ?, ends_at = ?, notes = ?, updated_at = ?
		 WHERE clinic_id = ? AND id = ?`,
		appt.Status,
		appt.StartsAt,
		appt.EndsAt,
		appt.Notes,
		appt.UpdatedAt,
		appt.ClinicID,
		appt.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, filter appointmentdomain.ListFilter, page pagination.Pagination) ([]*appointmentdomain.Appointment, error) {
	var items []*appointmentdomain.Appointment

	query := db.WithContext(ctx).
		Model(&appointmentdomain.Appointment{}).
		Where("clinic_id = ?", clinicID)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.DoctorID != nil {
		query = query.Where("doctor_id = ?", *filter.DoctorID)
	}
	if filter.PatientID != nil {
		query = query.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.From != nil {
		query = query.Where("starts_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("starts_at < ?", *filter.To)
	}

	query = option.ApplyPagination(page).Apply(query)
	if page.PageToken != "" || page.PageSize > 0 {
		query = query.Order("created_at desc, id desc")
	} else {
		query = query.Order("starts_at ASC")
	}

	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
