package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/kronusitsolutions/kronusmed/internal/appointment/domain"
	"github.com/kronusitsolutions/kronusmed/internal/appointment/repository"
	catalogdomain "github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	catalogrepository "github.com/kronusitsolutions/kronusmed/internal/catalog/repository"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	"github.com/kronusitsolutions/kronusmed/internal/clock"
	patientdomain "github.com/kronusitsolutions/kronusmed/internal/patient/domain"
	patientrepository "github.com/kronusitsolutions/kronusmed/internal/patient/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type apptHarness struct {
	svc       domain.AppointmentService
	genID     *snowflake.Node
	ctx       context.Context
	clinicID  snowflake.ID
	patientID snowflake.ID
	doctorID  snowflake.ID
}

func newApptHarness(t *testing.T) *apptHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Appointment{},
		&patientdomain.Patient{},
		&catalogdomain.Service{},
	))

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &apptHarness{
		genID:    genID,
		clinicID: genID.Generate(),
		doctorID: genID.Generate(),
	}
	h.ctx = clinicctx.WithClinicID(context.Background(), h.clinicID)
	h.svc = New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    genID,
		Clock:    clock.SystemClock{},
		Repo:     repository.Provide(),
		Patients: patientrepository.Provide(),
		Catalog:  catalogrepository.Provide(),
	})

	now := time.Now().UTC()
	h.patientID = genID.Generate()
	require.NoError(t, db.Create(&patientdomain.Patient{
		ID: h.patientID, ClinicID: h.clinicID, DocumentID: "001-0000001-1",
		FirstName: "Luis", LastName: "Pena", Active: true,
		CreatedAt: now, UpdatedAt: now,
	}).Error)

	return h
}

func (h *apptHarness) book(t *testing.T, start, end time.Time) *domain.Response {
	t.Helper()
	resp, err := h.svc.Book(h.ctx, domain.BookRequest{
		PatientID: h.patientID.String(),
		DoctorID:  h.doctorID.String(),
		StartsAt:  start,
		EndsAt:    end,
	})
	require.NoError(t, err)
	return resp
}

func TestBook_RejectsOverlap(t *testing.T) {
	h := newApptHarness(t)
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	h.book(t, base, base.Add(30*time.Minute))

	// Any intersection with the booked window loses.
	_, err := h.svc.Book(h.ctx, domain.BookRequest{
		PatientID: h.patientID.String(),
		DoctorID:  h.doctorID.String(),
		StartsAt:  base.Add(15 * time.Minute),
		EndsAt:    base.Add(45 * time.Minute),
	})
	require.ErrorIs(t, err, domain.ErrSlotTaken)

	// Back-to-back is fine: [09:30, 10:00) does not intersect [09:00, 09:30).
	h.book(t, base.Add(30*time.Minute), base.Add(60*time.Minute))

	// A different doctor shares the wall-clock slot freely.
	otherDoctor := h.genID.Generate()
	_, err = h.svc.Book(h.ctx, domain.BookRequest{
		PatientID: h.patientID.String(),
		DoctorID:  otherDoctor.String(),
		StartsAt:  base,
		EndsAt:    base.Add(30 * time.Minute),
	})
	require.NoError(t, err)
}

func TestBook_Validation(t *testing.T) {
	h := newApptHarness(t)
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	_, err := h.svc.Book(h.ctx, domain.BookRequest{
		PatientID: h.genID.Generate().String(),
		DoctorID:  h.doctorID.String(),
		StartsAt:  base,
		EndsAt:    base.Add(30 * time.Minute),
	})
	require.ErrorIs(t, err, domain.ErrPatientNotFound)

	_, err = h.svc.Book(h.ctx, domain.BookRequest{
		PatientID: h.patientID.String(),
		DoctorID:  h.doctorID.String(),
		StartsAt:  base,
		EndsAt:    base, // empty window
	})
	require.ErrorIs(t, err, domain.ErrInvalidSlot)
}

func TestLifecycle(t *testing.T) {
	h := newApptHarness(t)
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	appt := h.book(t, base, base.Add(30*time.Minute))

	done, err := h.svc.Complete(h.ctx, appt.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AppointmentStatusCompleted, done.Status)

	_, err = h.svc.Cancel(h.ctx, appt.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = h.svc.Complete(h.ctx, appt.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	// A completed appointment frees the doctor's slot.
	h.book(t, base, base.Add(30*time.Minute))
}

func TestReschedule(t *testing.T) {
	h := newApptHarness(t)
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	first := h.book(t, base, base.Add(30*time.Minute))
	second := h.book(t, base.Add(time.Hour), base.Add(90*time.Minute))

	// Moving onto another appointment's window is rejected.
	_, err := h.svc.Reschedule(h.ctx, domain.RescheduleRequest{
		ID:       second.ID,
		StartsAt: base.Add(10 * time.Minute),
		EndsAt:   base.Add(40 * time.Minute),
	})
	require.ErrorIs(t, err, domain.ErrSlotTaken)

	// Shifting within its own window must not collide with itself.
	moved, err := h.svc.Reschedule(h.ctx, domain.RescheduleRequest{
		ID:       first.ID,
		StartsAt: base.Add(5 * time.Minute),
		EndsAt:   base.Add(35 * time.Minute),
	})
	require.NoError(t, err)
	require.True(t, moved.StartsAt.Equal(base.Add(5*time.Minute)))
}

func TestList_Filters(t *testing.T) {
	h := newApptHarness(t)
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	h.book(t, base, base.Add(30*time.Minute))
	second := h.book(t, base.Add(time.Hour), base.Add(90*time.Minute))
	_, err := h.svc.Cancel(h.ctx, second.ID)
	require.NoError(t, err)

	out, err := h.svc.List(h.ctx, domain.ListRequest{Status: string(domain.AppointmentStatusScheduled)})
	require.NoError(t, err)
	require.Len(t, out.Appointments, 1)

	from := base.Add(45 * time.Minute)
	out, err = h.svc.List(h.ctx, domain.ListRequest{From: &from})
	require.NoError(t, err)
	require.Len(t, out.Appointments, 1)
	require.Equal(t, second.ID, out.Appointments[0].ID)

	_, err = h.svc.List(h.ctx, domain.ListRequest{Status: "nonsense"})
	require.ErrorIs(t, err, domain.ErrInvalidFilter)
}
