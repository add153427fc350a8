package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/kronusitsolutions/kronusmed/internal/apikey/domain"
	"github.com/kronusitsolutions/kronusmed/internal/authorization"
	catalogdomain "github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	insurancedomain "github.com/kronusitsolutions/kronusmed/internal/insurance/domain"
	patientdomain "github.com/kronusitsolutions/kronusmed/internal/patient/domain"
	"gorm.io/gorm"
)

const (
	demoClinicID    int64 = 1
	demoAdminUserID int64 = 100
	demoPolicyName        = "Acme Health Basic"
)

// Options customizes the demo clinic seed.
type Options struct {
	// ClinicID overrides the clinic the seed targets. Defaults to 1.
	ClinicID int64
	// CreateAPIKey controls whether a development API key is issued.
	// Defaults to true when nil.
	CreateAPIKey *bool
}

// Result reports what the seed created. APIKeyPlaintext is only set when a
// key was issued in this run; it cannot be recovered later.
type Result struct {
	ClinicID        snowflake.ID
	APIKeyPlaintext string
}

// EnsureDemoClinic seeds a demo clinic with a small service catalog, an
// insurance policy with coverage rules, a patient linked to that policy, and
// an admin staff member. Every step is idempotent so the seed can run on
// each startup.
func EnsureDemoClinic(db *gorm.DB) (*Result, error) {
	return EnsureDemoClinicWithOptions(db, Options{})
}

// EnsureDemoClinicWithOptions seeds the demo clinic using provided overrides.
func EnsureDemoClinicWithOptions(db *gorm.DB, opts Options) (*Result, error) {
	if db == nil {
		return nil, errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}

	clinicID := snowflake.ID(demoClinicID)
	if opts.ClinicID != 0 {
		clinicID = snowflake.ID(opts.ClinicID)
	}

	result := &Result{ClinicID: clinicID}
	ctx := context.Background()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		services, err := ensureServices(ctx, tx, node, clinicID)
		if err != nil {
			return err
		}
		policy, err := ensurePolicy(ctx, tx, node, clinicID)
		if err != nil {
			return err
		}
		if err := ensureCoverageRules(ctx, tx, node, clinicID, policy.ID, services); err != nil {
			return err
		}
		if err := ensurePatient(ctx, tx, node, clinicID, policy.ID); err != nil {
			return err
		}
		if err := ensureAdminStaff(ctx, tx, node, clinicID); err != nil {
			return err
		}
		if shouldCreateAPIKey(opts.CreateAPIKey) {
			plaintext, err := ensureDevAPIKey(ctx, tx, node, clinicID)
			if err != nil {
				return err
			}
			result.APIKeyPlaintext = plaintext
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func shouldCreateAPIKey(flag *bool) bool {
	if flag == nil {
		return true
	}
	return *flag
}

type seedService struct {
	Code           string
	Name           string
	Category       string
	UnitPriceCents int64
	CoveragePct    int
}

var demoServices = []seedService{
	{"CONSULT-GEN", "General Consultation", "consultation", 5000, 80},
	{"CONSULT-SPEC", "Specialist Consultation", "consultation", 9000, 60},
	{"LAB-CBC", "Complete Blood Count", "laboratory", 3500, 100},
	{"XRAY-CHEST", "Chest X-Ray", "imaging", 12000, 50},
	{"PROC-SUTURE", "Wound Suturing", "procedure", 8000, 0},
}

func ensureServices(ctx context.Context, tx *gorm.DB, node *snowflake.Node, clinicID snowflake.ID) (map[string]catalogdomain.Service, error) {
	out := make(map[string]catalogdomain.Service, len(demoServices))
	for _, s := range demoServices {
		var existing catalogdomain.Service
		err := tx.WithContext(ctx).
			Where("clinic_id = ? AND code = ?", clinicID, s.Code).
			First(&existing).Error
		if err == nil {
			out[s.Code] = existing
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		now := time.Now().UTC()
		existing = catalogdomain.Service{
			ID:             node.Generate(),
			ClinicID:       clinicID,
			Code:           s.Code,
			Name:           s.Name,
			Category:       s.Category,
			UnitPriceCents: s.UnitPriceCents,
			Active:         true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.WithContext(ctx).Create(&existing).Error; err != nil {
			return nil, err
		}
		out[s.Code] = existing
	}
	return out, nil
}

func ensurePolicy(ctx context.Context, tx *gorm.DB, node *snowflake.Node, clinicID snowflake.ID) (*insurancedomain.InsurancePolicy, error) {
	var policy insurancedomain.InsurancePolicy
	err := tx.WithContext(ctx).
		Where("clinic_id = ? AND name = ?", clinicID, demoPolicyName).
		First(&policy).Error
	if err == nil {
		return &policy, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	now := time.Now().UTC()
	policy = insurancedomain.InsurancePolicy{
		ID:        node.Generate(),
		ClinicID:  clinicID,
		Name:      demoPolicyName,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&policy).Error; err != nil {
		return nil, err
	}
	return &policy, nil
}

func ensureCoverageRules(ctx context.Context, tx *gorm.DB, node *snowflake.Node, clinicID snowflake.ID, policyID snowflake.ID, services map[string]catalogdomain.Service) error {
	for _, s := range demoServices {
		if s.CoveragePct <= 0 {
			continue
		}
		svc, ok := services[s.Code]
		if !ok {
			return fmt.Errorf("seed service %s missing", s.Code)
		}
		now := time.Now().UTC()
		rule := insurancedomain.CoverageRule{
			ID:        node.Generate(),
			ClinicID:  clinicID,
			PolicyID:  policyID,
			ServiceID: svc.ID,
			Percent:   s.CoveragePct,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := tx.WithContext(ctx).Exec(`
			INSERT INTO coverage_rules (id, clinic_id, policy_id, service_id, percent, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (policy_id, service_id) DO NOTHING
		`, rule.ID, rule.ClinicID, rule.PolicyID, rule.ServiceID, rule.Percent, rule.Active, rule.CreatedAt, rule.UpdatedAt).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func ensurePatient(ctx context.Context, tx *gorm.DB, node *snowflake.Node, clinicID snowflake.ID, policyID snowflake.ID) error {
	const documentID = "DEMO-0001"

	var patient patientdomain.Patient
	err := tx.WithContext(ctx).
		Where("clinic_id = ? AND document_id = ?", clinicID, documentID).
		First(&patient).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	now := time.Now().UTC()
	birth := time.Date(1987, time.March, 14, 0, 0, 0, 0, time.UTC)
	phone := "+1-555-0134"
	email := "ana.reyes@example.com"
	patient = patientdomain.Patient{
		ID:         node.Generate(),
		ClinicID:   clinicID,
		DocumentID: documentID,
		FirstName:  "Ana",
		LastName:   "Reyes",
		BirthDate:  &birth,
		Phone:      &phone,
		Email:      &email,
		PolicyID:   &policyID,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return tx.WithContext(ctx).Create(&patient).Error
}

func ensureAdminStaff(ctx context.Context, tx *gorm.DB, node *snowflake.Node, clinicID snowflake.ID) error {
	userID := snowflake.ID(demoAdminUserID)

	var member authorization.StaffMember
	err := tx.WithContext(ctx).
		Where("clinic_id = ? AND user_id = ?", clinicID, userID).
		First(&member).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	now := time.Now().UTC()
	member = authorization.StaffMember{
		ID:          node.Generate(),
		ClinicID:    clinicID,
		UserID:      userID,
		Role:        authorization.RoleAdmin,
		DisplayName: "Clinic Admin",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return tx.WithContext(ctx).Create(&member).Error
}

func ensureDevAPIKey(ctx context.Context, tx *gorm.DB, node *snowflake.Node, clinicID snowflake.ID) (string, error) {
	const keyName = "development"

	var existing apikeydomain.APIKey
	err := tx.WithContext(ctx).
		Where("clinic_id = ? AND name = ?", clinicID, keyName).
		First(&existing).Error
	if err == nil {
		return "", nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	plaintext, prefix, err := apikeydomain.GenerateAPIKey()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	key := apikeydomain.APIKey{
		ID:        node.Generate(),
		ClinicID:  clinicID,
		Name:      keyName,
		Prefix:    prefix,
		KeyHash:   apikeydomain.HashAPIKey(plaintext),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&key).Error; err != nil {
		return "", err
	}
	return strings.TrimSpace(plaintext), nil
}
