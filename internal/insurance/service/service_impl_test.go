package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	catalogrepository "github.com/kronusitsolutions/kronusmed/internal/catalog/repository"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	"github.com/kronusitsolutions/kronusmed/internal/config"
	"github.com/kronusitsolutions/kronusmed/internal/insurance/domain"
	insurancerepository "github.com/kronusitsolutions/kronusmed/internal/insurance/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type insuranceHarness struct {
	db       *gorm.DB
	svc      domain.InsuranceService
	genID    *snowflake.Node
	clinicID snowflake.ID
	ctx      context.Context

	consultID snowflake.ID // $50.00 catalog entry
	labID     snowflake.ID // $100.00 catalog entry
}

func newInsuranceHarness(t *testing.T) *insuranceHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Service{},
		&domain.InsurancePolicy{},
		&domain.CoverageRule{},
	))

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &insuranceHarness{
		db:       db,
		genID:    genID,
		clinicID: genID.Generate(),
	}
	h.ctx = clinicctx.WithClinicID(context.Background(), h.clinicID)
	h.svc = New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   genID,
		Config:  config.Config{Billing: config.BillingConfig{CoverageCacheTTL: time.Minute}},
		Repo:    insurancerepository.Provide(),
		Catalog: catalogrepository.Provide(),
	})

	now := time.Now().UTC()
	h.consultID = genID.Generate()
	require.NoError(t, db.Create(&catalogdomain.Service{
		ID: h.consultID, ClinicID: h.clinicID, Code: "consult", Name: "Consultation",
		UnitPriceCents: 5000, Active: true, CreatedAt: now, UpdatedAt: now,
	}).Error)
	h.labID = genID.Generate()
	require.NoError(t, db.Create(&catalogdomain.Service{
		ID: h.labID, ClinicID: h.clinicID, Code: "lab-panel", Name: "Lab Panel",
		UnitPriceCents: 10000, Active: true, CreatedAt: now, UpdatedAt: now,
	}).Error)

	return h
}

func (h *insuranceHarness) createPolicy(t *testing.T, name string) *domain.PolicyResponse {
	t.Helper()
	resp, err := h.svc.CreatePolicy(h.ctx, domain.CreatePolicyRequest{Name: name})
	require.NoError(t, err)
	return resp
}

func (h *insuranceHarness) policyID(t *testing.T, resp *domain.PolicyResponse) snowflake.ID {
	t.Helper()
	id, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)
	return id
}

func boolPtr(v bool) *bool { return &v }

func TestPolicyLifecycle(t *testing.T) {
	h := newInsuranceHarness(t)

	_, err := h.svc.CreatePolicy(h.ctx, domain.CreatePolicyRequest{Name: "   "})
	require.ErrorIs(t, err, domain.ErrInvalidName)

	created := h.createPolicy(t, "Acme Health")
	require.True(t, created.Active)

	got, err := h.svc.GetPolicy(h.ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme Health", got.Name)

	_, err = h.svc.GetPolicy(h.ctx, h.genID.Generate().String())
	require.ErrorIs(t, err, domain.ErrPolicyNotFound)
	_, err = h.svc.GetPolicy(h.ctx, "not-a-snowflake")
	require.ErrorIs(t, err, domain.ErrInvalidID)

	name := "Acme Health Plus"
	updated, err := h.svc.UpdatePolicy(h.ctx, domain.UpdatePolicyRequest{
		ID: created.ID, Name: &name, Active: boolPtr(false),
	})
	require.NoError(t, err)
	require.Equal(t, "Acme Health Plus", updated.Name)
	require.False(t, updated.Active)
}

func TestUpsertRule_UpdatesInPlace(t *testing.T) {
	h := newInsuranceHarness(t)
	policy := h.createPolicy(t, "Acme Health")

	first, err := h.svc.UpsertRule(h.ctx, domain.UpsertRuleRequest{
		PolicyID: policy.ID, ServiceID: h.consultID.String(), Percent: 80,
	})
	require.NoError(t, err)
	require.Equal(t, 80, first.Percent)

	// Same pair again: one row, same identity, new percent.
	second, err := h.svc.UpsertRule(h.ctx, domain.UpsertRuleRequest{
		PolicyID: policy.ID, ServiceID: h.consultID.String(), Percent: 50,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 50, second.Percent)

	var count int64
	require.NoError(t, h.db.Model(&domain.CoverageRule{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestUpsertRule_Validation(t *testing.T) {
	h := newInsuranceHarness(t)
	policy := h.createPolicy(t, "Acme Health")

	tests := []struct {
		name    string
		req     domain.UpsertRuleRequest
		wantErr error
	}{
		{
			name:    "percent below range",
			req:     domain.UpsertRuleRequest{PolicyID: policy.ID, ServiceID: h.consultID.String(), Percent: -1},
			wantErr: domain.ErrInvalidPercent,
		},
		{
			name:    "percent above range",
			req:     domain.UpsertRuleRequest{PolicyID: policy.ID, ServiceID: h.consultID.String(), Percent: 101},
			wantErr: domain.ErrInvalidPercent,
		},
		{
			name:    "unknown policy",
			req:     domain.UpsertRuleRequest{PolicyID: h.genID.Generate().String(), ServiceID: h.consultID.String(), Percent: 80},
			wantErr: domain.ErrPolicyNotFound,
		},
		{
			name:    "unknown service",
			req:     domain.UpsertRuleRequest{PolicyID: policy.ID, ServiceID: h.genID.Generate().String(), Percent: 80},
			wantErr: domain.ErrServiceNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.UpsertRule(h.ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// firstFindMissRepo reports the rule absent on the first lookup so the write
// path takes the insert branch even though the row already exists.
type firstFindMissRepo struct {
	domain.Repository
	missed bool
}

func (r *firstFindMissRepo) FindRule(ctx context.Context, db *gorm.DB, clinicID, policyID, serviceID snowflake.ID) (*domain.CoverageRule, error) {
	if !r.missed {
		r.missed = true
		return nil, nil
	}
	return r.Repository.FindRule(ctx, db, clinicID, policyID, serviceID)
}

func TestUpsertRule_LostInsertRaceFallsBackToUpdate(t *testing.T) {
	h := newInsuranceHarness(t)
	policy := h.createPolicy(t, "Acme Health")

	existing, err := h.svc.UpsertRule(h.ctx, domain.UpsertRuleRequest{
		PolicyID: policy.ID, ServiceID: h.consultID.String(), Percent: 80,
	})
	require.NoError(t, err)

	racing := New(Params{
		DB:      h.db,
		Log:     zap.NewNop(),
		GenID:   h.genID,
		Config:  config.Config{Billing: config.BillingConfig{CoverageCacheTTL: time.Minute}},
		Repo:    &firstFindMissRepo{Repository: insurancerepository.Provide()},
		Catalog: catalogrepository.Provide(),
	})

	// The insert hits the (policy, service) unique index and the winner's row
	// gets updated instead.
	resp, err := racing.UpsertRule(h.ctx, domain.UpsertRuleRequest{
		PolicyID: policy.ID, ServiceID: h.consultID.String(), Percent: 60,
	})
	require.NoError(t, err)
	require.Equal(t, existing.ID, resp.ID)
	require.Equal(t, 60, resp.Percent)

	var count int64
	require.NoError(t, h.db.Model(&domain.CoverageRule{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestResolveCoverage(t *testing.T) {
	h := newInsuranceHarness(t)
	policy := h.createPolicy(t, "Acme Health")
	policyID := h.policyID(t, policy)

	_, err := h.svc.UpsertRule(h.ctx, domain.UpsertRuleRequest{
		PolicyID: policy.ID, ServiceID: h.consultID.String(), Percent: 80,
	})
	require.NoError(t, err)

	t.Run("nil policy means zero coverage", func(t *testing.T) {
		percents, err := h.svc.ResolveCoverage(h.ctx, nil, []snowflake.ID{h.consultID, h.labID})
		require.NoError(t, err)
		require.Equal(t, 0, percents[h.consultID])
		require.Equal(t, 0, percents[h.labID])
	})

	t.Run("rule hit and no-rule default", func(t *testing.T) {
		percents, err := h.svc.ResolveCoverage(h.ctx, &policyID, []snowflake.ID{h.consultID, h.labID})
		require.NoError(t, err)
		require.Equal(t, 80, percents[h.consultID])
		require.Equal(t, 0, percents[h.labID])
	})

	t.Run("unknown policy is a hard error", func(t *testing.T) {
		missing := h.genID.Generate()
		_, err := h.svc.ResolveCoverage(h.ctx, &missing, []snowflake.ID{h.consultID})
		require.ErrorIs(t, err, domain.ErrPolicyNotFound)
	})

	t.Run("inactive policy is a hard error", func(t *testing.T) {
		dormant := h.createPolicy(t, "Dormant")
		_, err := h.svc.UpdatePolicy(h.ctx, domain.UpdatePolicyRequest{ID: dormant.ID, Active: boolPtr(false)})
		require.NoError(t, err)

		dormantID := h.policyID(t, dormant)
		_, err = h.svc.ResolveCoverage(h.ctx, &dormantID, []snowflake.ID{h.consultID})
		require.ErrorIs(t, err, domain.ErrPolicyNotFound)
	})
}

func TestResolveCoverage_InactiveRuleExcluded(t *testing.T) {
	h := newInsuranceHarness(t)
	policy := h.createPolicy(t, "Acme Health")
	policyID := h.policyID(t, policy)

	_, err := h.svc.UpsertRule(h.ctx, domain.UpsertRuleRequest{
		PolicyID: policy.ID, ServiceID: h.consultID.String(), Percent: 80, Active: boolPtr(false),
	})
	require.NoError(t, err)

	percents, err := h.svc.ResolveCoverage(h.ctx, &policyID, []snowflake.ID{h.consultID})
	require.NoError(t, err)
	require.Equal(t, 0, percents[h.consultID])
}

func TestResolveCoverageLenient_DowngradesMissingPolicy(t *testing.T) {
	h := newInsuranceHarness(t)

	missing := h.genID.Generate()
	percents, err := h.svc.ResolveCoverageLenient(h.ctx, &missing, []snowflake.ID{h.consultID, h.labID})
	require.NoError(t, err)
	require.Equal(t, 0, percents[h.consultID])
	require.Equal(t, 0, percents[h.labID])
}

func TestResolveCoverage_CacheInvalidation(t *testing.T) {
	h := newInsuranceHarness(t)
	policy := h.createPolicy(t, "Acme Health")
	policyID := h.policyID(t, policy)

	_, err := h.svc.UpsertRule(h.ctx, domain.UpsertRuleRequest{
		PolicyID: policy.ID, ServiceID: h.consultID.String(), Percent: 80,
	})
	require.NoError(t, err)

	percents, err := h.svc.ResolveCoverage(h.ctx, &policyID, []snowflake.ID{h.consultID})
	require.NoError(t, err)
	require.Equal(t, 80, percents[h.consultID])

	// A write behind the service's back stays invisible while the cached
	// entry is fresh.
	require.NoError(t, h.db.Model(&domain.CoverageRule{}).
		Where("policy_id = ? AND service_id = ?", policyID, h.consultID).
		Update("percent", 30).Error)
	percents, err = h.svc.ResolveCoverage(h.ctx, &policyID, []snowflake.ID{h.consultID})
	require.NoError(t, err)
	require.Equal(t, 80, percents[h.consultID])

	// Writing through UpsertRule drops the cached entry.
	_, err = h.svc.UpsertRule(h.ctx, domain.UpsertRuleRequest{
		PolicyID: policy.ID, ServiceID: h.consultID.String(), Percent: 30,
	})
	require.NoError(t, err)
	percents, err = h.svc.ResolveCoverage(h.ctx, &policyID, []snowflake.ID{h.consultID})
	require.NoError(t, err)
	require.Equal(t, 30, percents[h.consultID])

	// A policy update purges every cached rule under it.
	require.NoError(t, h.db.Model(&domain.CoverageRule{}).
		Where("policy_id = ? AND service_id = ?", policyID, h.consultID).
		Update("percent", 10).Error)
	name := "Acme Health Renamed"
	_, err = h.svc.UpdatePolicy(h.ctx, domain.UpdatePolicyRequest{ID: policy.ID, Name: &name})
	require.NoError(t, err)
	percents, err = h.svc.ResolveCoverage(h.ctx, &policyID, []snowflake.ID{h.consultID})
	require.NoError(t, err)
	require.Equal(t, 10, percents[h.consultID])
}
