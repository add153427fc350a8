package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPolicy(ctx context.Context, db *gorm.DB, policy *InsurancePolicy) error
	FindPolicyByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*InsurancePolicy, error)
	ListPolicies(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, page pagination.Pagination) ([]*InsurancePolicy, error)
	UpdatePolicy(ctx context.Context, db *gorm.DB, policy *InsurancePolicy) error

	FindRule(ctx context.Context, db *gorm.DB, clinicID, policyID, serviceID snowflake.ID) (*CoverageRule, error)
	InsertRule(ctx context.Context, db *gorm.DB, rule *CoverageRule) error
	UpdateRule(ctx context.Context, db *gorm.DB, rule *CoverageRule) error
	ListRules(ctx context.Context, db *gorm.DB, clinicID, policyID snowflake.ID) ([]*CoverageRule, error)
	FindActiveRules(ctx context.Context, db *gorm.DB, clinicID, policyID snowflake.ID, serviceIDs []snowflake.ID) ([]*CoverageRule, error)
}

// InsuranceService manages policies and coverage rules and resolves the
// coverage percentage applicable to a set of services.
type InsuranceService interface {
	CreatePolicy(ctx context.Context, req CreatePolicyRequest) (*PolicyResponse, error)
	GetPolicy(ctx context.Context, id string) (*PolicyResponse, error)
	ListPolicies(ctx context.Context, req ListPoliciesRequest) (ListPoliciesResponse, error)
	UpdatePolicy(ctx context.Context, req UpdatePolicyRequest) (*PolicyResponse, error)

	UpsertRule(ctx context.Context, req UpsertRuleRequest) (*RuleResponse, error)
	ListRules(ctx context.Context, policyID string) ([]RuleResponse, error)

	// ResolveCoverage maps each requested service to its coverage percent.
	// A nil policyID means no insurance: every service resolves to 0%. An
	// explicit policyID that does not exist (or is inactive) is a hard
	// ErrPolicyNotFound.
	ResolveCoverage(ctx context.Context, policyID *snowflake.ID, serviceIDs []snowflake.ID) (map[snowflake.ID]int, error)

	// ResolveCoverageLenient behaves like ResolveCoverage but downgrades
	// ErrPolicyNotFound to zero coverage across the board, logging the
	// downgrade. Invoice creation uses it so a policy deactivated between
	// patient link and billing does not block the invoice.
	ResolveCoverageLenient(ctx context.Context, policyID *snowflake.ID, serviceIDs []snowflake.ID) (map[snowflake.ID]int, error)
}

type CreatePolicyRequest struct {
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

type UpdatePolicyRequest struct {
	ID     string  `json:"id"`
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

type ListPoliciesRequest struct {
	PageToken string
	PageSize  int32
}

type ListPoliciesResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Policies []PolicyResponse    `json:"policies"`
}

type PolicyResponse struct {
	ID        string    `json:"id"`
	ClinicID  string    `json:"clinic_id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UpsertRuleRequest struct {
	PolicyID  string `json:"policy_id"`
	ServiceID string `json:"service_id"`
	Percent   int    `json:"percent"`
	Active    *bool  `json:"active"`
}

type RuleResponse struct {
	ID        string    `json:"id"`
	PolicyID  string    `json:"policy_id"`
	ServiceID string    `json:"service_id"`
	Percent   int       `json:"percent"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrInvalidClinic   = errors.New("invalid_clinic")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidPercent  = errors.New("invalid_percent")
	ErrPolicyNotFound  = errors.New("policy_not_found")
	ErrServiceNotFound = errors.New("service_not_found")
)
