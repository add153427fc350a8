package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kronusitsolutions/kronusmed/internal/cache"
	catalogdomain "github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	"github.com/kronusitsolutions/kronusmed/internal/config"
	"github.com/kronusitsolutions/kronusmed/internal/insurance/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ruleCacheKey struct {
	ClinicID  snowflake.ID
	PolicyID  snowflake.ID
	ServiceID snowflake.ID
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Config  config.Config
	Repo    domain.Repository
	Catalog catalogdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	catalog  catalogdomain.Repository
	genID    *snowflake.Node
	cacheTTL time.Duration
	// Read-through cache over active rule lookups. Serves only the resolver
	// read path; the invoice ledger never touches it inside a transaction.
	ruleCache *cache.TTLCache[ruleCacheKey, int]
}

func New(p Params) domain.InsuranceService {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("insurance.service"),
		repo:      p.Repo,
		catalog:   p.Catalog,
		genID:     p.GenID,
		cacheTTL:  p.Config.Billing.CoverageCacheTTL,
		ruleCache: cache.NewTTLCache[ruleCacheKey, int](),
	}
}

func (s *Service) CreatePolicy(ctx context.Context, req domain.CreatePolicyRequest) (*domain.PolicyResponse, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	policy := &domain.InsurancePolicy{
		ID:        s.genID.Generate(),
		ClinicID:  clinicID,
		Name:      name,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertPolicy(ctx, s.db, policy); err != nil {
		return nil, err
	}

	resp := toPolicyResponse(policy)
	return &resp, nil
}

func (s *Service) GetPolicy(ctx context.Context, id string) (*domain.PolicyResponse, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	policyID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	policy, err := s.repo.FindPolicyByID(ctx, s.db, clinicID, policyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, domain.ErrPolicyNotFound
	}

	resp := toPolicyResponse(policy)
	return &resp, nil
}

func (s *Service) ListPolicies(ctx context.Context, req domain.ListPoliciesRequest) (domain.ListPoliciesResponse, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return domain.ListPoliciesResponse{}, domain.ErrInvalidClinic
	}

	pageSize := req.PageSize
	if pageSize < 0 {
		pageSize = 0
	} else if pageSize == 0 {
		pageSize = 50
	}

	items, err := s.repo.ListPolicies(ctx, s.db, clinicID, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListPoliciesResponse{}, err
	}

	var pageInfo *pagination.PageInfo
	if pageSize > 0 {
		pageInfo = pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.InsurancePolicy) string {
			token, err := pagination.EncodeCursor(pagination.Cursor{
				ID:        item.ID.String(),
				CreatedAt: item.CreatedAt.Format(time.RFC3339),
			})
			if err != nil {
				return ""
			}
			return token
		})
		if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
			items = items[:pageSize]
		}
	}

	resp := make([]domain.PolicyResponse, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		resp = append(resp, toPolicyResponse(item))
	}

	out := domain.ListPoliciesResponse{Policies: resp}
	if pageInfo != nil {
		out.PageInfo = *pageInfo
	}
	return out, nil
}

func (s *Service) UpdatePolicy(ctx context.Context, req domain.UpdatePolicyRequest) (*domain.PolicyResponse, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	policyID, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	policy, err := s.repo.FindPolicyByID(ctx, s.db, clinicID, policyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, domain.ErrPolicyNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		policy.Name = name
	}
	if req.Active != nil {
		policy.Active = *req.Active
	}
	policy.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdatePolicy(ctx, s.db, policy); err != nil {
		return nil, err
	}

	// A policy flip invalidates every cached rule under it.
	s.ruleCache.Purge()

	resp := toPolicyResponse(policy)
	return &resp, nil
}

// UpsertRule writes the coverage rule for a (policy, service) pair. The pair
// carries a unique index, so a concurrent duplicate insert is retried as an
// update rather than surfacing a constraint error.
func (s *Service) UpsertRule(ctx context.Context, req domain.UpsertRuleRequest) (*domain.RuleResponse, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	policyID, err := snowflake.ParseString(strings.TrimSpace(req.PolicyID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	serviceID, err := snowflake.ParseString(strings.TrimSpace(req.ServiceID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	if req.Percent < 0 || req.Percent > 100 {
		return nil, domain.ErrInvalidPercent
	}

	policy, err := s.repo.FindPolicyByID(ctx, s.db, clinicID, policyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, domain.ErrPolicyNotFound
	}

	svc, err := s.catalog.FindByID(ctx, s.db, clinicID, serviceID)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, domain.ErrServiceNotFound
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	now := time.Now().UTC()

	rule, err := s.repo.FindRule(ctx, s.db, clinicID, policyID, serviceID)
	if err != nil {
		return nil, err
	}

	if rule == nil {
		rule = &domain.CoverageRule{
			ID:        s.genID.Generate(),
			ClinicID:  clinicID,
			PolicyID:  policyID,
			ServiceID: serviceID,
			Percent:   req.Percent,
			Active:    active,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if insertErr := s.repo.InsertRule(ctx, s.db, rule); insertErr != nil {
			if !errors.Is(insertErr, gorm.ErrDuplicatedKey) {
				return nil, insertErr
			}
			// Lost the insert race; fall through to update the winner's row.
			rule, err = s.repo.FindRule(ctx, s.db, clinicID, policyID, serviceID)
			if err != nil {
				return nil, err
			}
			if rule == nil {
				return nil, insertErr
			}
		}
	}

	if rule.Percent != req.Percent || rule.Active != active {
		rule.Percent = req.Percent
		rule.Active = active
		rule.UpdatedAt = now
		if err := s.repo.UpdateRule(ctx, s.db, rule); err != nil {
			return nil, err
		}
	}

	s.ruleCache.Delete(ruleCacheKey{ClinicID: clinicID, PolicyID: policyID, ServiceID: serviceID})

	resp := toRuleResponse(rule)
	return &resp, nil
}

func (s *Service) ListRules(ctx context.Context, policyID string) ([]domain.RuleResponse, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	pid, err := snowflake.ParseString(strings.TrimSpace(policyID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	policy, err := s.repo.FindPolicyByID(ctx, s.db, clinicID, pid)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, domain.ErrPolicyNotFound
	}

	rules, err := s.repo.ListRules(ctx, s.db, clinicID, pid)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.RuleResponse, 0, len(rules))
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		resp = append(resp, toRuleResponse(rule))
	}
	return resp, nil
}

func (s *Service) ResolveCoverage(ctx context.Context, policyID *snowflake.ID, serviceIDs []snowflake.ID) (map[snowflake.ID]int, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}

	percents := make(map[snowflake.ID]int, len(serviceIDs))
	for _, id := range serviceIDs {
		percents[id] = 0
	}
	if policyID == nil || len(serviceIDs) == 0 {
		return percents, nil
	}

	policy, err := s.repo.FindPolicyByID(ctx, s.db, clinicID, *policyID)
	if err != nil {
		return nil, err
	}
	if policy == nil || !policy.Active {
		return nil, domain.ErrPolicyNotFound
	}

	missing := make([]snowflake.ID, 0, len(serviceIDs))
	for _, serviceID := range serviceIDs {
		key := ruleCacheKey{ClinicID: clinicID, PolicyID: *policyID, ServiceID: serviceID}
		if percent, hit := s.ruleCache.Get(key); hit {
			percents[serviceID] = percent
			continue
		}
		missing = append(missing, serviceID)
	}

	if len(missing) > 0 {
		rules, err := s.repo.FindActiveRules(ctx, s.db, clinicID, *policyID, missing)
		if err != nil {
			return nil, err
		}
		found := make(map[snowflake.ID]int, len(rules))
		for _, rule := range rules {
			found[rule.ServiceID] = rule.Percent
		}
		for _, serviceID := range missing {
			percent := found[serviceID]
			percents[serviceID] = percent
			s.ruleCache.Set(ruleCacheKey{ClinicID: clinicID, PolicyID: *policyID, ServiceID: serviceID}, percent, s.cacheTTL)
		}
	}

	return percents, nil
}

func (s *Service) ResolveCoverageLenient(ctx context.Context, policyID *snowflake.ID, serviceIDs []snowflake.ID) (map[snowflake.ID]int, error) {
	percents, err := s.ResolveCoverage(ctx, policyID, serviceIDs)
	if err == nil {
		return percents, nil
	}
	if !errors.Is(err, domain.ErrPolicyNotFound) {
		return nil, err
	}

	s.log.Warn("policy missing or inactive, billing without coverage",
		zap.Stringer("policy_id", policyID),
	)
	percents = make(map[snowflake.ID]int, len(serviceIDs))
	for _, id := range serviceIDs {
		percents[id] = 0
	}
	return percents, nil
}

func toPolicyResponse(p *domain.InsurancePolicy) domain.PolicyResponse {
	return domain.PolicyResponse{
		ID:        p.ID.String(),
		ClinicID:  p.ClinicID.String(),
		Name:      p.Name,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toRuleResponse(r *domain.CoverageRule) domain.RuleResponse {
	return domain.RuleResponse{
		ID:        r.ID.String(),
		PolicyID:  r.PolicyID.String(),
		ServiceID: r.ServiceID.String(),
		Percent:   r.Percent,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
