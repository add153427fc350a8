package authorization

import (
	"context"
	"strings"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Role capabilities live in casbin policies (persisted in casbin_rule via the
// gorm adapter); clinic membership lives in staff_members. Authorize joins
// the two: membership decides the role, casbin decides what the role may do.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`

// defaultPolicies seed an empty casbin_rule table. ADMIN holds everything;
// exoneration and audit export stay admin-only.
var defaultPolicies = [][]string{
	{RoleAdmin, "*", "*"},

	{RoleDoctor, ObjectCatalog, ActionRead},
	{RoleDoctor, ObjectPatient, ActionRead},
	{RoleDoctor, ObjectPatient, ActionWrite},
	{RoleDoctor, ObjectInsurance, ActionRead},
	{RoleDoctor, ObjectAppointment, ActionRead},
	{RoleDoctor, ObjectAppointment, ActionWrite},
	{RoleDoctor, ObjectInvoice, ActionRead},
	{RoleDoctor, ObjectInvoice, ActionWrite},

	{RoleFrontdesk, ObjectCatalog, ActionRead},
	{RoleFrontdesk, ObjectPatient, ActionRead},
	{RoleFrontdesk, ObjectPatient, ActionWrite},
	{RoleFrontdesk, ObjectInsurance, ActionRead},
	{RoleFrontdesk, ObjectAppointment, ActionRead},
	{RoleFrontdesk, ObjectAppointment, ActionWrite},
	{RoleFrontdesk, ObjectInvoice, ActionRead},
	{RoleFrontdesk, ObjectInvoice, ActionWrite},
	{RoleFrontdesk, ObjectInvoice, ActionInvoicePay},
}

func NewEnforcer(db *gorm.DB) (*casbin.Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}

	policies, err := enforcer.GetPolicy()
	if err != nil {
		return nil, err
	}
	if len(policies) == 0 {
		if _, err := enforcer.AddPolicies(defaultPolicies); err != nil {
			return nil, err
		}
	}
	return enforcer, nil
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.Enforcer
}

func NewService(db *gorm.DB, log *zap.Logger, enforcer *casbin.Enforcer) Service {
	return &ServiceImpl{
		db:       db,
		log:      log.Named("authorization"),
		enforcer: enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, clinicID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	if strings.TrimSpace(clinicID) == "" {
		return ErrInvalidClinic
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	// Internal jobs bypass membership.
	if actor == "system" {
		return nil
	}

	userID, ok := strings.CutPrefix(actor, "user:")
	if !ok || strings.TrimSpace(userID) == "" {
		return ErrInvalidActor
	}

	var role string
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role FROM staff_members WHERE clinic_id = ? AND user_id = ? LIMIT 1`,
		clinicID,
		userID,
	).Scan(&role).Error; err != nil {
		return err
	}
	if role == "" {
		return ErrForbidden
	}

	allowed, err := s.enforcer.Enforce(role, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("actor", actor),
			zap.String("clinic_id", clinicID),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}
