package authorization

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectAdmission = "admission"

	ActionAdmissionCreate    = "admission.create"
	ActionAdmissionDischarge = "admission.discharge"
)

var ErrInvalidRole = errors.New("invalid_role")

// defaultPolicies grant clinical roles the admission actions. Admins inherit
// everything a doctor may do.
var defaultPolicies = [][]string{
	{"role:doctor", ObjectAdmission, ActionAdmissionCreate},
	{"role:doctor", ObjectAdmission, ActionAdmissionDischarge},
	{"role:nurse", ObjectAdmission, ActionAdmissionCreate},
	{"role:receptionist", ObjectAdmission, ActionAdmissionCreate},
}

var defaultGroupings = [][]string{
	{"role:admin", "role:doctor"},
}

type Service interface {
	// Allowed reports whether a staff role may perform action on object.
	Allowed(ctx context.Context, role, object, action string) (bool, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads policies from the casbin_rule table, seeding the defaults
// on first start.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	for _, rule := range defaultPolicies {
		has, err := enforcer.HasPolicy(rule[0], rule[1], rule[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
			return err
		}
	}
	for _, rule := range defaultGroupings {
		has, err := enforcer.HasGroupingPolicy(rule[0], rule[1])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}
	return nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Allowed(ctx context.Context, role, object, action string) (bool, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false, ErrInvalidRole
	}

	allowed, err := s.enforcer.Enforce("role:"+role, object, action)
	if err != nil {
		return false, err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		if s.auditSvc != nil {
			s.auditSvc.Emit(ctx, auditdomain.Entry{
				Action:     "authorization.denied",
				TargetType: object,
				Details:    map[string]any{"role": role, "action": action},
			})
		}
	}
	return allowed, nil
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
