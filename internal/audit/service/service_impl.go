package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/kronusitsolutions/kronusmed/internal/audit/domain"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	"github.com/kronusitsolutions/kronusmed/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Recorder {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record appends the entry. Failures are logged, never propagated: the
// mutation this entry describes has already committed.
func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		s.log.Warn("audit entry without clinic scope dropped", zap.String("action", entry.Action))
		return
	}

	actorType := entry.ActorType
	if actorType == "" {
		actorType = "staff"
	}
	actorID := entry.ActorID
	if actorID == nil {
		if actor := clinicctx.ActorFromContext(ctx); actor != "" {
			actorID = &actor
		}
	}

	row := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ClinicID:   clinicID,
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
		Metadata:   entry.Metadata,
		CreatedAt:  s.clock.Now(ctx),
	}
	if err := s.repo.Insert(ctx, s.db, row); err != nil {
		s.log.Error("audit write failed",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

func (s *Service) List(ctx context.Context, filter auditdomain.ListFilter) ([]auditdomain.AuditLog, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, auditdomain.ErrInvalidClinic
	}
	return s.repo.List(ctx, s.db, clinicID, filter)
}
