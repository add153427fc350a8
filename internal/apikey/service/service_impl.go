package service

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/kronusitsolutions/kronusmed/internal/apikey/domain"
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
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.APIKeyService {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CreatedResponse, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	plaintext, prefix, err := domain.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	key := &domain.APIKey{
		ID:        s.genID.Generate(),
		ClinicID:  clinicID,
		Name:      name,
		Prefix:    prefix,
		KeyHash:   domain.HashAPIKey(plaintext),
		Scopes:    req.Scopes,
		Active:    true,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.log.Info("api key issued",
		zap.Stringer("clinic_id", clinicID),
		zap.String("prefix", prefix),
	)
	return &domain.CreatedResponse{Response: toResponse(key), Key: plaintext}, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Response, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}
	keys, err := s.repo.ListByClinic(ctx, s.db, clinicID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Response, 0, len(keys))
	for i := range keys {
		out = append(out, toResponse(&keys[i]))
	}
	return out, nil
}

func (s *Service) Revoke(ctx context.Context, id string) error {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return domain.ErrInvalidClinic
	}
	keyID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidID
	}

	key, err := s.repo.FindByID(ctx, s.db, clinicID, keyID)
	if err != nil {
		return err
	}
	if key == nil {
		return domain.ErrNotFound
	}

	key.Active = false
	key.UpdatedAt = s.clock.Now(ctx)
	return s.repo.Update(ctx, s.db, key)
}

func (s *Service) Authenticate(ctx context.Context, plaintext string) (*domain.APIKey, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return nil, domain.ErrUnauthorized
	}

	hash := domain.HashAPIKey(plaintext)
	key, err := s.repo.FindByHash(ctx, s.db, hash)
	if err != nil {
		return nil, err
	}
	if key == nil || !key.Active {
		return nil, domain.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, domain.ErrUnauthorized
	}

	now := s.clock.Now(ctx)
	if key.ExpiresAt != nil && !key.ExpiresAt.After(now) {
		return nil, domain.ErrUnauthorized
	}

	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, now); err != nil {
		s.log.Warn("last_used_at update failed", zap.Error(err))
	}
	return key, nil
}

func toResponse(key *domain.APIKey) domain.Response {
	return domain.Response{
		ID:         key.ID.String(),
		Name:       key.Name,
		Prefix:     key.Prefix,
		Scopes:     key.Scopes,
		Active:     key.Active,
		ExpiresAt:  key.ExpiresAt,
		LastUsedAt: key.LastUsedAt,
		CreatedAt:  key.CreatedAt,
	}
}
