package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/kronusitsolutions/kronusmed/internal/apikey/domain"
	"github.com/kronusitsolutions/kronusmed/internal/apikey/repository"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	"github.com/kronusitsolutions/kronusmed/internal/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newKeyService(t *testing.T) (domain.APIKeyService, context.Context) {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.APIKey{}))

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: genID,
		Clock: clock.SystemClock{},
		Repo:  repository.Provide(),
	})
	ctx := clinicctx.WithClinicID(context.Background(), genID.Generate())
	return svc, ctx
}

func TestAPIKeyLifecycle(t *testing.T) {
	svc, ctx := newKeyService(t)

	created, err := svc.Create(ctx, domain.CreateRequest{
		Name:   "front desk terminal",
		Scopes: []string{"invoices:write", "patients:read"},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(created.Key, "kmk_"))
	require.Equal(t, created.Key[:12], created.Prefix)

	key, err := svc.Authenticate(ctx, created.Key)
	require.NoError(t, err)
	require.Equal(t, created.ID, key.ID.String())
	require.Contains(t, key.Scopes, "invoices:write")

	_, err = svc.Authenticate(ctx, "kmk_bogus")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	keys, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	require.NoError(t, svc.Revoke(ctx, created.ID))
	_, err = svc.Authenticate(ctx, created.Key)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAPIKeyExpiry(t *testing.T) {
	svc, ctx := newKeyService(t)

	past := time.Now().UTC().Add(-time.Minute)
	created, err := svc.Create(ctx, domain.CreateRequest{Name: "expired", ExpiresAt: &past})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, created.Key)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "   "})
	require.ErrorIs(t, err, domain.ErrInvalidName)
}
