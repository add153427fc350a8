package clinicctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type contextKey string

const (
	clinicIDKey contextKey = "clinic_id"
	actorKey    contextKey = "actor"
)

// WithClinicID scopes the context to a tenant clinic.
func WithClinicID(ctx context.Context, clinicID snowflake.ID) context.Context {
	return context.WithValue(ctx, clinicIDKey, clinicID)
}

// ClinicIDFromContext returns the tenant clinic the request is scoped to.
func ClinicIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(clinicIDKey).(snowflake.ID)
	return id, ok
}

// WithActor records the authenticated actor (staff identifier or api key name).
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}
