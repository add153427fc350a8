package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByHash(ctx context.Context, db *gorm.DB, hash string) (*APIKey, error)
	FindByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*APIKey, error)
	ListByClinic(ctx context.Context, db *gorm.DB, clinicID snowflake.ID) ([]APIKey, error)
	Update(ctx context.Context, db *gorm.DB, key *APIKey) error
	TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}

// APIKeyService issues and revokes API keys for a clinic.
type APIKeyService interface {
	Create(ctx context.Context, req CreateRequest) (*CreatedResponse, error)
	List(ctx context.Context) ([]Response, error)
	Revoke(ctx context.Context, id string) error
	// Authenticate resolves an active, unexpired key by its plaintext and
	// records the use. Returns ErrUnauthorized for any miss.
	Authenticate(ctx context.Context, plaintext string) (*APIKey, error)
}

type CreateRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type Response struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Scopes     []string   `json:"scopes"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CreatedResponse carries the plaintext key exactly once.
type CreatedResponse struct {
	Response
	Key string `json:"key"`
}

var (
	ErrInvalidClinic = errors.New("invalid_clinic")
	ErrInvalidID     = errors.New("invalid_id")
	ErrInvalidName   = errors.New("invalid_name")
	ErrNotFound      = errors.New("api_key_not_found")
	ErrUnauthorized  = errors.New("unauthorized")
)
