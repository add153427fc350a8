package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// APIKey is a bearer credential for the HTTP API. The plaintext key is shown
// once at creation; only its sha256 hash is stored.
type APIKey struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	ClinicID   snowflake.ID   `gorm:"not null;index"`
	Name       string         `gorm:"type:text;not null"`
	Prefix     string         `gorm:"type:text;not null"`
	KeyHash    string         `gorm:"type:text;not null;uniqueIndex:ux_api_keys_hash"`
	Scopes     pq.StringArray `gorm:"type:text[]"`
	Active     bool           `gorm:"not null;default:true"`
	ExpiresAt  *time.Time     `gorm:""`
	LastUsedAt *time.Time     `gorm:""`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// HashAPIKey is the stored lookup form of a plaintext key.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey returns a fresh plaintext key with a recognizable prefix.
// The prefix is kept alongside the hash so keys can be identified in the UI
// without exposing the secret.
func GenerateAPIKey() (plaintext, prefix string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plaintext = "kmk_" + hex.EncodeToString(raw)
	return plaintext, plaintext[:12], nil
}
