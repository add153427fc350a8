package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, filter ListFilter) ([]AuditLog, error)
}

type ListFilter struct {
	Actions []string
	From    *time.Time
	To      *time.Time
	Limit   int
}

// Entry is what a handler reports after a successful mutation.
type Entry struct {
	ActorType  string
	ActorID    *string
	Action     string
	TargetType string
	TargetID   *string
	IPAddress  *string
	UserAgent  *string
	Metadata   map[string]any
}

// Recorder writes audit entries. Recording failures are logged and swallowed
// by the implementation: an audit hiccup must not fail the mutation it
// describes.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
	List(ctx context.Context, filter ListFilter) ([]AuditLog, error)
}

var ErrInvalidClinic = errors.New("invalid_clinic")
