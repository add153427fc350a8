package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	schemaStatusReady = "ready"
)

func recordSchemaState(ctx context.Context, db *sql.DB, schemaVersion string, checksum string) error {
	if db == nil {
		return errors.New("schema state requires database handle")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	version := strings.TrimSpace(schemaVersion)
	if version == "" {
		return errors.New("schema version is required to record schema state")
	}

	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO schema_state (id, status, schema_version, checksum, activated_at, created_at)
		VALUES (TRUE, $1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    schema_version = EXCLUDED.schema_version,
		    checksum = EXCLUDED.checksum,
		    activated_at = EXCLUDED.activated_at
	`, schemaStatusReady, version, nullIfEmpty(checksum), now)
	if err != nil {
		return fmt.Errorf("record schema state: %w", err)
	}

	return nil
}

func nullIfEmpty(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}
