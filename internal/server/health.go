package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kronusitsolutions/kronusmed/internal/migration"
)

// Healthz is the liveness probe. It answers as long as the process runs.
func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz is the readiness probe: the database must answer and the schema
// must be migrated to the version this binary embeds.
func (s *Server) Readyz(c *gin.Context) {
	ctx := c.Request.Context()

	sqlDB, err := s.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "database_handle"})
		return
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "database_unreachable"})
		return
	}

	expectedVersion, err := migration.LatestMigrationVersion()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "migrations_unreadable"})
		return
	}

	var state struct {
		Status        string `gorm:"column:status"`
		SchemaVersion string `gorm:"column:schema_version"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT status, schema_version FROM schema_state WHERE id = TRUE LIMIT 1`,
	).Scan(&state).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "schema_state_unreadable"})
		return
	}

	if state.Status != "ready" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "schema_not_migrated"})
		return
	}
	if strings.TrimSpace(state.SchemaVersion) != strconv.FormatUint(uint64(expectedVersion), 10) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"reason":  "schema_version_mismatch",
			"current": state.SchemaVersion,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "schema_version": state.SchemaVersion})
}
