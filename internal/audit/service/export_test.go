package service

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/kronusitsolutions/kronusmed/internal/audit/domain"
	"github.com/kronusitsolutions/kronusmed/internal/audit/repository"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	"github.com/kronusitsolutions/kronusmed/internal/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newAuditDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))
	return db
}

func TestRecordAndExport(t *testing.T) {
	db := newAuditDB(t)
	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)

	recorder := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: genID,
		Clock: clock.SystemClock{},
		Repo:  repository.Provide(),
	})

	clinicID := genID.Generate()
	ctx := clinicctx.WithActor(clinicctx.WithClinicID(context.Background(), clinicID), "frontdesk-1")

	target := genID.Generate().String()
	recorder.Record(ctx, auditdomain.Entry{
		Action:     "invoice.create",
		TargetType: "invoice",
		TargetID:   &target,
		Metadata:   map[string]any{"total_cents": int64(5000)},
	})
	recorder.Record(ctx, auditdomain.Entry{
		Action:     "invoice.exonerate",
		TargetType: "invoice",
		TargetID:   &target,
	})

	// Entries without clinic scope are dropped, not written.
	recorder.Record(context.Background(), auditdomain.Entry{Action: "orphan"})

	logs, err := recorder.List(ctx, auditdomain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "frontdesk-1", *logs[0].ActorID)

	logs, err = recorder.List(ctx, auditdomain.ListFilter{Actions: []string{"invoice.exonerate"}})
	require.NoError(t, err)
	require.Len(t, logs, 1)

	exporter := NewExportService(db)
	out, err := exporter.Export(ctx, auditdomain.ExportRequest{
		ClinicID:  &clinicID,
		StartDate: time.Now().UTC().Add(-time.Hour),
		EndDate:   time.Now().UTC().Add(time.Hour),
		Format:    auditdomain.ExportFormatCSV,
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)

	sum := sha256.Sum256(out.Data)
	require.Equal(t, hex.EncodeToString(sum[:]), out.Checksum)

	rows, err := csv.NewReader(strings.NewReader(string(out.Data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 entries
	require.Equal(t, "timestamp", rows[0][0])
	require.Equal(t, "invoice.create", rows[1][4])

	_, err = exporter.Export(ctx, auditdomain.ExportRequest{
		StartDate: time.Now().UTC().Add(-time.Hour),
		EndDate:   time.Now().UTC().Add(time.Hour),
		Format:    auditdomain.ExportFormat("xml"),
	})
	require.Error(t, err)
}
