package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kronusitsolutions/kronusmed/internal/apikey"
	"github.com/kronusitsolutions/kronusmed/internal/appointment"
	"github.com/kronusitsolutions/kronusmed/internal/audit"
	"github.com/kronusitsolutions/kronusmed/internal/authorization"
	"github.com/kronusitsolutions/kronusmed/internal/catalog"
	"github.com/kronusitsolutions/kronusmed/internal/clock"
	"github.com/kronusitsolutions/kronusmed/internal/config"
	"github.com/kronusitsolutions/kronusmed/internal/insurance"
	"github.com/kronusitsolutions/kronusmed/internal/invoice"
	"github.com/kronusitsolutions/kronusmed/internal/migration"
	"github.com/kronusitsolutions/kronusmed/internal/observability"
	"github.com/kronusitsolutions/kronusmed/internal/patient"
	"github.com/kronusitsolutions/kronusmed/internal/ratelimit"
	"github.com/kronusitsolutions/kronusmed/internal/seed"
	"github.com/kronusitsolutions/kronusmed/internal/server"
	"github.com/kronusitsolutions/kronusmed/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "kronusmed",
		Short:   "KronusMed clinic API",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newSeedCmd(), newAllCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and record schema state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the demo clinic with services, a policy, and a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed()
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations and seed, then start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			if err := runSeed(); err != nil {
				return err
			}
			runServe()
			return nil
		},
	}
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runSeed() error {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
			result, err := seed.EnsureDemoClinic(conn)
			if err != nil {
				return err
			}
			log.Info("demo clinic seeded", zap.String("clinic_id", result.ClinicID.String()))
			if result.APIKeyPlaintext != "" {
				// Printed once; only the hash is stored.
				log.Info("development api key issued", zap.String("key", result.APIKeyPlaintext))
			}
			return nil
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runServe() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		catalog.Module,
		patient.Module,
		insurance.Module,
		appointment.Module,
		invoice.Module,
		audit.Module,
		apikey.Module,
		authorization.Module,
		server.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
