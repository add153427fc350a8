// @title           KronusMed API
// @version         1.0
// @description     Clinic management, invoicing, and insurance coverage API
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.email  support@kronusitsolutions.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
// @Schemes 	http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
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
	"github.com/kronusitsolutions/kronusmed/internal/observability"
	"github.com/kronusitsolutions/kronusmed/internal/patient"
	"github.com/kronusitsolutions/kronusmed/internal/ratelimit"
	"github.com/kronusitsolutions/kronusmed/internal/server"
	"github.com/kronusitsolutions/kronusmed/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
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

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
