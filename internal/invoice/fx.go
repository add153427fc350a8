package invoice

import (
	"github.com/kronusitsolutions/kronusmed/internal/config"
	"github.com/kronusitsolutions/kronusmed/internal/invoice/render"
	"github.com/kronusitsolutions/kronusmed/internal/invoice/repository"
	"github.com/kronusitsolutions/kronusmed/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewExplanationService),
	fx.Provide(func(cfg config.Config) *render.PDFRenderer {
		return render.NewPDFRenderer(cfg.Billing.ClinicDisplayName)
	}),
)
