package patient

import (
	"github.com/kronusitsolutions/kronusmed/internal/patient/repository"
	"github.com/kronusitsolutions/kronusmed/internal/patient/service"
	"go.uber.org/fx"
)

var Module = fx.Module("patient.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
