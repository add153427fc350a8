package appointment

import (
	"github.com/kronusitsolutions/kronusmed/internal/appointment/repository"
	"github.com/kronusitsolutions/kronusmed/internal/appointment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("appointment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
