package insurance

import (
	"github.com/kronusitsolutions/kronusmed/internal/insurance/repository"
	"github.com/kronusitsolutions/kronusmed/internal/insurance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("insurance.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
