package catalog

import (
	"github.com/kronusitsolutions/kronusmed/internal/catalog/repository"
	"github.com/kronusitsolutions/kronusmed/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
