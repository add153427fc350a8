package apikey

import (
	"github.com/kronusitsolutions/kronusmed/internal/apikey/repository"
	"github.com/kronusitsolutions/kronusmed/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
