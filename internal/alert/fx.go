package alert

import (
	"github.com/harvestline/storefront/internal/alert/domain"
	"github.com/harvestline/storefront/internal/alert/repository"
	"github.com/harvestline/storefront/internal/alert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("alert",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Invoke(service.RunSweeper),
)
