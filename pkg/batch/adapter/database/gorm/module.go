package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
)

// Module provides the connection resolver and the transaction manager factory.
// Dialect packages (sqlite, mysql, postgres) contribute the DBProviders.
var Module = fx.Options(
	fx.Provide(NewGormTransactionManagerFactory),
	fx.Provide(
		NewGormDBConnectionResolver,
		func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r },
		func(r *GormDBConnectionResolver) coreAdapter.ResourceConnectionResolver { return r },
	),
	fx.Invoke(registerCloseHook),
)

func registerCloseHook(lc fx.Lifecycle, r *GormDBConnectionResolver) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return r.CloseAll()
		},
	})
}
