package storage

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the storage connection resolver. Provider packages (local, gcs)
// contribute to the "storage_providers" group.
var Module = fx.Options(
	fx.Provide(
		newResolverFromParams,
		func(r *Resolver) StorageConnectionResolver { return r },
	),
	fx.Invoke(func(lc fx.Lifecycle, r *Resolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return r.CloseAll()
			},
		})
	}),
)
