package logger

import (
	"context"

	"go.uber.org/fx"
)

// Module installs the fx event logger and flushes buffered entries on shutdown.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
	fx.Invoke(func(lc fx.Lifecycle) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				// Sync on stderr reports EINVAL on some platforms; it is not actionable.
				_ = Sync()
				return nil
			},
		})
	}),
)
