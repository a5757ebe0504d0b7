// Package listener aggregates the engine event listeners shared by every job.
package listener

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/logging"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/tracing"
)

// ListenerGroup is the Fx value group of shared port.Listener instances.
const ListenerGroup = "listeners"

// Params collects the shared listeners for job constructors.
type Params struct {
	fx.In
	Listeners []port.Listener `group:"listeners"`
}

// Module contributes the logging and tracing listeners to the "listeners" group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		logging.NewLoggingListener,
		fx.As(new(port.Listener)),
		fx.ResultTags(`group:"listeners"`),
	)),
	fx.Provide(fx.Annotate(
		tracing.NewTracingListener,
		fx.As(new(port.Listener)),
		fx.ResultTags(`group:"listeners"`),
	)),
)
