package job

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
)

func asJob(constructor interface{}) fx.Option {
	return fx.Provide(fx.Annotate(
		constructor,
		fx.As(new(port.Job)),
		fx.ResultTags(`group:"`+runner.JobGroup+`"`),
	))
}

// Module contributes the userbatch jobs to the job registry.
var Module = fx.Options(
	asJob(NewCreateUsersJob),
	asJob(NewProcessEntireJob),
	asJob(NewProcessIndividualJob),
	asJob(NewProcessUserBoardJob),
	asJob(NewUserEmailUpdateJob),
	asJob(NewExportUsersJob),
)
