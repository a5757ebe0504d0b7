// Package audit selects the AuditSink backend from configuration.
package audit

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	gormaudit "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/audit/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/audit/inmemory"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Sink types accepted by infrastructure.audit_sink_type.
const (
	SinkTypeInMemory = "inmemory"
	SinkTypeGorm     = "gorm"
)

// SinkParams are the Fx dependencies of NewAuditSink.
type SinkParams struct {
	fx.In
	Cfg        *config.Config
	DBResolver database.DBConnectionResolver `optional:"true"`
}

// NewAuditSink returns the configured AuditSink.
func NewAuditSink(p SinkParams) (port.AuditSink, error) {
	infra := p.Cfg.ChunkBatch.Infrastructure
	switch infra.AuditSinkType {
	case "", SinkTypeInMemory:
		logger.Debugf("Audit records are kept in memory.")
		return inmemory.NewAuditSink(), nil
	case SinkTypeGorm:
		if p.DBResolver == nil {
			return nil, fmt.Errorf("audit sink type '%s' requires a database connection resolver", infra.AuditSinkType)
		}
		logger.Debugf("Audit records are appended to connection '%s'.", infra.AuditDBRef)
		return gormaudit.NewAuditSink(p.DBResolver, infra.AuditDBRef), nil
	default:
		return nil, fmt.Errorf("unknown audit sink type: %s", infra.AuditSinkType)
	}
}

// Module provides the configured port.AuditSink.
var Module = fx.Provide(NewAuditSink)
