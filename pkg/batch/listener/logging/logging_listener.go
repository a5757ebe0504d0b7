// Package logging provides a listener that writes every engine event to the application log.
package logging

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// LoggingListener logs engine events. Chunk commits are logged at debug level.
type LoggingListener struct{}

// NewLoggingListener creates a LoggingListener.
func NewLoggingListener() *LoggingListener {
	return &LoggingListener{}
}

// Handle implements port.Listener.
func (l *LoggingListener) Handle(ctx context.Context, event port.Event) {
	meta := event.Meta()
	switch e := event.(type) {
	case port.StepStarted:
		logger.Infof("StepListener: BeforeStep - JobName: %s, StepName: %s", meta.JobName, meta.StepName)
	case port.ChunkCommitted:
		logger.Debugf("ChunkListener: AfterChunk - StepName: %s, Committed: %d, %s", meta.StepName, e.Count, meta.Stats)
	case port.ItemSkipped:
		logger.Warnf("SkipListener: OnSkipProcess - StepName: %s, Item: %+v, Error: %v", meta.StepName, e.Item, e.Err)
	case port.ChunkError:
		logger.Errorf("ChunkListener: OnChunkError - StepName: %s, %s, Error: %v", meta.StepName, meta.Stats, e.Err)
	case port.StepFinished:
		logger.Infof("StepListener: AfterStep - JobName: %s, StepName: %s, Status: %s, %s", meta.JobName, meta.StepName, e.Status, meta.Stats)
	}
}

var _ port.Listener = (*LoggingListener)(nil)
