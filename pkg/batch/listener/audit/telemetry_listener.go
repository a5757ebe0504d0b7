// Package audit translates engine events into audit records.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// UnknownJobName is recorded when an event carries no job name.
const UnknownJobName = "Unknown Job"

// TelemetryListener appends one AuditRecord per engine event. Appending is best effort:
// failures are logged and dropped so the run outcome never depends on the audit store.
//
// The listener keeps no counters of its own. Every event carries a snapshot of the run's
// stats, so one listener may observe several concurrent runs.
type TelemetryListener struct {
	sink  port.AuditSink
	clock func() time.Time
}

// NewTelemetryListener creates a TelemetryListener appending to sink.
func NewTelemetryListener(sink port.AuditSink) *TelemetryListener {
	return &TelemetryListener{sink: sink, clock: time.Now}
}

// Handle implements port.Listener.
func (l *TelemetryListener) Handle(ctx context.Context, event port.Event) {
	if l.sink == nil || event == nil {
		return
	}
	record := l.toRecord(event)
	if err := l.append(ctx, record); err != nil {
		logger.Errorf("TelemetryListener: %v", err)
	}
}

// append calls the sink, converting failures and panics into an AuditError.
func (l *TelemetryListener) append(ctx context.Context, record model.AuditRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = exception.NewAuditError(record.Kind().String(), errors.Newf("audit sink panicked: %v", r))
		}
	}()
	if appendErr := l.sink.Append(ctx, record); appendErr != nil {
		return exception.NewAuditError(record.Kind().String(), appendErr)
	}
	return nil
}

func (l *TelemetryListener) toRecord(event port.Event) model.AuditRecord {
	meta := event.Meta()
	jobName := meta.JobName
	if jobName == "" {
		jobName = UnknownJobName
	}
	ts := meta.Time
	if ts.IsZero() {
		ts = l.clock()
	}
	stats := meta.Stats

	var (
		message  string
		snapshot *string
	)
	switch e := event.(type) {
	case port.StepStarted:
		message = "Step started"
	case port.ChunkCommitted:
		message = fmt.Sprintf("Committed: %d, Total: %d, Success: %d, Failure: %d", e.Count, stats.Total, stats.Success, stats.Failure)
	case port.ItemSkipped:
		s := Snapshot(e.Item)
		snapshot = &s
		message = fmt.Sprintf("Item: %s, Error: %s", s, errorMessage(e.Err))
	case port.ChunkError:
		message = errorMessage(e.Err)
	case port.StepFinished:
		message = stats.String()
	}
	return model.NewAuditRecord(jobName, meta.StepName, event.Kind(), message, snapshot, ts)
}

// Snapshot serializes item as JSON, falling back to its %+v form.
func Snapshot(item any) string {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Sprintf("%+v", item)
	}
	return string(b)
}

func errorMessage(err error) string {
	if err == nil {
		return "Unknown error"
	}
	return err.Error()
}

var _ port.Listener = (*TelemetryListener)(nil)
